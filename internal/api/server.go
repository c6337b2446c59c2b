package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/junho/bid-finder/internal/auth"
	"github.com/junho/bid-finder/internal/db"
	"github.com/junho/bid-finder/internal/models"
	"github.com/junho/bid-finder/internal/scrape"
)

// Server is the thin HTTP surface over the scrape engine and store.
type Server struct {
	Store        *db.Store
	AuthService  *auth.Service
	Orchestrator *scrape.Orchestrator
	Echo         *echo.Echo
	DB           *pgxpool.Pool

	// Background job tracking: one scrape run at a time.
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"` // running, completed, failed
	RequestedBy string             `json:"requested_by,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at,omitempty"`
	Result      any                `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
	Cancel      context.CancelFunc `json:"-"`
}

// actor names the authenticated user behind an admin request for job
// records and the audit log.
func actor(c echo.Context) string {
	if id, ok := auth.UserIDFromContext(c); ok {
		return id.String()
	}
	return ""
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func adminSecretFromEnv() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = err
			return
		}
		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Printf("ADMIN_SECRET is not set; generated ephemeral secret: %s", adminSecretRuntime)
	})
	return adminSecretRuntime, adminSecretErr
}

func NewServer(pool *pgxpool.Pool, reg *scrape.Registry) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	store := db.NewStore(pool)
	s := &Server{
		Store:        store,
		AuthService:  auth.NewService(pool),
		Orchestrator: scrape.NewOrchestrator(store, reg),
		Echo:         e,
		DB:           pool,
	}

	e.GET("/health", s.handleHealth)
	e.POST("/auth/signup", s.handleSignup)
	e.POST("/auth/login", s.handleLogin)

	api := e.Group("/api", auth.Middleware)
	api.GET("/notices", s.handleListNotices)
	api.GET("/notices/:nid", s.handleGetNotice)
	api.PATCH("/notices/:nid/status", s.handleSetStatus)
	api.GET("/runs", s.handleListRuns)

	admin := api.Group("/admin", s.requireAdmin)
	admin.POST("/scrape", s.handleScrape)
	admin.GET("/jobs/:id", s.handleJobStatus)
	admin.POST("/classify", s.handleClassify)
	admin.POST("/details", s.handleDetails)

	return s
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

// requireAdmin gates the mutating endpoints behind a shared secret on top
// of user auth.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecretFromEnv()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "admin secret unavailable")
		}
		if c.Request().Header.Get("X-Admin-Secret") != secret {
			return echo.NewHTTPError(http.StatusForbidden, "admin secret required")
		}
		return next(c)
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.DB.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || len(req.Password) < 8 {
		return echo.NewHTTPError(http.StatusBadRequest, "email and a password of at least 8 characters are required")
	}
	resp, err := s.AuthService.Signup(c.Request().Context(), req)
	if err == auth.ErrUserExists {
		return echo.NewHTTPError(http.StatusConflict, "user already exists")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "signup failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.AuthService.Login(c.Request().Context(), req)
	if err == auth.ErrInvalidCreds {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListNotices(c echo.Context) error {
	filter := db.NoticeFilter{
		OrgName:  c.QueryParam("org"),
		Category: c.QueryParam("category"),
		Limit:    intParam(c, "limit", 100),
		Offset:   intParam(c, "offset", 0),
	}
	if v := c.QueryParam("selected"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.IsSelected = &n
		}
	}
	notices, err := s.Store.ListNotices(c.Request().Context(), filter)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"notices": notices, "count": len(notices)})
}

func (s *Server) handleGetNotice(c echo.Context) error {
	nid, err := strconv.ParseInt(c.Param("nid"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid nid")
	}
	notice, err := s.Store.GetNotice(c.Request().Context(), nid)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "notice not found")
	}
	return c.JSON(http.StatusOK, notice)
}

func (s *Server) handleSetStatus(c echo.Context) error {
	nid, err := strconv.ParseInt(c.Param("nid"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid nid")
	}
	var body struct {
		IsSelected int `json:"is_selected"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	switch body.IsSelected {
	case models.SelectedNew, models.SelectedInProgress, models.SelectedExcluded, models.SelectedResultNotified:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "unknown status")
	}
	if err := s.Store.SetNoticeSelected(c.Request().Context(), nid, body.IsSelected); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "update failed")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListRuns(c echo.Context) error {
	logs, err := s.Store.ListRunLogs(c.Request().Context(), intParam(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "query failed")
	}
	return c.JSON(http.StatusOK, map[string]any{"runs": logs, "count": len(logs)})
}

// handleScrape kicks off a full scrape run in the background. Only one
// run may be in flight; a second request reports the running job.
func (s *Server) handleScrape(c echo.Context) error {
	var body struct {
		Orgs []string `json:"orgs"`
	}
	_ = c.Bind(&body) // empty body means all enabled organizations

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		return c.JSON(http.StatusConflict, s.runningJob)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	job := &backgroundJob{
		ID:          uuid.New().String(),
		Status:      "running",
		RequestedBy: actor(c),
		StartedAt:   time.Now(),
		Cancel:      cancel,
	}
	s.runningJob = job
	log.Printf("scrape job %s requested by user %s", job.ID, job.RequestedBy)

	go func() {
		defer cancel()
		summary, err := s.Orchestrator.Run(ctx, body.Orgs)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = time.Now()
		if err != nil {
			job.Status = "failed"
			job.Error = err.Error()
		} else {
			job.Status = "completed"
		}
		job.Result = summary
	}()

	return c.JSON(http.StatusAccepted, job)
}

func (s *Server) handleJobStatus(c echo.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.runningJob == nil || s.runningJob.ID != c.Param("id") {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	return c.JSON(http.StatusOK, s.runningJob)
}

func (s *Server) handleClassify(c echo.Context) error {
	log.Printf("classification batch requested by user %s", actor(c))
	processed, err := s.Orchestrator.ClassifyBatch(c.Request().Context(), intParam(c, "limit", 200))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "classification failed")
	}
	return c.JSON(http.StatusOK, map[string]int{"processed": processed})
}

func (s *Server) handleDetails(c echo.Context) error {
	collected, err := s.Orchestrator.ScrapeDetails(c.Request().Context(), c.QueryParam("org"), intParam(c, "limit", 50))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "detail collection failed")
	}
	return c.JSON(http.StatusOK, map[string]int{"collected": collected})
}

func intParam(c echo.Context, name string, fallback int) int {
	v := c.QueryParam(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
