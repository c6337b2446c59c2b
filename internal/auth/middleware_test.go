package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func authContext(t *testing.T, header string) echo.Context {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/notices", nil)
	if header != "" {
		req.Header.Set(echo.HeaderAuthorization, header)
	}
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestMiddlewarePassesIssuedToken(t *testing.T) {
	userID := uuid.New()
	token, err := generateToken(userID)
	if err != nil {
		t.Fatalf("generateToken: %v", err)
	}

	called := false
	h := Middleware(func(c echo.Context) error {
		called = true
		got, ok := UserIDFromContext(c)
		if !ok {
			t.Error("user ID missing from context")
		}
		if got != userID {
			t.Errorf("user ID = %s, want %s", got, userID)
		}
		return nil
	})

	if err := h(authContext(t, "Bearer "+token)); err != nil {
		t.Fatalf("middleware rejected a valid token: %v", err)
	}
	if !called {
		t.Fatal("handler was not invoked")
	}
}

func TestMiddlewareRejectsBadTokens(t *testing.T) {
	expired := func(t *testing.T) string {
		t.Helper()
		secret, err := jwtSecretFromEnv()
		if err != nil {
			t.Fatalf("jwtSecretFromEnv: %v", err)
		}
		claims := jwt.MapClaims{
			"sub": uuid.New().String(),
			"iat": time.Now().Add(-48 * time.Hour).Unix(),
			"exp": time.Now().Add(-24 * time.Hour).Unix(),
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		if err != nil {
			t.Fatalf("sign expired token: %v", err)
		}
		return signed
	}

	tests := []struct {
		name   string
		header func(t *testing.T) string
	}{
		{"Missing header", func(*testing.T) string { return "" }},
		{"Wrong scheme", func(*testing.T) string { return "Basic dXNlcjpwdw" }},
		{"Empty token", func(*testing.T) string { return "Bearer  " }},
		{"Garbage token", func(*testing.T) string { return "Bearer not.a.jwt" }},
		{"Expired token", func(t *testing.T) string { return "Bearer " + expired(t) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Middleware(func(c echo.Context) error {
				t.Error("handler must not run")
				return nil
			})
			err := h(authContext(t, tt.header(t)))
			httpErr, ok := err.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %v", err)
			}
			if httpErr.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", httpErr.Code, http.StatusUnauthorized)
			}
		})
	}
}
