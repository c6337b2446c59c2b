package models

import (
	"time"

	"github.com/google/uuid"
)

// Workflow states carried in Notice.IsSelected.
const (
	SelectedNew            = 0  // freshly scraped, untriaged
	SelectedInProgress     = 1  // staff picked it up
	SelectedExcluded       = -1 // triaged out
	SelectedResultNotified = 9  // outcome announcement, no longer an open bid
)

// Notice is one persisted bid notice. (OrgName, DetailURL) is unique;
// SN increases strictly per organization in scrape order.
type Notice struct {
	NID        int64     `json:"nid"`
	SN         int64     `json:"sn"`
	OrgName    string    `json:"org_name"`
	Title      string    `json:"title"`
	DetailURL  string    `json:"detail_url"`
	PostedDate string    `json:"posted_date"` // YYYY-MM-DD, never future-dated
	PostedBy   string    `json:"posted_by"`
	Category   *string   `json:"category"` // nil until classified
	IsSelected int       `json:"is_selected"`
	ScrapedAt  time.Time `json:"scraped_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// NoticeDetail holds the fields collected from a notice's own page.
type NoticeDetail struct {
	NID         int64     `json:"nid"`
	Title       string    `json:"title"`
	BodyHTML    string    `json:"body_html"`
	FileName    string    `json:"file_name"`
	FileURL     string    `json:"file_url"`
	NoticeDiv   string    `json:"notice_div"`
	NoticeNum   string    `json:"notice_num"`
	OrgDept     string    `json:"org_dept"`
	OrgMan      string    `json:"org_man"`
	OrgTel      string    `json:"org_tel"`
	CollectedAt time.Time `json:"collected_at"`
}

// RunLog is one organization's audit record for one scrape run. Written
// once, never mutated.
type RunLog struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	OrgName       string    `json:"org_name"`
	ScrapedCount  int       `json:"scraped_count"`
	NewCount      int       `json:"new_count"`
	InsertedCount int       `json:"inserted_count"`
	ErrorCode     *int      `json:"error_code"`
	ErrorMessage  *string   `json:"error_message"`
	Time          time.Time `json:"time"`
}

// CategoryRule is the stored form of one weighted keyword rule.
type CategoryRule struct {
	ID         int64  `json:"id"`
	Category   string `json:"category"`
	Keywords   string `json:"keywords"` // "keyword*weight" entries, comma-separated
	Exclusions string `json:"exclusions"`
	MinPoint   int    `json:"min_point"`
	Priority   int    `json:"priority"`
}

// User is an API account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
