package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// CrawlRunStatus represents the state of one crawl attempt.
type CrawlRunStatus string

const (
	CrawlRunStatusQueued    CrawlRunStatus = "QUEUED"
	CrawlRunStatusRunning   CrawlRunStatus = "RUNNING"
	CrawlRunStatusSucceeded CrawlRunStatus = "SUCCEEDED"
	CrawlRunStatusFailed    CrawlRunStatus = "FAILED"
	CrawlRunStatusCancelled CrawlRunStatus = "CANCELLED"
)

// Terminal reports whether the status is final.
func (s CrawlRunStatus) Terminal() bool {
	switch s {
	case CrawlRunStatusSucceeded, CrawlRunStatusFailed, CrawlRunStatusCancelled:
		return true
	}
	return false
}

// CrawlRun records one crawl attempt for a Site.
// Counts are monotonically non-decreasing within a run.
type CrawlRun struct {
	ID              surrealmodels.RecordID `json:"id"`
	WorkspaceID     string                 `json:"workspace_id"`
	SiteID          string                 `json:"site_id"`
	Status          CrawlRunStatus         `json:"status"`
	PagesDiscovered int                    `json:"pages_discovered"`
	PagesFetched    int                    `json:"pages_fetched"`
	PagesEmbedded   int                    `json:"pages_embedded"`
	PagesErrored    int                    `json:"pages_errored"`
	ErrorSummary    *string                `json:"error_summary,omitempty"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	FinishedAt      *time.Time             `json:"finished_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// CrawlCounts carries the progress counters persisted during a run.
type CrawlCounts struct {
	Discovered int `json:"pages_discovered"`
	Fetched    int `json:"pages_fetched"`
	Embedded   int `json:"pages_embedded"`
	Errored    int `json:"pages_errored"`
}

// PageStatus represents the processing state of one URL.
type PageStatus string

const (
	PageStatusNew      PageStatus = "NEW"
	PageStatusFetched  PageStatus = "FETCHED"
	PageStatusEmbedded PageStatus = "EMBEDDED"
	PageStatusError    PageStatus = "ERROR"
	PageStatusSkipped  PageStatus = "SKIPPED"
)

// Page represents one normalized URL within a Site.
// Unique per (site, url); the content hash gates re-processing.
type Page struct {
	ID            surrealmodels.RecordID `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"`
	SiteID        string                 `json:"site_id"`
	URL           string                 `json:"url"`
	Title         *string                `json:"title,omitempty"`
	RawContent    *string                `json:"raw_content,omitempty"`
	ContentHash   *string                `json:"content_hash,omitempty"`
	Status        PageStatus             `json:"status"`
	HTTPStatus    *int                   `json:"http_status,omitempty"`
	MimeType      *string                `json:"mime_type,omitempty"`
	Error         *string                `json:"error,omitempty"`
	LastCrawledAt *time.Time             `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}
