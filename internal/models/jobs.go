package models

// CrawlJob is the payload of one queued crawl unit of work.
type CrawlJob struct {
	RunID       string      `json:"run_id"`
	SiteID      string      `json:"site_id"`
	WorkspaceID string      `json:"workspace_id"`
	BaseURL     string      `json:"base_url"`
	CrawlConfig CrawlConfig `json:"crawl_config"`
}

// EmbeddingJob is the payload of one queued embedding unit of work.
type EmbeddingJob struct {
	PageID      string `json:"page_id"`
	WorkspaceID string `json:"workspace_id"`
	SiteID      string `json:"site_id"`
}
