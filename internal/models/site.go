// Package models defines data structures for the sitechat knowledge base.
package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SiteStatus represents the lifecycle state of a Site.
type SiteStatus string

const (
	SiteStatusNew      SiteStatus = "NEW"
	SiteStatusCrawling SiteStatus = "CRAWLING"
	SiteStatusReady    SiteStatus = "READY"
	SiteStatusError    SiteStatus = "ERROR"
	SiteStatusPaused   SiteStatus = "PAUSED"
)

// CrawlConfig controls one site's crawl behavior.
type CrawlConfig struct {
	MaxPages        int      `json:"max_pages" yaml:"max_pages"`
	MaxDepth        int      `json:"max_depth" yaml:"max_depth"`
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns"`
	RespectRobots   bool     `json:"respect_robots" yaml:"respect_robots"`
	SitemapOnly     bool     `json:"sitemap_only" yaml:"sitemap_only"`
	Concurrency     int      `json:"concurrency" yaml:"concurrency"`
	DelayMs         int      `json:"delay_ms" yaml:"delay_ms"`
}

// DefaultCrawlConfig returns sensible crawl defaults.
func DefaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		MaxPages:      100,
		MaxDepth:      5,
		RespectRobots: true,
		Concurrency:   1,
		DelayMs:       500,
	}
}

// Site represents one indexed website owned by an external workspace.
type Site struct {
	ID            surrealmodels.RecordID `json:"id"`
	WorkspaceID   string                 `json:"workspace_id"`
	Name          string                 `json:"name"`
	BaseURL       string                 `json:"base_url"`
	Status        SiteStatus             `json:"status"`
	CrawlConfig   CrawlConfig            `json:"crawl_config"`
	LastCrawledAt *time.Time             `json:"last_crawled_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}
