package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// CreateSite registers a new site with status NEW.
func (c *Client) CreateSite(
	ctx context.Context,
	workspaceID string,
	name string,
	baseURL string,
	cfg models.CrawlConfig,
) (*models.Site, error) {
	sql := `
		CREATE type::record("site", $id) SET
			workspace_id = $workspace_id,
			name = $name,
			base_url = $base_url,
			status = 'NEW',
			crawl_config = $crawl_config
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Site](ctx, c.db, sql, map[string]any{
		"id":           uuid.NewString(),
		"workspace_id": workspaceID,
		"name":         name,
		"base_url":     baseURL,
		"crawl_config": cfg,
	})
	if err != nil {
		return nil, fmt.Errorf("create site: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create site: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetSite retrieves a site by ID. Returns nil if not found.
func (c *Client) GetSite(ctx context.Context, id string) (*models.Site, error) {
	results, err := surrealdb.Query[[]models.Site](ctx, c.db, `
		SELECT * FROM type::record("site", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// ListSites returns sites for a workspace, most recently updated first.
func (c *Client) ListSites(ctx context.Context, workspaceID string, limit int) ([]models.Site, error) {
	results, err := surrealdb.Query[[]models.Site](ctx, c.db, `
		SELECT * FROM site WHERE workspace_id = $workspace_id
		ORDER BY updated_at DESC
		LIMIT $limit
	`, map[string]any{"workspace_id": workspaceID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Site{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdateSiteStatus transitions a site's lifecycle status. READY also
// stamps last_crawled_at, marking the crawl that produced the index.
func (c *Client) UpdateSiteStatus(ctx context.Context, id string, status models.SiteStatus) error {
	sql := `
		UPDATE type::record("site", $id) SET
			status = $status,
			updated_at = time::now()
	`
	if status == models.SiteStatusReady {
		sql = `
			UPDATE type::record("site", $id) SET
				status = $status,
				last_crawled_at = time::now(),
				updated_at = time::now()
		`
	}

	_, err := surrealdb.Query[any](ctx, c.db, sql, map[string]any{
		"id":     id,
		"status": string(status),
	})
	if err != nil {
		return fmt.Errorf("update site status: %w", err)
	}
	return nil
}

// UpdateSiteCrawlConfig replaces a site's crawl configuration.
func (c *Client) UpdateSiteCrawlConfig(ctx context.Context, id string, cfg models.CrawlConfig) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("site", $id) SET
			crawl_config = $crawl_config,
			updated_at = time::now()
	`, map[string]any{"id": id, "crawl_config": cfg})
	if err != nil {
		return fmt.Errorf("update site crawl config: %w", err)
	}
	return nil
}
