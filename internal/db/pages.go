package db

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// pageKey derives a deterministic record ID from (site, url) so page
// upserts are idempotent without a lookup round-trip.
func pageKey(siteID, url string) string {
	sum := sha256.Sum256([]byte(siteID + "\n" + url))
	return hex.EncodeToString(sum[:16])
}

// PageUpsert carries the fields written when a page is (re)crawled.
type PageUpsert struct {
	WorkspaceID string
	SiteID      string
	URL         string
	Title       *string
	RawContent  *string
	ContentHash *string
	Status      models.PageStatus
	HTTPStatus  *int
	MimeType    *string
	Error       *string
}

// UpsertPage creates or updates the page for (site, url) and stamps
// last_crawled_at. Returns the stored page.
func (c *Client) UpsertPage(ctx context.Context, p PageUpsert) (*models.Page, error) {
	sql := `
		UPSERT type::record("page", $id) SET
			workspace_id = $workspace_id,
			site_id = $site_id,
			url = $url,
			title = $title,
			raw_content = $raw_content,
			content_hash = $content_hash,
			status = $status,
			http_status = $http_status,
			mime_type = $mime_type,
			error = $error,
			last_crawled_at = time::now(),
			updated_at = time::now(),
			created_at = IF created_at THEN created_at ELSE time::now() END
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.Page](ctx, c.db, sql, map[string]any{
		"id":           pageKey(p.SiteID, p.URL),
		"workspace_id": p.WorkspaceID,
		"site_id":      p.SiteID,
		"url":          p.URL,
		"title":        p.Title,
		"raw_content":  p.RawContent,
		"content_hash": p.ContentHash,
		"status":       string(p.Status),
		"http_status":  p.HTTPStatus,
		"mime_type":    p.MimeType,
		"error":        p.Error,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert page: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("upsert page: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetPage retrieves a page by ID. Returns nil if not found.
func (c *Client) GetPage(ctx context.Context, id string) (*models.Page, error) {
	results, err := surrealdb.Query[[]models.Page](ctx, c.db, `
		SELECT * FROM type::record("page", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get page: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetPageByURL retrieves the page for (site, url). Returns nil if the
// URL has never been crawled for this site.
func (c *Client) GetPageByURL(ctx context.Context, siteID, url string) (*models.Page, error) {
	return c.GetPage(ctx, pageKey(siteID, url))
}

// ListPages returns pages for a site, most recently crawled first.
func (c *Client) ListPages(ctx context.Context, siteID string, limit int) ([]models.Page, error) {
	results, err := surrealdb.Query[[]models.Page](ctx, c.db, `
		SELECT * FROM page WHERE site_id = $site_id
		ORDER BY last_crawled_at DESC
		LIMIT $limit
	`, map[string]any{"site_id": siteID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.Page{}, nil
	}
	return (*results)[0].Result, nil
}

// UpdatePageStatus sets a page's processing status and error message.
func (c *Client) UpdatePageStatus(ctx context.Context, id string, status models.PageStatus, errMsg *string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("page", $id) SET
			status = $status,
			error = $error,
			updated_at = time::now()
	`, map[string]any{
		"id":     id,
		"status": string(status),
		"error":  errMsg,
	})
	if err != nil {
		return fmt.Errorf("update page status: %w", err)
	}
	return nil
}
