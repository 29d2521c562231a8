package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/sitechat-go/internal/models"
)

// CreateRun creates a QUEUED crawl run for a site.
func (c *Client) CreateRun(ctx context.Context, workspaceID, siteID string) (*models.CrawlRun, error) {
	sql := `
		CREATE type::record("crawl_run", $id) SET
			workspace_id = $workspace_id,
			site_id = $site_id,
			status = 'QUEUED'
		RETURN AFTER
	`

	results, err := surrealdb.Query[[]models.CrawlRun](ctx, c.db, sql, map[string]any{
		"id":           uuid.NewString(),
		"workspace_id": workspaceID,
		"site_id":      siteID,
	})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("create run: no result returned")
	}
	return &(*results)[0].Result[0], nil
}

// GetRun retrieves a crawl run by ID. Returns nil if not found.
func (c *Client) GetRun(ctx context.Context, id string) (*models.CrawlRun, error) {
	results, err := surrealdb.Query[[]models.CrawlRun](ctx, c.db, `
		SELECT * FROM type::record("crawl_run", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}
	return &(*results)[0].Result[0], nil
}

// GetRunStatus reads only the status field. The crawl loop polls this
// before every frontier pop for cooperative cancellation.
func (c *Client) GetRunStatus(ctx context.Context, id string) (models.CrawlRunStatus, error) {
	type statusRow struct {
		Status models.CrawlRunStatus `json:"status"`
	}

	results, err := surrealdb.Query[[]statusRow](ctx, c.db, `
		SELECT status FROM type::record("crawl_run", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return "", fmt.Errorf("get run status: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("get run status: %w", ErrNotFound)
	}
	return (*results)[0].Result[0].Status, nil
}

// ListRuns returns the most recent crawl runs for a site.
func (c *Client) ListRuns(ctx context.Context, siteID string, limit int) ([]models.CrawlRun, error) {
	results, err := surrealdb.Query[[]models.CrawlRun](ctx, c.db, `
		SELECT * FROM crawl_run WHERE site_id = $site_id
		ORDER BY created_at DESC
		LIMIT $limit
	`, map[string]any{"site_id": siteID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.CrawlRun{}, nil
	}
	return (*results)[0].Result, nil
}

// ListQueuedRuns returns runs waiting to be picked up by a worker,
// oldest first.
func (c *Client) ListQueuedRuns(ctx context.Context, limit int) ([]models.CrawlRun, error) {
	results, err := surrealdb.Query[[]models.CrawlRun](ctx, c.db, `
		SELECT * FROM crawl_run WHERE status = 'QUEUED'
		ORDER BY created_at ASC
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list queued runs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return []models.CrawlRun{}, nil
	}
	return (*results)[0].Result, nil
}

// MarkRunRunning transitions a run to RUNNING and stamps started_at.
func (c *Client) MarkRunRunning(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("crawl_run", $id) SET
			status = 'RUNNING',
			started_at = time::now()
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	return nil
}

// UpdateRunCounts persists the run's progress counters.
func (c *Client) UpdateRunCounts(ctx context.Context, id string, counts models.CrawlCounts) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("crawl_run", $id) SET
			pages_discovered = $discovered,
			pages_fetched = $fetched,
			pages_embedded = $embedded,
			pages_errored = $errored
	`, map[string]any{
		"id":         id,
		"discovered": counts.Discovered,
		"fetched":    counts.Fetched,
		"embedded":   counts.Embedded,
		"errored":    counts.Errored,
	})
	if err != nil {
		return fmt.Errorf("update run counts: %w", err)
	}
	return nil
}

// FinishRun transitions a run to a terminal status and stamps
// finished_at. A run already CANCELLED keeps that status; cooperative
// cancellation must not be overwritten by a later SUCCEEDED.
func (c *Client) FinishRun(ctx context.Context, id string, status models.CrawlRunStatus, errorSummary *string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("crawl_run", $id) SET
			status = IF status = 'CANCELLED' THEN 'CANCELLED' ELSE $status END,
			error_summary = $error_summary,
			finished_at = time::now()
	`, map[string]any{
		"id":            id,
		"status":        string(status),
		"error_summary": errorSummary,
	})
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// CancelRun requests cooperative cancellation of a run. The crawl loop
// observes the status on its next poll; no-op if the run is already in
// another terminal state.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPDATE type::record("crawl_run", $id) SET
			status = 'CANCELLED'
		WHERE status IN ['QUEUED', 'RUNNING']
	`, map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("cancel run: %w", err)
	}
	return nil
}
