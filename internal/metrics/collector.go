// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpCrawlRun    = "crawl_run"
	OpEmbedding   = "embedding"
	OpLLMGenerate = "llm_generate"
	OpLLMStream   = "llm_stream"
	OpDBSearch    = "db_search"
)

type opStats struct {
	count            int64
	totalTime        time.Duration
	minTime          time.Duration
	maxTime          time.Duration
	promptTokens     int64
	completionTokens int64
}

// OperationSnapshot holds computed stats for one operation.
// Token fields are only populated for LLM operations.
type OperationSnapshot struct {
	Count            int64   `json:"count"`
	TotalTimeMs      int64   `json:"total_time_ms"`
	AvgTimeMs        float64 `json:"avg_time_ms"`
	MinTimeMs        int64   `json:"min_time_ms"`
	MaxTimeMs        int64   `json:"max_time_ms"`
	PromptTokens     int64   `json:"prompt_tokens,omitempty"`
	CompletionTokens int64   `json:"completion_tokens,omitempty"`
}

// Snapshot is the full process statistics at a point in time. It is
// what the stats endpoint serializes.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	CrawlRun      *OperationSnapshot `json:"crawl_run,omitempty"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	LLMStream     *OperationSnapshot `json:"llm_stream,omitempty"`
	DBSearch      *OperationSnapshot `json:"db_search,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*opStats
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*opStats),
	}
}

// record adds one timed observation. Caller must hold the write lock.
func (c *Collector) record(op string, duration time.Duration) *opStats {
	m, ok := c.ops[op]
	if !ok {
		m = &opStats{}
		c.ops[op] = m
	}
	m.count++
	m.totalTime += duration
	if m.count == 1 || duration < m.minTime {
		m.minTime = duration
	}
	if duration > m.maxTime {
		m.maxTime = duration
	}
	return m
}

// RecordTiming records the duration of one operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(op, duration)
}

// RecordLLMUsage records duration and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, promptTokens, completionTokens int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := c.record(op, duration)
	m.promptTokens += promptTokens
	m.completionTokens += completionTokens
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		CrawlRun:      snapshotOp(c.ops[OpCrawlRun]),
		Embedding:     snapshotOp(c.ops[OpEmbedding]),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate]),
		LLMStream:     snapshotOp(c.ops[OpLLMStream]),
		DBSearch:      snapshotOp(c.ops[OpDBSearch]),
	}
}

func snapshotOp(m *opStats) *OperationSnapshot {
	if m == nil || m.count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:            m.count,
		TotalTimeMs:      m.totalTime.Milliseconds(),
		AvgTimeMs:        float64(m.totalTime.Milliseconds()) / float64(m.count),
		MinTimeMs:        m.minTime.Milliseconds(),
		MaxTimeMs:        m.maxTime.Milliseconds(),
		PromptTokens:     m.promptTokens,
		CompletionTokens: m.completionTokens,
	}
}
