// Package audit appends one row per relayed call to the call_audit table.
// Rows never hold credentials, query strings or bodies.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Entry is one relayed call.
type Entry struct {
	RequestID  string
	KeyID      string
	OrgID      string
	Provider   string
	Method     string
	Path       string // without query string
	Status     int    // upstream status, 0 when none
	Outcome    string // "success" or a gateway error kind
	DurationMs int64
	CreatedAt  time.Time
}

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const insertSQL = `
	INSERT INTO call_audit (request_id, key_id, organization_id, provider, method, path,
	                        upstream_status, outcome, duration_ms, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

// Writer records entries asynchronously through a bounded queue and a small
// worker pool. Each insert runs under its own timeout so a slow database
// never holds a relay request.
type Writer struct {
	db      Execer
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.RWMutex
	closed bool
	tasks  chan Entry
	wg     sync.WaitGroup
}

// NewWriter starts workers goroutines draining a queue of bufferSize entries.
func NewWriter(db Execer, timeout time.Duration, workers, bufferSize int, logger *slog.Logger) *Writer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		db:      db,
		timeout: timeout,
		logger:  logger,
		tasks:   make(chan Entry, max(bufferSize, 1)),
	}
	for range max(workers, 1) {
		w.wg.Add(1)
		go w.run()
	}
	return w
}

// Record queues e. When the queue is full or the writer is closed the entry
// is dropped with a warning.
func (w *Writer) Record(e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		w.logger.Warn("audit writer closed, dropping entry", "request_id", e.RequestID)
		return
	}
	select {
	case w.tasks <- e:
	default:
		w.logger.Warn("audit buffer full, dropping entry", "request_id", e.RequestID, "provider", e.Provider)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()
	for e := range w.tasks {
		w.insert(e)
	}
}

func (w *Writer) insert(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var status *int
	if e.Status != 0 {
		status = &e.Status
	}
	_, err := w.db.Exec(ctx, insertSQL,
		e.RequestID, e.KeyID, e.OrgID, e.Provider, e.Method, e.Path,
		status, e.Outcome, e.DurationMs, e.CreatedAt)
	if err != nil {
		w.logger.Error("audit insert failed", "request_id", e.RequestID, "provider", e.Provider, "error", err)
	}
}

// Close stops accepting entries and waits for queued ones to be written.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.tasks)
	w.mu.Unlock()
	w.wg.Wait()
}
