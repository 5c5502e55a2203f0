package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type fakeDB struct {
	mu    sync.Mutex
	rows  [][]any
	err   error
	delay time.Duration
	sawDL bool
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if _, ok := ctx.Deadline(); ok {
		f.mu.Lock()
		f.sawDL = true
		f.mu.Unlock()
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return pgconn.CommandTag{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return pgconn.CommandTag{}, f.err
	}
	f.rows = append(f.rows, args)
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWriter_RecordAndClose(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(db, time.Second, 2, 16, quietLogger())

	for i := 0; i < 5; i++ {
		w.Record(Entry{RequestID: "req", Provider: "versand.dhl", Method: "GET", Path: "/track/shipments", Status: 200, Outcome: "success"})
	}
	w.Close()

	if len(db.rows) != 5 {
		t.Fatalf("expected 5 rows, got %d", len(db.rows))
	}
	if !db.sawDL {
		t.Error("insert ran without a deadline")
	}
	row := db.rows[0]
	if row[3] != "versand.dhl" {
		t.Errorf("provider column = %v", row[3])
	}
	if status, ok := row[6].(*int); !ok || *status != 200 {
		t.Errorf("upstream_status column = %v", row[6])
	}
	if created, ok := row[9].(time.Time); !ok || created.IsZero() {
		t.Errorf("created_at not defaulted: %v", row[9])
	}
}

func TestWriter_NoStatusIsNull(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(db, time.Second, 1, 4, quietLogger())
	w.Record(Entry{RequestID: "req", Provider: "geo.x", Outcome: "network_error"})
	w.Close()

	if len(db.rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(db.rows))
	}
	if status := db.rows[0][6].(*int); status != nil {
		t.Errorf("expected NULL status, got %d", *status)
	}
}

func TestWriter_InsertTimeout(t *testing.T) {
	db := &fakeDB{delay: time.Second}
	w := NewWriter(db, 20*time.Millisecond, 1, 4, quietLogger())

	start := time.Now()
	w.Record(Entry{RequestID: "req"})
	w.Close()

	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("insert was not bounded by the timeout: %v", elapsed)
	}
	if len(db.rows) != 0 {
		t.Errorf("timed-out insert should not be stored")
	}
}

func TestWriter_InsertErrorIsLogged(t *testing.T) {
	db := &fakeDB{err: errors.New("relation call_audit does not exist")}
	w := NewWriter(db, time.Second, 1, 4, quietLogger())
	w.Record(Entry{RequestID: "req"})
	w.Close()
}

func TestWriter_DropsAfterClose(t *testing.T) {
	db := &fakeDB{}
	w := NewWriter(db, time.Second, 1, 4, quietLogger())
	w.Close()
	w.Close()

	w.Record(Entry{RequestID: "late"})
	if len(db.rows) != 0 {
		t.Errorf("entry recorded after Close")
	}
}

func TestWriter_DropsWhenFull(t *testing.T) {
	db := &fakeDB{delay: 50 * time.Millisecond}
	w := NewWriter(db, time.Second, 1, 1, quietLogger())

	for i := 0; i < 10; i++ {
		w.Record(Entry{RequestID: "burst"})
	}
	w.Close()

	if len(db.rows) >= 10 {
		t.Errorf("expected some entries to be dropped, stored %d", len(db.rows))
	}
}
