package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubPurgeLedger struct {
	deleted int64
	err     error
	cutoff  time.Time
}

func (l *stubPurgeLedger) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	l.cutoff = cutoff
	return l.deleted, l.err
}

func TestPurger_Run(t *testing.T) {
	ledger := &stubPurgeLedger{deleted: 42}
	purger := NewPurger(ledger, 90*24*time.Hour, NewMetrics(), nil)

	deleted, err := purger.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if deleted != 42 {
		t.Errorf("deleted = %d, want 42", deleted)
	}

	wantCutoff := time.Now().Add(-90 * 24 * time.Hour)
	if diff := ledger.cutoff.Sub(wantCutoff); diff < -time.Minute || diff > time.Minute {
		t.Errorf("cutoff = %v, want about %v", ledger.cutoff, wantCutoff)
	}
}

func TestPurger_Run_Error(t *testing.T) {
	ledger := &stubPurgeLedger{err: errors.New("connection refused")}
	purger := NewPurger(ledger, time.Hour, nil, nil)

	if _, err := purger.Run(context.Background()); err == nil {
		t.Error("expected error from failed purge")
	}
}
