package billing

import (
	"testing"
	"time"
)

// TestSchedule_FirstFailure tests the two-day retry after the first failure.
func TestSchedule_FirstFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	action := Schedule(1, now, now)
	if action.Terminal {
		t.Fatal("first failure must not be terminal")
	}
	if action.NextRetryAt == nil || !action.NextRetryAt.Equal(now.Add(FirstRetryDelay)) {
		t.Errorf("retry at %v, want %v", action.NextRetryAt, now.Add(FirstRetryDelay))
	}
	if !action.GraceEndsAt.Equal(now.Add(GracePeriod)) {
		t.Errorf("grace ends %v, want %v", action.GraceEndsAt, now.Add(GracePeriod))
	}
}

// TestSchedule_SecondFailure tests the four-day retry after the second
// failure, anchored on the current time rather than the first failure.
func TestSchedule_SecondFailure(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := first.Add(FirstRetryDelay)

	action := Schedule(2, first, now)
	if action.Terminal {
		t.Fatal("second failure must not be terminal")
	}
	if action.NextRetryAt == nil || !action.NextRetryAt.Equal(now.Add(SecondRetryDelay)) {
		t.Errorf("retry at %v, want %v", action.NextRetryAt, now.Add(SecondRetryDelay))
	}
}

// TestSchedule_ThirdFailureInsideGrace tests that a third failure before the
// grace boundary earns one final retry exactly at the boundary.
func TestSchedule_ThirdFailureInsideGrace(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := first.Add(5 * 24 * time.Hour)

	action := Schedule(3, first, now)
	if action.Terminal {
		t.Fatal("third failure inside grace must not be terminal")
	}
	if action.NextRetryAt == nil || !action.NextRetryAt.Equal(first.Add(GracePeriod)) {
		t.Errorf("retry at %v, want grace boundary %v", action.NextRetryAt, first.Add(GracePeriod))
	}
}

// TestSchedule_ThirdFailurePastGrace tests the terminal decision once the
// grace window has elapsed.
func TestSchedule_ThirdFailurePastGrace(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := first.Add(GracePeriod)

	action := Schedule(3, first, now)
	if !action.Terminal {
		t.Fatal("expected terminal decision at the grace boundary")
	}
	if action.NextRetryAt != nil {
		t.Errorf("terminal action carries a retry time: %v", action.NextRetryAt)
	}
}

// TestSchedule_FourthFailure tests that attempts beyond the budget stay on
// the terminal path.
func TestSchedule_FourthFailure(t *testing.T) {
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	action := Schedule(4, first, first.Add(GracePeriod+time.Hour))
	if !action.Terminal {
		t.Fatal("expected terminal decision past grace")
	}
}
