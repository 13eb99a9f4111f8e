package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenfund/lumenfund/internal/gateway"
	"github.com/lumenfund/lumenfund/internal/org"
)

type machineFixture struct {
	machine     *StateMachine
	gateway     *scriptedGateway
	subs        *InMemorySubscriptionRepository
	instruments *InMemoryInstrumentRepository
	orgs        *org.InMemoryRepository
	org         *org.Organization
	sub         *Subscription
	now         time.Time
}

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()
	ctx := context.Background()

	subs := NewInMemorySubscriptionRepository()
	instruments := NewInMemoryInstrumentRepository()
	orgs := org.NewInMemoryRepository()
	plans := NewInMemoryPlanRepository(&Plan{
		ID: "plan_pro_monthly", Tier: org.TierPro, AmountCents: 1900, Currency: "USD", Interval: IntervalMonthly,
	})

	domain := "donate.riverbend.org"
	o := &org.Organization{
		Name:         "Riverbend Food Bank",
		Tier:         org.TierPro,
		CustomDomain: &domain,
	}
	if err := orgs.Insert(ctx, o); err != nil {
		t.Fatalf("failed to seed org: %v", err)
	}

	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	sub := &Subscription{
		OrgID:           o.ID,
		PlanID:          "plan_pro_monthly",
		Status:          SubscriptionActive,
		NextBillingDate: now,
	}
	if err := subs.Insert(ctx, sub); err != nil {
		t.Fatalf("failed to seed subscription: %v", err)
	}

	gw := &scriptedGateway{outcomes: map[string]*gateway.ChargeResult{}, errs: map[string]error{}}
	machine := NewStateMachine(NewInMemoryStore(subs, instruments, plans, orgs), gw, nil, nil)
	f := &machineFixture{
		machine: machine, gateway: gw,
		subs: subs, instruments: instruments, orgs: orgs,
		org: o, sub: sub, now: now,
	}
	machine.now = func() time.Time { return f.now }
	return f
}

func (f *machineFixture) addInstrument(t *testing.T, id string, priority int, isDefault bool) {
	t.Helper()
	ins := &PaymentInstrument{
		ID: id, OrgID: f.org.ID, GatewayRef: "ref_" + id,
		Priority: priority, IsDefault: isDefault, Status: InstrumentActive,
	}
	if err := f.instruments.Insert(context.Background(), ins); err != nil {
		t.Fatalf("failed to seed instrument: %v", err)
	}
}

func (f *machineFixture) decline(id, reason string) {
	f.gateway.outcomes["ref_"+id] = &gateway.ChargeResult{Status: gateway.ChargeDeclined, DeclineReason: reason}
}

func (f *machineFixture) subscription(t *testing.T) *Subscription {
	t.Helper()
	sub, err := f.subs.GetByID(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("subscription get failed: %v", err)
	}
	return sub
}

// TestProcessCycle_Charged tests a successful renewal: counters reset, the
// settling instrument becomes primary, and the next billing date advances
// one interval.
func TestProcessCycle_Charged(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)

	result, err := f.machine.ProcessCycle(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Outcome != CycleCharged {
		t.Fatalf("outcome = %s, want charged", result.Outcome)
	}

	sub := f.subscription(t)
	if sub.Status != SubscriptionActive || sub.FailedAttempts != 0 {
		t.Errorf("status=%s attempts=%d, want active/0", sub.Status, sub.FailedAttempts)
	}
	if sub.PrimaryPaymentMethodID == nil || *sub.PrimaryPaymentMethodID != "ins_a" {
		t.Errorf("primary = %v, want ins_a", sub.PrimaryPaymentMethodID)
	}
	want := f.now.AddDate(0, 1, 0)
	if !sub.NextBillingDate.Equal(want) {
		t.Errorf("next billing %v, want %v", sub.NextBillingDate, want)
	}
	if sub.NextRetryDate != nil || sub.FirstFailureAt != nil {
		t.Error("failure bookkeeping must be cleared on success")
	}
}

// TestProcessCycle_FallbackInstrumentSettles tests that the renewal falls
// back past a declining default and records the settling instrument.
func TestProcessCycle_FallbackInstrumentSettles(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)
	f.addInstrument(t, "ins_b", 2, false)
	f.decline("ins_a", "insufficient_funds")

	result, err := f.machine.ProcessCycle(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Outcome != CycleCharged {
		t.Fatalf("outcome = %s, want charged", result.Outcome)
	}
	if result.Charge.Instrument.ID != "ins_b" || result.Charge.Attempted != 2 {
		t.Errorf("settled on %s after %d attempts, want ins_b after 2",
			result.Charge.Instrument.ID, result.Charge.Attempted)
	}
	sub := f.subscription(t)
	if sub.PrimaryPaymentMethodID == nil || *sub.PrimaryPaymentMethodID != "ins_b" {
		t.Errorf("primary = %v, want ins_b", sub.PrimaryPaymentMethodID)
	}
}

// TestProcessCycle_FirstFailureSchedulesRetry tests that exhausting every
// instrument opens the grace window and schedules the two-day retry.
func TestProcessCycle_FirstFailureSchedulesRetry(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)
	f.decline("ins_a", "do_not_honor")

	result, err := f.machine.ProcessCycle(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Outcome != CycleRetryScheduled {
		t.Fatalf("outcome = %s, want retry_scheduled", result.Outcome)
	}

	sub := f.subscription(t)
	if sub.FailedAttempts != 1 {
		t.Errorf("failed attempts = %d, want 1", sub.FailedAttempts)
	}
	if sub.Status != SubscriptionActive {
		t.Errorf("status = %s, want active during grace", sub.Status)
	}
	if sub.FirstFailureAt == nil || !sub.FirstFailureAt.Equal(f.now) {
		t.Errorf("first failure at %v, want %v", sub.FirstFailureAt, f.now)
	}
	if sub.NextRetryDate == nil || !sub.NextRetryDate.Equal(f.now.Add(FirstRetryDelay)) {
		t.Errorf("retry at %v, want %v", sub.NextRetryDate, f.now.Add(FirstRetryDelay))
	}
	if sub.GracePeriodEndsAt == nil || !sub.GracePeriodEndsAt.Equal(f.now.Add(GracePeriod)) {
		t.Errorf("grace ends %v, want %v", sub.GracePeriodEndsAt, f.now.Add(GracePeriod))
	}
}

// TestProcessCycle_ThirdFailurePastGraceCancels tests the full downgrade
// path: three exhausted cycles across the grace window cancel the
// subscription and drop the organization to the free tier with its custom
// domain preserved.
func TestProcessCycle_ThirdFailurePastGraceCancels(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)
	f.decline("ins_a", "do_not_honor")
	ctx := context.Background()

	// Failures at day 0, day 2, and just past the day-7 grace boundary.
	for i, advance := range []time.Duration{0, FirstRetryDelay, GracePeriod - FirstRetryDelay + time.Hour} {
		f.now = f.now.Add(advance)
		result, err := f.machine.ProcessCycle(ctx, f.sub.ID)
		if err != nil {
			t.Fatalf("cycle %d failed: %v", i+1, err)
		}
		if i < 2 && result.Outcome != CycleRetryScheduled {
			t.Fatalf("cycle %d outcome = %s, want retry_scheduled", i+1, result.Outcome)
		}
		if i == 2 && result.Outcome != CycleCanceled {
			t.Fatalf("final cycle outcome = %s, want canceled", result.Outcome)
		}
	}

	sub := f.subscription(t)
	if sub.Status != SubscriptionCanceled || sub.FailedAttempts != 3 {
		t.Errorf("status=%s attempts=%d, want canceled/3", sub.Status, sub.FailedAttempts)
	}
	if sub.NextRetryDate != nil {
		t.Error("canceled subscription must not carry a retry date")
	}

	o, err := f.orgs.GetByID(ctx, f.org.ID)
	if err != nil {
		t.Fatalf("org get failed: %v", err)
	}
	if o.Tier != org.TierFree || o.SubscriptionStatus != SubscriptionCanceled {
		t.Errorf("org tier=%s status=%s, want free/canceled", o.Tier, o.SubscriptionStatus)
	}
	if o.CustomDomain == nil || *o.CustomDomain != "donate.riverbend.org" {
		t.Error("custom domain must survive the downgrade")
	}

	// Further cycles against the terminal subscription refuse to run.
	if _, err := f.machine.ProcessCycle(ctx, f.sub.ID); !errors.Is(err, ErrSubscriptionCanceled) {
		t.Errorf("expected ErrSubscriptionCanceled, got %v", err)
	}
}

// TestProcessCycle_ThirdFailureInsideGraceGetsFinalRetry tests that a third
// exhausted cycle before day seven marks the subscription past due with one
// final retry at the grace boundary instead of canceling.
func TestProcessCycle_ThirdFailureInsideGraceGetsFinalRetry(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)
	f.decline("ins_a", "do_not_honor")
	ctx := context.Background()

	graceEnd := f.now.Add(GracePeriod)
	for _, advance := range []time.Duration{0, 24 * time.Hour, 24 * time.Hour} {
		f.now = f.now.Add(advance)
		if _, err := f.machine.ProcessCycle(ctx, f.sub.ID); err != nil {
			t.Fatalf("cycle failed: %v", err)
		}
	}

	sub := f.subscription(t)
	if sub.Status != SubscriptionPastDue {
		t.Errorf("status = %s, want past_due", sub.Status)
	}
	if sub.NextRetryDate == nil || !sub.NextRetryDate.Equal(graceEnd) {
		t.Errorf("retry at %v, want grace boundary %v", sub.NextRetryDate, graceEnd)
	}

	o, _ := f.orgs.GetByID(ctx, f.org.ID)
	if o.Tier != org.TierPro {
		t.Error("organization must not be downgraded while the final retry is pending")
	}
}

// TestProcessCycle_SuccessAfterFailuresResets tests recovery: a settlement
// on the retry path clears the failure bookkeeping entirely.
func TestProcessCycle_SuccessAfterFailuresResets(t *testing.T) {
	f := newMachineFixture(t)
	f.addInstrument(t, "ins_a", 1, true)
	f.decline("ins_a", "do_not_honor")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.machine.ProcessCycle(ctx, f.sub.ID); err != nil {
			t.Fatalf("cycle failed: %v", err)
		}
	}
	delete(f.gateway.outcomes, "ref_ins_a")

	result, err := f.machine.ProcessCycle(ctx, f.sub.ID)
	if err != nil {
		t.Fatalf("recovery cycle failed: %v", err)
	}
	if result.Outcome != CycleCharged {
		t.Fatalf("outcome = %s, want charged", result.Outcome)
	}

	sub := f.subscription(t)
	if sub.FailedAttempts != 0 || sub.Status != SubscriptionActive {
		t.Errorf("status=%s attempts=%d, want active/0", sub.Status, sub.FailedAttempts)
	}
	if sub.FirstFailureAt != nil || sub.GracePeriodEndsAt != nil || sub.NextRetryDate != nil {
		t.Error("failure bookkeeping must be cleared on recovery")
	}
}

// TestProcessCycle_NoPaymentMethod tests the distinct no-instrument
// condition: past due immediately, no failure counted, no retry scheduled.
func TestProcessCycle_NoPaymentMethod(t *testing.T) {
	f := newMachineFixture(t)

	result, err := f.machine.ProcessCycle(context.Background(), f.sub.ID)
	if err != nil {
		t.Fatalf("cycle failed: %v", err)
	}
	if result.Outcome != CycleNoPaymentMethod {
		t.Fatalf("outcome = %s, want no_payment_method", result.Outcome)
	}

	sub := f.subscription(t)
	if sub.Status != SubscriptionPastDue {
		t.Errorf("status = %s, want past_due", sub.Status)
	}
	if sub.FailedAttempts != 0 {
		t.Errorf("failed attempts = %d, want 0 when nothing was tried", sub.FailedAttempts)
	}
	if sub.NextRetryDate != nil {
		t.Error("no retry may be scheduled without an instrument to retry")
	}
	if len(f.gateway.calls) != 0 {
		t.Errorf("gateway called %d times with no instruments", len(f.gateway.calls))
	}
}

// TestProcessCycle_UnknownSubscription tests the not-found error path.
func TestProcessCycle_UnknownSubscription(t *testing.T) {
	f := newMachineFixture(t)
	if _, err := f.machine.ProcessCycle(context.Background(), "sub_missing"); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Errorf("expected ErrSubscriptionNotFound, got %v", err)
	}
}
