package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Action)
	}
	return out
}

func TestExtensionRecordsLedgerEvents(t *testing.T) {
	rec := &sink{}
	l := credits.New(memory.New(),
		credits.WithSweepInterval(0),
		credits.WithPlugin(audithook.New(rec)),
	)
	ctx := context.Background()
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	if err := l.CreatePackage(ctx, &purchase.Package{
		Code: "basic", Name: "Basic", Credits: types.Credits(100), Price: types.USD("5.00"), Active: true,
	}); err != nil {
		t.Fatal(err)
	}
	p, err := l.InitiatePurchase(ctx, credits.PurchaseInput{AccountID: "acct", PackageCode: "basic"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.CompletePurchase(ctx, p.ID, "gw"); err != nil {
		t.Fatal(err)
	}
	r, err := l.Reserve(ctx, credits.ReserveInput{AccountID: "acct", Amount: types.Credits(40), ReferenceID: "job-7", ReferenceType: "job"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Release(ctx, r.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Reserve(ctx, credits.ReserveInput{AccountID: "acct", Amount: types.Credits(101)}); !errors.Is(err, credits.ErrInsufficientFunds) {
		t.Fatalf("err = %v", err)
	}

	want := []string{
		audithook.ActionPackageSaved,
		audithook.ActionPurchaseInitiated,
		audithook.ActionPurchaseCompleted,
		audithook.ActionReserved,
		audithook.ActionReservationReleased,
		audithook.ActionOperationRejected,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("actions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	rejected := rec.events[len(rec.events)-1]
	if rejected.Outcome != audithook.OutcomeFailure || rejected.ResourceID != "acct" {
		t.Errorf("rejected event = %+v", rejected)
	}
	if rejected.Metadata["amount"] != "101" {
		t.Errorf("rejected amount = %v", rejected.Metadata["amount"])
	}
	reserved := rec.events[3]
	if reserved.ResourceID != r.ID || reserved.Metadata["reference_id"] != "job-7" {
		t.Errorf("reserved event = %+v", reserved)
	}
}

func TestEnabledActionsFilter(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionReservationExpired))
	ctx := context.Background()
	r := &reservation.Reservation{ID: "r1", AccountID: "acct", Amount: decimal.NewFromInt(5)}

	_ = ext.OnReserved(ctx, r)
	_ = ext.OnReservationExpired(ctx, r)

	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionReservationExpired {
		t.Errorf("actions = %v", got)
	}
}

func TestDisabledActionsFilter(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionReserved))
	ctx := context.Background()
	r := &reservation.Reservation{ID: "r1", AccountID: "acct", Amount: decimal.NewFromInt(5)}

	_ = ext.OnReserved(ctx, r)
	_ = ext.OnReservationReleased(ctx, r)

	if got := rec.actions(); len(got) != 1 || got[0] != audithook.ActionReservationReleased {
		t.Errorf("actions = %v", got)
	}
}

func TestReconciledSeverity(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec)
	ctx := context.Background()

	_ = ext.OnReconciled(ctx, &txlog.Replay{AccountID: "clean"})
	broken := &txlog.Replay{AccountID: "broken", Discrepancies: []txlog.Discrepancy{
		{Field: "current_balance", Expected: decimal.NewFromInt(10), Actual: decimal.NewFromInt(9)},
	}}
	_ = ext.OnReconciled(ctx, broken)

	if len(rec.events) != 2 {
		t.Fatalf("events = %d", len(rec.events))
	}
	if rec.events[0].Action != audithook.ActionReconciled || rec.events[0].Severity != audithook.SeverityInfo {
		t.Errorf("clean event = %+v", rec.events[0])
	}
	if rec.events[1].Action != audithook.ActionDiscrepancy || rec.events[1].Severity != audithook.SeverityCritical {
		t.Errorf("broken event = %+v", rec.events[1])
	}
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	err := ext.OnOperationRejected(context.Background(), "reserve", []string{"acct"},
		errs.InsufficientFunds("reserve", "acct", decimal.NewFromInt(1), "empty"))
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}
