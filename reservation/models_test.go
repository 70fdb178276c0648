package reservation_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/reservation"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func held() *reservation.Reservation {
	return &reservation.Reservation{
		ID:        "job-1",
		AccountID: "acct",
		Amount:    decimal.NewFromInt(200),
		Status:    reservation.StatusReserved,
		ExpiresAt: t0.Add(10 * time.Minute),
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		name    string
		apply   func(r *reservation.Reservation) error
		want    reservation.Status
		wantErr error
	}{
		{"confirm before expiry", func(r *reservation.Reservation) error { return r.Confirm(t0) }, reservation.StatusConfirmed, nil},
		{"confirm at expiry", func(r *reservation.Reservation) error { return r.Confirm(t0.Add(10 * time.Minute)) }, reservation.StatusReserved, errs.ErrReservationExpired},
		{"release", func(r *reservation.Reservation) error { return r.Release(t0) }, reservation.StatusReleased, nil},
		{"release after expiry", func(r *reservation.Reservation) error { return r.Release(t0.Add(time.Hour)) }, reservation.StatusReleased, nil},
		{"expire when due", func(r *reservation.Reservation) error { return r.Expire(t0.Add(11 * time.Minute)) }, reservation.StatusExpired, nil},
		{"expire early", func(r *reservation.Reservation) error { return r.Expire(t0) }, reservation.StatusReserved, errs.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := held()
			err := tt.apply(r)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if r.Status != tt.want {
				t.Errorf("Status = %s, want %s", r.Status, tt.want)
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	for _, st := range []reservation.Status{reservation.StatusConfirmed, reservation.StatusReleased, reservation.StatusExpired} {
		t.Run(string(st), func(t *testing.T) {
			if !st.Terminal() {
				t.Fatalf("%s should be terminal", st)
			}
			r := held()
			r.Status = st
			for name, fn := range map[string]func() error{
				"confirm": func() error { return r.Confirm(t0) },
				"release": func() error { return r.Release(t0) },
				"expire":  func() error { return r.Expire(t0.Add(time.Hour)) },
			} {
				err := fn()
				if !errors.Is(err, errs.ErrInvalidState) {
					t.Errorf("%s from %s: err = %v, want ErrInvalidState", name, st, err)
				}
				if r.Status != st {
					t.Errorf("%s changed status to %s", name, r.Status)
				}
			}
		})
	}
}

func TestConfirmErrorCarriesContext(t *testing.T) {
	r := held()
	err := r.Confirm(t0.Add(time.Hour))
	var typed *errs.Error
	if !errors.As(err, &typed) {
		t.Fatalf("expected *errs.Error, got %T", err)
	}
	if typed.AccountID != "acct" || !typed.Amount.Equal(decimal.NewFromInt(200)) {
		t.Errorf("missing context: %+v", typed)
	}
}

func TestIsDue(t *testing.T) {
	r := held()
	if r.IsDue(r.ExpiresAt) {
		t.Error("reservation is not due at exactly its expiry")
	}
	if !r.IsDue(r.ExpiresAt.Add(time.Nanosecond)) {
		t.Error("reservation should be due after expiry")
	}
	r.Status = reservation.StatusReleased
	if r.IsDue(r.ExpiresAt.Add(time.Hour)) {
		t.Error("terminal reservation must never be due")
	}
}

func TestStatusParsing(t *testing.T) {
	var st reservation.Status
	if err := json.Unmarshal([]byte(`"CONFIRMED"`), &st); err != nil || st != reservation.StatusConfirmed {
		t.Fatalf("unmarshal CONFIRMED: %v %q", err, st)
	}
	if err := json.Unmarshal([]byte(`"PENDING"`), &st); err == nil {
		t.Error("unknown status accepted")
	}
	if err := st.Scan([]byte("EXPIRED")); err != nil || st != reservation.StatusExpired {
		t.Errorf("Scan: %v %q", err, st)
	}
	if err := st.Scan(42); err == nil {
		t.Error("Scan accepted an int")
	}
}

func TestClone(t *testing.T) {
	r := held()
	now := t0
	r.ConfirmedAt = &now
	c := r.Clone()
	*c.ConfirmedAt = t0.Add(time.Hour)
	if !r.ConfirmedAt.Equal(t0) {
		t.Error("Clone shares timestamp pointers")
	}
}
