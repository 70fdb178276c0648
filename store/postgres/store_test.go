package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/postgres"
)

func newMock(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return postgres.New(mockDB), mock
}

func TestAtomicLocksAccountsInAscendingOrder(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	for _, accountID := range []string{"acct-a", "acct-b"} {
		mock.ExpectExec(`INSERT INTO credit_accounts .* ON CONFLICT \(account_id\) DO NOTHING`).
			WithArgs(accountID, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT account_id FROM credit_accounts WHERE account_id = \$1 FOR UPDATE`).
			WithArgs(accountID).
			WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow(accountID))
	}
	mock.ExpectCommit()

	err := s.Atomic(context.Background(), []string{"acct-b", "acct-a"}, func(context.Context, store.Tx) error { return nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO credit_accounts`).
		WithArgs("acct", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT account_id .* FOR UPDATE`).
		WithArgs("acct").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}).AddRow("acct"))
	mock.ExpectRollback()

	err := s.Atomic(context.Background(), []string{"acct"}, func(context.Context, store.Tx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountVersionConflict(t *testing.T) {
	s, mock := newMock(t)
	a := &account.Account{AccountID: "acct", Current: decimal.NewFromInt(10), Version: 3}

	mock.ExpectExec(`UPDATE credit_accounts SET .* WHERE account_id = \$9 AND version = \$10`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "acct", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.UpdateAccount(context.Background(), a)
	if !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if a.Version != 3 {
		t.Errorf("Version bumped on conflict: %d", a.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateAccountBumpsVersion(t *testing.T) {
	s, mock := newMock(t)
	a := &account.Account{AccountID: "acct", Version: 7}

	mock.ExpectExec(`UPDATE credit_accounts`).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.UpdateAccount(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	if a.Version != 8 {
		t.Errorf("Version = %d, want 8", a.Version)
	}
}

func TestDriverErrorsAreTranslated(t *testing.T) {
	tests := []struct {
		code pq.ErrorCode
		want error
	}{
		{"23505", errs.ErrAlreadyExists},
		{"40001", errs.ErrConflict},
		{"40P01", errs.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			s, mock := newMock(t)
			mock.ExpectExec(`INSERT INTO credit_reservations`).WillReturnError(&pq.Error{Code: tt.code})

			err := s.CreateReservation(context.Background(), &reservation.Reservation{
				ID: "job-1", AccountID: "acct", Amount: decimal.NewFromInt(1), Status: reservation.StatusReserved,
			})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestGetAccountNotFound(t *testing.T) {
	s, mock := newMock(t)
	mock.ExpectQuery(`SELECT account_id, current_balance`).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"account_id"}))

	if _, err := s.GetAccount(context.Background(), "ghost"); !errors.Is(err, errs.ErrAccountNotFound) {
		t.Errorf("err = %v, want ErrAccountNotFound", err)
	}
}
