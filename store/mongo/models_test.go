package mongo

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/purchase"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/txlog"
	"github.com/xraph/credits/types"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestAccountModelRoundTrip(t *testing.T) {
	a := &account.Account{
		Entity:              types.Entity{CreatedAt: base, UpdatedAt: base},
		AccountID:           "acct-1",
		Current:             types.MustCredits("1000.125"),
		Reserved:            types.MustCredits("0.000001"),
		TotalPurchased:      types.MustCredits("1000.125"),
		AllocatedToChildren: types.Credits(300),
		Version:             7,
	}
	m, err := toAccountModel(a)
	if err != nil {
		t.Fatal(err)
	}

	// Through BSON so the Decimal128 encoding is exercised end to end.
	raw, err := bson.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var decoded accountModel
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}

	got, err := fromAccountModel(&decoded)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Current.Equal(a.Current) || !got.Reserved.Equal(a.Reserved) {
		t.Errorf("balances = %s/%s, want %s/%s", got.Current, got.Reserved, a.Current, a.Reserved)
	}
	if !got.AllocatedToChildren.Equal(a.AllocatedToChildren) || !got.TotalConsumed.IsZero() {
		t.Errorf("counters = %s/%s", got.AllocatedToChildren, got.TotalConsumed)
	}
	if got.Version != 7 || got.AccountID != "acct-1" {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v", got.CreatedAt)
	}
}

func TestReservationModelKeepsOptionalFields(t *testing.T) {
	confirmed := base.Add(time.Minute)
	allocID := id.NewAllocationID()
	r := &reservation.Reservation{
		Entity:       types.Entity{CreatedAt: base, UpdatedAt: confirmed},
		ID:           "job-42",
		AccountID:    "acct-1",
		Amount:       types.Credits(25),
		Status:       reservation.StatusConfirmed,
		ExpiresAt:    base.Add(5 * time.Minute),
		AllocationID: allocID,
		ConfirmedAt:  &confirmed,
	}
	m, err := toReservationModel(r)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fromReservationModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.AllocationID.String() != allocID.String() {
		t.Errorf("AllocationID = %s, want %s", got.AllocationID, allocID)
	}
	if got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(confirmed) {
		t.Errorf("ConfirmedAt = %v", got.ConfirmedAt)
	}
	if got.ReleasedAt != nil || got.ExpiredAt != nil {
		t.Error("unset timestamps should stay nil")
	}
	if got.Status != reservation.StatusConfirmed {
		t.Errorf("Status = %s", got.Status)
	}
}

func TestReservationWithoutAllocationHasNilID(t *testing.T) {
	m, err := toReservationModel(&reservation.Reservation{ID: "r", Amount: types.Credits(1)})
	if err != nil {
		t.Fatal(err)
	}
	if m.AllocationID != "" {
		t.Fatalf("AllocationID = %q, want empty", m.AllocationID)
	}
	got, err := fromReservationModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if !got.AllocationID.IsNil() {
		t.Errorf("AllocationID = %s, want nil", got.AllocationID)
	}
}

func TestPackageModelKeepsPrice(t *testing.T) {
	p := &purchase.Package{
		ID:      id.NewPackageID(),
		Code:    "starter",
		Credits: types.Credits(1000),
		Price:   types.EUR("49.90"),
		Active:  true,
	}
	m, err := toPackageModel(p)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fromPackageModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Price.Equal(p.Price) {
		t.Errorf("Price = %v, want %v", got.Price, p.Price)
	}
	if got.ID.String() != p.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, p.ID)
	}
}

func TestEntryModelRoundTrip(t *testing.T) {
	e := &txlog.Entry{
		ID:             id.NewTransactionID(),
		GroupID:        id.NewGroupID(),
		AccountID:      "acct-1",
		Type:           txlog.TypeReserve,
		Amount:         types.Credits(10),
		BalanceBefore:  types.Credits(100),
		BalanceAfter:   types.Credits(100),
		ReservedBefore: types.Credits(0),
		ReservedAfter:  types.Credits(10),
		ReservationID:  "job-42",
		CreatedAt:      base,
	}
	m, err := toEntryModel(e)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fromEntryModel(m)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID.String() != e.ID.String() || got.GroupID.String() != e.GroupID.String() {
		t.Errorf("ids = %s/%s", got.ID, got.GroupID)
	}
	if !got.ReservedDelta().Equal(types.Credits(10)) {
		t.Errorf("ReservedDelta = %s", got.ReservedDelta())
	}
	if !got.PurchaseID.IsNil() {
		t.Errorf("PurchaseID = %s, want nil", got.PurchaseID)
	}
}

func TestDecodeRejectsMalformedID(t *testing.T) {
	_, err := fromAllocationModel(&allocationModel{ID: "not a typeid"})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestEntryFilter(t *testing.T) {
	q := txlog.Query{
		AccountID: "acct-1",
		Types:     []txlog.Type{txlog.TypeReserve, txlog.TypeConfirm},
		From:      base,
		To:        base.Add(time.Hour),
	}
	f := entryFilter(q)
	if f["account_id"] != "acct-1" {
		t.Errorf("account_id = %v", f["account_id"])
	}
	window, ok := f["created_at"].(bson.M)
	if !ok {
		t.Fatalf("created_at = %T", f["created_at"])
	}
	if window["$gte"] != base || window["$lt"] != base.Add(time.Hour) {
		t.Errorf("window = %v", window)
	}
	in, ok := f["transaction_type"].(bson.M)["$in"].([]string)
	if !ok || len(in) != 2 || in[0] != "RESERVE" {
		t.Errorf("types = %v", f["transaction_type"])
	}
	if _, ok := entryFilter(txlog.Query{})["created_at"]; ok {
		t.Error("empty query should not filter on time")
	}
}

func TestTranslate(t *testing.T) {
	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	if err := translate(dup); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Errorf("duplicate key: err = %v", err)
	}

	conflict := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{"TransientTransactionError"}}
	if err := translate(conflict); !errors.Is(err, errs.ErrConflict) {
		t.Errorf("write conflict: err = %v", err)
	}

	other := errors.New("boom")
	if err := translate(other); err != other {
		t.Errorf("other: err = %v", err)
	}
	if translate(nil) != nil {
		t.Error("nil should stay nil")
	}
}
