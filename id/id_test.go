package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/credits/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"AllocationID", id.NewAllocationID, "alloc_"},
		{"PackageID", id.NewPackageID, "cpkg_"},
		{"PurchaseID", id.NewPurchaseID, "pur_"},
		{"TransactionID", id.NewTransactionID, "ctxn_"},
		{"GroupID", id.NewGroupID, "ctxg_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestNewReservationKey(t *testing.T) {
	a, b := id.NewReservationKey(), id.NewReservationKey()
	if !strings.HasPrefix(a, "rsv_") {
		t.Errorf("expected rsv_ prefix, got %q", a)
	}
	if a == b {
		t.Error("reservation keys must be unique")
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"AllocationID", id.NewAllocationID, id.ParseAllocationID},
		{"PackageID", id.NewPackageID, id.ParsePackageID},
		{"PurchaseID", id.NewPurchaseID, id.ParsePurchaseID},
		{"TransactionID", id.NewTransactionID, id.ParseTransactionID},
		{"GroupID", id.NewGroupID, id.ParseGroupID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseAllocationID rejects cpkg_", id.NewPackageID().String(), id.ParseAllocationID},
		{"ParsePackageID rejects pur_", id.NewPurchaseID().String(), id.ParsePackageID},
		{"ParsePurchaseID rejects ctxn_", id.NewTransactionID().String(), id.ParsePurchaseID},
		{"ParseTransactionID rejects ctxg_", id.NewGroupID().String(), id.ParseTransactionID},
		{"ParseGroupID rejects alloc_", id.NewAllocationID().String(), id.ParseGroupID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parseFn(tt.input)
			if err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	_, err := id.Parse("")
	if err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestScanValue(t *testing.T) {
	original := id.NewAllocationID()
	v, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var fromString id.ID
	if err := fromString.Scan(v); err != nil {
		t.Fatalf("Scan(string) failed: %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("mismatch: %q != %q", fromString.String(), original.String())
	}

	var fromBytes id.ID
	if err := fromBytes.Scan([]byte(original.String())); err != nil {
		t.Fatalf("Scan([]byte) failed: %v", err)
	}
	if fromBytes.String() != original.String() {
		t.Errorf("mismatch: %q != %q", fromBytes.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("expected nil ID after scanning NULL")
	}
	if v, _ := fromNil.Value(); v != nil {
		t.Errorf("nil ID Value = %v, want nil", v)
	}

	if err := fromNil.Scan(42); err == nil {
		t.Error("expected error scanning int")
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewPurchaseID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if unmarshalErr := restored.UnmarshalText(data); unmarshalErr != nil {
		t.Fatalf("UnmarshalText failed: %v", unmarshalErr)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	// Nil round-trip.
	var nilID id.ID
	data, err = nilID.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText(nil) failed: %v", err)
	}
	var restored2 id.ID
	if err := restored2.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !restored2.IsNil() {
		t.Error("expected nil after round-trip of nil ID")
	}
}
