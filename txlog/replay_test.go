package txlog_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/id"
	"github.com/xraph/credits/txlog"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func entry(typ txlog.Type, amount, balBefore, balAfter, resBefore, resAfter string) *txlog.Entry {
	return &txlog.Entry{
		ID:             id.NewTransactionID(),
		AccountID:      "acct",
		Type:           typ,
		Amount:         d(amount),
		BalanceBefore:  d(balBefore),
		BalanceAfter:   d(balAfter),
		ReservedBefore: d(resBefore),
		ReservedAfter:  d(resAfter),
	}
}

func TestReplayConsistentHistory(t *testing.T) {
	entries := []*txlog.Entry{
		entry(txlog.TypePurchase, "500", "0", "500", "0", "0"),
		entry(txlog.TypeReserve, "200", "500", "500", "0", "200"),
		entry(txlog.TypeConfirm, "200", "500", "300", "200", "0"),
		entry(txlog.TypeReserve, "50", "300", "300", "0", "50"),
		entry(txlog.TypeExpire, "50", "300", "300", "50", "0"),
		entry(txlog.TypeAllocate, "100", "300", "300", "0", "0"),
		entry(txlog.TypeDeallocate, "100", "300", "300", "0", "0"),
		entry(txlog.TypeAllocate, "40", "300", "340", "0", "0"),
		entry(txlog.TypeConsumption, "10", "340", "330", "0", "0"),
		entry(txlog.TypeRevoke, "30", "330", "300", "0", "0"),
	}

	r := txlog.ReplayEntries("acct", entries)
	if !r.Consistent() {
		t.Fatalf("unexpected discrepancies: %v", r.Discrepancies)
	}
	if r.Entries != len(entries) {
		t.Errorf("Entries = %d", r.Entries)
	}

	want := map[string][2]decimal.Decimal{
		"balance":      {r.Balance, d("300")},
		"reserved":     {r.Reserved, d("0")},
		"purchased":    {r.Purchased, d("500")},
		"consumed":     {r.Consumed, d("210")},
		"allocatedOut": {r.AllocatedOut, d("0")},
		"allocatedIn":  {r.AllocatedIn, d("10")},
	}
	for name, pair := range want {
		if !pair[0].Equal(pair[1]) {
			t.Errorf("%s = %s, want %s", name, pair[0], pair[1])
		}
	}

	r.Compare(d("300"), d("0"), d("500"), d("210"), d("0"), d("10"))
	if !r.Consistent() {
		t.Errorf("Compare against matching record: %v", r.Discrepancies)
	}
}

func TestReplayDetectsGaps(t *testing.T) {
	tests := []struct {
		name    string
		entries []*txlog.Entry
		field   string
	}{
		{
			name: "missing entry",
			entries: []*txlog.Entry{
				entry(txlog.TypePurchase, "500", "0", "500", "0", "0"),
				entry(txlog.TypeConsumption, "100", "400", "300", "0", "0"),
			},
			field: "balance_before",
		},
		{
			name:    "wrong direction",
			entries: []*txlog.Entry{entry(txlog.TypeRefund, "100", "0", "100", "0", "0")},
			field:   "balance_delta",
		},
		{
			name: "release moves balance",
			entries: []*txlog.Entry{
				entry(txlog.TypePurchase, "10", "0", "10", "0", "0"),
				entry(txlog.TypeReserve, "5", "10", "10", "0", "5"),
				entry(txlog.TypeRelease, "5", "10", "5", "5", "0"),
			},
			field: "balance_delta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := txlog.ReplayEntries("acct", tt.entries)
			if r.Consistent() {
				t.Fatal("expected a discrepancy")
			}
			if r.Discrepancies[0].Field != tt.field {
				t.Errorf("field = %s, want %s", r.Discrepancies[0].Field, tt.field)
			}
		})
	}
}

func TestCompareReportsLiveDrift(t *testing.T) {
	r := txlog.ReplayEntries("acct", []*txlog.Entry{
		entry(txlog.TypePurchase, "500", "0", "500", "0", "0"),
	})
	r.Compare(d("450"), d("0"), d("500"), d("0"), d("0"), d("0"))
	if len(r.Discrepancies) != 1 || r.Discrepancies[0].Field != "current_balance" {
		t.Fatalf("discrepancies = %v", r.Discrepancies)
	}
	if r.Discrepancies[0].String() == "" {
		t.Error("empty description")
	}
}

func TestQueryMatches(t *testing.T) {
	e := entry(txlog.TypeReserve, "1", "1", "1", "0", "1")
	e.ReservationID = "job-1"

	tests := []struct {
		name string
		q    txlog.Query
		want bool
	}{
		{"empty", txlog.Query{}, true},
		{"account", txlog.Query{AccountID: "acct"}, true},
		{"other account", txlog.Query{AccountID: "other"}, false},
		{"type", txlog.Query{Types: []txlog.Type{txlog.TypeConfirm, txlog.TypeReserve}}, true},
		{"other type", txlog.Query{Types: []txlog.Type{txlog.TypeConfirm}}, false},
		{"reservation", txlog.Query{ReservationID: "job-2"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Matches(e); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, typ := range txlog.Types {
		got, err := txlog.ParseType(string(typ))
		if err != nil || got != typ {
			t.Errorf("ParseType(%s) = %s, %v", typ, got, err)
		}
	}
	if _, err := txlog.ParseType("TRANSFER"); err == nil {
		t.Error("unknown type accepted")
	}
}
