package pricing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
	"github.com/xraph/credits/pricing"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func table() *pricing.Table {
	return pricing.NewTable(
		pricing.Operation{Code: "ocr.page", Type: "OCR", CreditCost: d("0.5"), CostModel: pricing.CostPerUnit, Active: true},
		pricing.Operation{Code: "summary", Type: "NLP", CreditCost: d("3"), CostModel: pricing.CostFixed, Active: true},
		pricing.Operation{Code: "legacy", Type: "NLP", CreditCost: d("1"), CostModel: pricing.CostFixed},
	)
}

func TestResolveAndCost(t *testing.T) {
	tests := []struct {
		code    string
		units   string
		want    string
		wantErr error
	}{
		{"ocr.page", "12", "6", nil},
		{"ocr.page", "0", "", errs.ErrInvalidInput},
		{"summary", "12", "3", nil},
		{"legacy", "1", "", errs.ErrNotFound},
		{"missing", "1", "", errs.ErrPricingNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.code+"/"+tt.units, func(t *testing.T) {
			op, err := table().Resolve(context.Background(), tt.code)
			if err == nil {
				var cost decimal.Decimal
				cost, err = op.Cost(d(tt.units))
				if err == nil && !cost.Equal(d(tt.want)) {
					t.Errorf("cost = %s, want %s", cost, tt.want)
				}
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPutAndList(t *testing.T) {
	tbl := table()
	tbl.Put(pricing.Operation{Code: "legacy", CreditCost: d("2"), Active: true})

	op, err := tbl.Resolve(context.Background(), "legacy")
	if err != nil {
		t.Fatal(err)
	}
	if !op.CreditCost.Equal(d("2")) {
		t.Errorf("CreditCost = %s", op.CreditCost)
	}

	ops := tbl.List()
	if len(ops) != 3 || ops[0].Code != "legacy" || ops[2].Code != "summary" {
		t.Errorf("List = %+v", ops)
	}
}

func TestResolveReturnsCopy(t *testing.T) {
	tbl := table()
	op, _ := tbl.Resolve(context.Background(), "summary")
	op.CreditCost = d("1000")
	again, _ := tbl.Resolve(context.Background(), "summary")
	if !again.CreditCost.Equal(d("3")) {
		t.Error("Resolve exposed internal state")
	}
}
