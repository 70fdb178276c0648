// Package pricing converts an operation code into a credit cost. The ledger
// resolves costs before taking any account lock and never computes prices
// itself.
package pricing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/xraph/credits/errs"
)

// CostModel says how CreditCost scales with the requested quantity.
type CostModel string

const (
	CostFixed   CostModel = "FIXED"
	CostPerUnit CostModel = "PER_UNIT"
)

// Operation is one priced operation.
type Operation struct {
	Code        string          `json:"code" yaml:"code" mapstructure:"code"`
	Type        string          `json:"type" yaml:"type" mapstructure:"type"`
	Name        string          `json:"name" yaml:"name" mapstructure:"name"`
	Description string          `json:"description,omitempty" yaml:"description" mapstructure:"description"`
	CreditCost  decimal.Decimal `json:"credit_cost" yaml:"credit_cost" mapstructure:"credit_cost"`
	CostModel   CostModel       `json:"cost_model" yaml:"cost_model" mapstructure:"cost_model"`
	Active      bool            `json:"active" yaml:"active" mapstructure:"active"`
}

// Cost prices units of the operation. Units are ignored for FIXED costs.
func (o *Operation) Cost(units decimal.Decimal) (decimal.Decimal, error) {
	switch o.CostModel {
	case CostFixed, "":
		return o.CreditCost, nil
	case CostPerUnit:
		if !units.IsPositive() {
			return decimal.Zero, errs.ValidationError{Field: "units", Message: "must be positive for " + o.Code}
		}
		return o.CreditCost.Mul(units), nil
	default:
		return decimal.Zero, fmt.Errorf("pricing: unknown cost model %q for %s", o.CostModel, o.Code)
	}
}

// Resolver looks up active operations by code.
type Resolver interface {
	Resolve(ctx context.Context, code string) (*Operation, error)
}

// Table is an in-process Resolver.
type Table struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewTable returns a table holding ops.
func NewTable(ops ...Operation) *Table {
	t := &Table{ops: make(map[string]Operation, len(ops))}
	for _, op := range ops {
		t.ops[op.Code] = op
	}
	return t
}

// Put adds or replaces an operation.
func (t *Table) Put(op Operation) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ops[op.Code] = op
}

// Resolve returns a copy of the active operation for code.
func (t *Table) Resolve(_ context.Context, code string) (*Operation, error) {
	t.mu.RLock()
	op, ok := t.ops[code]
	t.mu.RUnlock()
	if !ok || !op.Active {
		return nil, fmt.Errorf("%w: %s", errs.ErrPricingNotFound, code)
	}
	return &op, nil
}

// List returns every operation sorted by code.
func (t *Table) List() []Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Operation, 0, len(t.ops))
	for _, op := range t.ops {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
