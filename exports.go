package credits

import "github.com/xraph/credits/types"

// Re-export common types for convenience so users don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Clock is re-exported from types package.
type Clock = types.Clock

// ClockFunc is re-exported from types package.
type ClockFunc = types.ClockFunc

// Re-export constructors
var (
	USD          = types.USD
	EUR          = types.EUR
	NewMoney     = types.NewMoney
	Credits      = types.Credits
	ParseCredits = types.ParseCredits
	MustCredits  = types.MustCredits
)
