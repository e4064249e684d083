package domain

import "github.com/shopspring/decimal"

// Lovelace is an amount in the smallest currency unit.
type Lovelace int64

const LovelacePerADA Lovelace = 1_000_000

// ADA converts l to whole-currency units for display only. Protocol arithmetic never
// leaves Lovelace.
func (l Lovelace) ADA() decimal.Decimal {
	return decimal.New(int64(l), -6)
}

// String renders l the way wallets do, e.g. "₳110.00".
func (l Lovelace) String() string {
	return "₳" + l.ADA().StringFixed(2)
}
