// Package stock derives current, reserved and available quantities by
// folding the lot ledger. The direct SQL fold is the source of truth; the
// redis cache in front of it is a swappable accelerator that must never
// disagree with it.
package stock

import "github.com/shopspring/decimal"

// Snapshot is the derived stock position for one scope. Quantity may be
// negative; nothing is clamped.
type Snapshot struct {
	Quantity  decimal.Decimal `json:"quantity"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

// ProductStock is one row of the bulk read model consumed by the UI layer.
// Name is joined in from the product master data.
type ProductStock struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}
