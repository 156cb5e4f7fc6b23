// Package scenario synthesizes the six mutually exclusive outcomes of a
// ticket run: elimination at each of the five stages, or reaching the final.
// Every scenario owns its cash-flow timeline and realized P&L.
package scenario

import (
	"github.com/phenomenon0/cuprun/core"

	"github.com/shopspring/decimal"
)

// Scenario is one fully priced outcome. GrossProceeds is the sale-month
// amount before fees (the reimbursement for eliminations); HedgeResult is
// the net gain or loss across all hedge bets under this outcome; NetPL
// additionally charges both carrying costs. SaleInflow and HedgeOutflows
// preserve the unmerged timeline components for probability blending.
type Scenario struct {
	Outcome       core.Outcome    `json:"outcome"`
	Label         string          `json:"label"`
	Probability   float64         `json:"probability"`
	GrossProceeds decimal.Decimal `json:"gross_proceeds"`
	Fees          decimal.Decimal `json:"fees"`
	HedgeResult   decimal.Decimal `json:"hedge_result"`
	HedgeCarry    decimal.Decimal `json:"hedge_carry"`
	BaseCarry     decimal.Decimal `json:"base_carry"`
	NetPL         decimal.Decimal `json:"net_pl"`
	IRRPct        float64         `json:"irr_pct"`
	SaleInflow    decimal.Decimal `json:"sale_inflow"`
	HedgeOutflows []core.CashFlow `json:"hedge_outflows,omitempty"`
	CashFlows     []core.CashFlow `json:"cash_flows"`
}
