package decision

import (
	"context"

	"tradepilot/src/marketdata"
	"tradepilot/src/model"
)

// Context is everything the proposal service sees for one cycle.
type Context struct {
	MarketData      map[string]marketdata.SymbolSummary `json:"market_data"`
	AccountInfo     model.AccountSnapshot               `json:"account_info"`
	Positions       []model.Position                    `json:"positions"`
	TradeHistory    []model.Trade                       `json:"trade_history"`
	RecentDecisions []model.Decision                    `json:"recent_decisions"`
	MaxPositions    int                                 `json:"max_positions"`
	MaxLeverage     int                                 `json:"max_leverage"`
	Symbols         []string                            `json:"symbols"`
}

const (
	ActionOpenLong  = "open_long"
	ActionOpenShort = "open_short"
	ActionClose     = "close"
)

// ToolInvocation is one structured trade call extracted from the proposal.
type ToolInvocation struct {
	Action    string  `json:"action"`
	Symbol    string  `json:"symbol"`
	MarginUSD float64 `json:"margin_usd,omitempty"`
	Leverage  int     `json:"leverage,omitempty"`
	Percent   float64 `json:"percent,omitempty"`
}

// Proposal is the opaque service's answer: free text plus any trade calls.
type Proposal struct {
	Text            string
	ToolInvocations []ToolInvocation
}

// Proposer is the capability interface over the decision-proposal service.
// The production implementation talks to a text-completion API; tests swap in
// a deterministic stub so risk-engine correctness does not depend on any
// external service.
type Proposer interface {
	Propose(ctx context.Context, dctx *Context) (*Proposal, error)
}
