package risk

import "fmt"

// Forced-exit rule layers, in priority order. The first matching rule wins and
// its reason is recorded on the resulting trade.
const (
	// MaxHoldingHours is the hard ceiling on position age.
	MaxHoldingHours = 36.0

	// Peak-drawdown protection arms once the peak leveraged return exceeds
	// this, and fires when the give-back from peak reaches the trigger.
	peakArmThreshold   = 5.0
	drawdownTriggerPct = 30.0
)

// StopLossTier maps a minimum leverage to its leveraged-return stop floor.
// Tiers are configuration data carried on the engine, ordered by MinLeverage
// descending; the first tier the position's leverage meets wins.
type StopLossTier struct {
	MinLeverage int     `json:"min_leverage"`
	Threshold   float64 `json:"threshold"`
}

// DefaultStopLossTiers is the tier table used when an engine configures none:
// higher leverage gets a tighter stop.
func DefaultStopLossTiers() []StopLossTier {
	return []StopLossTier{
		{MinLeverage: 12, Threshold: -3.0},
		{MinLeverage: 8, Threshold: -4.0},
		{MinLeverage: 0, Threshold: -5.0},
	}
}

// Snapshot is the slice of position state the evaluator needs. PnlPercent and
// PeakPnlPercent are leverage-scaled returns; PeakPnlPercent must already
// include the current observation (callers ratchet the peak before evaluating).
// A nil StopLossTiers falls back to the default table.
type Snapshot struct {
	Symbol         string
	Leverage       int
	PnlPercent     float64
	PeakPnlPercent float64
	StopLossTiers  []StopLossTier
}

// Verdict is the evaluator's exit decision for one position.
type Verdict struct {
	Close  bool
	Reason string
}

// StopLossThreshold returns the leveraged-return floor for a leverage from
// the given tier table, defaulting when the table is empty.
func StopLossThreshold(leverage int, tiers []StopLossTier) float64 {
	if len(tiers) == 0 {
		tiers = DefaultStopLossTiers()
	}
	for _, tier := range tiers {
		if leverage >= tier.MinLeverage {
			return tier.Threshold
		}
	}
	return tiers[len(tiers)-1].Threshold
}

// TrailingThreshold returns the profit floor locked in at the current peak.
// Until profit has reached the first rung it equals the stop-loss threshold,
// i.e. no trailing is in effect.
func TrailingThreshold(peakPnlPercent float64, leverage int, tiers []StopLossTier) float64 {
	switch {
	case peakPnlPercent >= 25:
		return 15.0
	case peakPnlPercent >= 15:
		return 8.0
	case peakPnlPercent >= 8:
		return 3.0
	default:
		return StopLossThreshold(leverage, tiers)
	}
}

// Evaluate maps one position snapshot plus holding duration to an exit
// verdict. Pure: no I/O, no clock reads. Rules are checked in fixed priority
// order; the account-level circuit breaker is evaluated elsewhere and
// dominates all of these.
func Evaluate(s Snapshot, holdingHours float64) Verdict {
	// 1. Time-based forced close.
	if holdingHours >= MaxHoldingHours {
		return Verdict{Close: true, Reason: fmt.Sprintf("max holding time (%.1fh)", holdingHours)}
	}

	// 2. Dynamic stop-loss, tiered by leverage.
	stopLoss := StopLossThreshold(s.Leverage, s.StopLossTiers)
	if s.PnlPercent <= stopLoss {
		return Verdict{Close: true, Reason: fmt.Sprintf("dynamic stop loss (%.2f%% <= %.1f%%)", s.PnlPercent, stopLoss)}
	}

	// 3. Trailing stop-profit. Only fires once the trailing floor has
	// actually ratcheted above the plain stop-loss.
	trailing := TrailingThreshold(s.PeakPnlPercent, s.Leverage, s.StopLossTiers)
	if s.PnlPercent < trailing && trailing > stopLoss {
		return Verdict{Close: true, Reason: fmt.Sprintf("trailing stop profit (%.2f%% < %.1f%%)", s.PnlPercent, trailing)}
	}

	// 4. Peak-drawdown protection. Never divides by a non-positive peak.
	if s.PeakPnlPercent > peakArmThreshold {
		drawdown := (s.PeakPnlPercent - s.PnlPercent) / s.PeakPnlPercent * 100
		if drawdown >= drawdownTriggerPct {
			return Verdict{Close: true, Reason: fmt.Sprintf("peak drawdown protection (%.1f%% off peak %.2f%%)", drawdown, s.PeakPnlPercent)}
		}
	}

	return Verdict{}
}
