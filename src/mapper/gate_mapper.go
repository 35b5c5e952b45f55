package mapper

import (
	"math"
	"time"

	"tradepilot/src/connectors"
	"tradepilot/src/model"
)

// SideFromSize derives the position side from the exchange's signed size.
func SideFromSize(size int64) string {
	if size < 0 {
		return model.PositionSideShort
	}
	return model.PositionSideLong
}

// MapFuturesPosition converts an exchange position payload into a ledger row
// for one engine. Fields the exchange does not report (peak watermark, open
// time, standing order ids) are zero-valued; the reconciler preserves them
// from the existing row on upsert.
func MapFuturesPosition(engineID uint, fp connectors.FuturesPosition, now time.Time) model.Position {
	leverage := int(connectors.ParsePrice(fp.Leverage))
	if leverage < 1 {
		leverage = 1
	}

	return model.Position{
		EngineID:         engineID,
		Symbol:           fp.Contract,
		Side:             SideFromSize(fp.Size),
		Quantity:         math.Abs(float64(fp.Size)),
		EntryPrice:       connectors.ParsePrice(fp.EntryPrice),
		CurrentPrice:     connectors.ParsePrice(fp.MarkPrice),
		Leverage:         leverage,
		LiquidationPrice: connectors.ParsePrice(fp.LiqPrice),
		UnrealizedPnl:    connectors.ParsePrice(fp.UnrealisedPnl),
		OpenedAt:         now,
	}
}
