package engine

import (
	"context"
	"fmt"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/mapper"
	"tradepilot/src/model"
)

type positionLedger interface {
	FindByEngine(ctx context.Context, engineID uint) ([]model.Position, error)
	Save(ctx context.Context, position *model.Position) error
	DeleteByEngineAndSymbol(ctx context.Context, engineID uint, symbol string) error
}

// Reconciler maps exchange-reported positions onto one engine's ledger. The
// exchange is the source of truth for size and prices, but it can be
// transiently wrong: a delayed read that reports everything flat must never
// erase a ledger that believes otherwise.
type Reconciler struct {
	engineID uint
	client   connectors.ExchangeClient
	stream   *connectors.TickerStream
	ledger   positionLedger
	now      nowFunc
	log      *logger.Entry
}

func NewReconciler(engineID uint, client connectors.ExchangeClient, stream *connectors.TickerStream, ledger positionLedger, now nowFunc) *Reconciler {
	return &Reconciler{
		engineID: engineID,
		client:   client,
		stream:   stream,
		ledger:   ledger,
		now:      now,
		log:      logger.WithField("engine_id", engineID),
	}
}

// Sync fetches exchange positions once and merges them into the ledger.
// closedThisCycle marks that this engine just executed exits, which makes an
// all-flat exchange response trustworthy. Returns whether the ledger changed.
func (r *Reconciler) Sync(ctx context.Context, closedThisCycle bool) (bool, error) {
	exchangePositions, err := r.client.ListPositions()
	if err != nil {
		return false, fmt.Errorf("failed to list exchange positions: %w", err)
	}

	open := make(map[string]connectors.FuturesPosition)
	for _, fp := range exchangePositions {
		if fp.Size != 0 {
			open[fp.Contract] = fp
		}
	}

	ledgerRows, err := r.ledger.FindByEngine(ctx, r.engineID)
	if err != nil {
		return false, err
	}

	// Safety guard: an empty exchange read against a non-empty ledger is
	// indistinguishable from a transient failure. Destructive sync here would
	// silently erase peak watermarks and open times, so defer to next cycle.
	if len(open) == 0 && len(ledgerRows) > 0 && !closedThisCycle {
		r.log.WithField("ledger_rows", len(ledgerRows)).
			Warn("exchange reports no positions but ledger is non-empty, skipping destructive sync")
		return false, nil
	}

	changed := false

	byContract := make(map[string]*model.Position, len(ledgerRows))
	for i := range ledgerRows {
		byContract[ledgerRows[i].Symbol] = &ledgerRows[i]
	}

	for contract, fp := range open {
		incoming := mapper.MapFuturesPosition(r.engineID, fp, r.now())
		r.backfillPrices(&incoming)

		if existing, ok := byContract[contract]; ok {
			existing.Side = incoming.Side
			existing.Quantity = incoming.Quantity
			existing.EntryPrice = incoming.EntryPrice
			existing.CurrentPrice = incoming.CurrentPrice
			existing.Leverage = incoming.Leverage
			existing.LiquidationPrice = incoming.LiquidationPrice
			existing.UnrealizedPnl = incoming.UnrealizedPnl
			// Ratchet the watermark against the freshest observation; it is
			// never allowed to move down.
			if pnl := existing.PnlPercent(); pnl > existing.PeakPnlPercent {
				existing.PeakPnlPercent = pnl
			}
			if err := r.ledger.Save(ctx, existing); err != nil {
				return changed, err
			}
		} else {
			incoming.PeakPnlPercent = incoming.PnlPercent()
			if err := r.ledger.Save(ctx, &incoming); err != nil {
				return changed, err
			}
			r.log.WithFields(map[string]interface{}{
				"symbol": contract,
				"side":   incoming.Side,
				"qty":    incoming.Quantity,
			}).Info("new position observed on exchange")
		}
		changed = true
	}

	// Ledger rows the exchange no longer reports are real closes; safe to
	// drop because the overall response was either non-empty or confirmed.
	for _, row := range ledgerRows {
		if _, stillOpen := open[row.Symbol]; stillOpen {
			continue
		}
		if err := r.ledger.DeleteByEngineAndSymbol(ctx, r.engineID, row.Symbol); err != nil {
			return changed, err
		}
		r.log.WithField("symbol", row.Symbol).Info("position no longer on exchange, removed from ledger")
		changed = true
	}

	return changed, nil
}

// backfillPrices repairs missing price fields from the live stream or a
// ticker read rather than failing the cycle; the entry price defaults to the
// current price as a last resort.
func (r *Reconciler) backfillPrices(p *model.Position) {
	if p.CurrentPrice <= 0 && r.stream != nil {
		if mark, ok := r.stream.MarkPrice(p.Symbol); ok {
			p.CurrentPrice = mark
		}
	}
	if p.CurrentPrice <= 0 {
		ticker, err := r.client.GetTicker(p.Symbol)
		if err != nil {
			r.log.WithField("symbol", p.Symbol).WithError(err).
				Warn("price backfill failed, proceeding with stale price")
		} else {
			p.CurrentPrice = connectors.ParsePrice(ticker.MarkPrice)
			if p.CurrentPrice <= 0 {
				p.CurrentPrice = connectors.ParsePrice(ticker.Last)
			}
		}
	}
	if p.EntryPrice <= 0 {
		p.EntryPrice = p.CurrentPrice
	}
}
