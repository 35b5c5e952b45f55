package executors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/model"
)

type positionRepository interface {
	Save(ctx context.Context, position *model.Position) error
	DeleteByEngineAndSymbol(ctx context.Context, engineID uint, symbol string) error
}

type tradeRepository interface {
	Create(ctx context.Context, trade *model.Trade) error
}

// TradeExecutor performs position entries and exits against the exchange,
// reconciles fills, and keeps the ledger consistent with what actually
// executed. The close path is shared by forced risk exits, circuit-breaker
// flattening and proposal-service close calls.
type TradeExecutor struct {
	engineID  uint
	client    connectors.ExchangeClient
	positions positionRepository
	trades    tradeRepository
	config    Config
	log       *logger.Entry

	now   func() time.Time
	sleep func(time.Duration)
}

func NewTradeExecutor(engineID uint, client connectors.ExchangeClient, positions positionRepository, trades tradeRepository) *TradeExecutor {
	return &TradeExecutor{
		engineID:  engineID,
		client:    client,
		positions: positions,
		trades:    trades,
		config:    GetConfig(),
		log:       logger.WithField("engine_id", engineID),
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// ErrOrderNotExecuted reports an order the exchange finished without filling,
// e.g. an unfilled reduce-only IOC. Nothing executed, so nothing is recorded.
var ErrOrderNotExecuted = errors.New("order finished without executing")

// CloseResult reports what an exit actually did.
type CloseResult struct {
	OrderID   string
	ExitPrice float64
	Quantity  float64
	GrossPnl  float64
	Fee       float64
	NetPnl    float64
	// Estimated is set when the fill could not be confirmed in time and the
	// pre-trade mark price was used instead of a real fill price.
	Estimated bool
}

// ForcedClose fully exits a position because a risk rule fired. It never
// blocks on slippage: a safety exit that executed badly is still recorded and
// the ledger row removed.
func (e *TradeExecutor) ForcedClose(ctx context.Context, position *model.Position, reason string) (*CloseResult, error) {
	return e.close(ctx, position, 100, reason)
}

// ClosePercent is the manually-invoked partial variant with the same
// fill-reconciliation mechanics. percent is clamped to (0, 100].
func (e *TradeExecutor) ClosePercent(ctx context.Context, position *model.Position, percent float64, reason string) (*CloseResult, error) {
	if percent <= 0 || percent > 100 {
		return nil, fmt.Errorf("close percent out of range: %v", percent)
	}
	return e.close(ctx, position, percent, reason)
}

func (e *TradeExecutor) close(ctx context.Context, position *model.Position, percent float64, reason string) (*CloseResult, error) {
	contract, err := e.client.GetContract(position.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contract info for %s: %w", position.Symbol, err)
	}
	multiplier := connectors.ContractMultiplier(contract)

	intendedPrice := position.CurrentPrice
	if intendedPrice <= 0 {
		ticker, err := e.client.GetTicker(position.Symbol)
		if err != nil {
			return nil, fmt.Errorf("no usable price for %s: %w", position.Symbol, err)
		}
		intendedPrice = connectors.ParsePrice(ticker.MarkPrice)
		if intendedPrice <= 0 {
			intendedPrice = connectors.ParsePrice(ticker.Last)
		}
	}
	if intendedPrice <= 0 {
		return nil, fmt.Errorf("no usable price for %s", position.Symbol)
	}

	closeContracts := int64(math.Floor(position.Quantity * percent / 100))
	if closeContracts < 1 {
		closeContracts = 1
	}
	if float64(closeContracts) > position.Quantity {
		closeContracts = int64(position.Quantity)
	}
	fullClose := float64(closeContracts) >= position.Quantity

	// Reduce-only market order in the opposite direction of the position.
	size := closeContracts
	if position.Side == model.PositionSideLong {
		size = -closeContracts
	}

	order, err := e.client.PlaceOrder(connectors.OrderRequest{
		Contract:   position.Symbol,
		Size:       size,
		ReduceOnly: true,
	})
	if err != nil {
		if connectors.IsExecutionRejection(err) {
			return nil, fmt.Errorf("close order rejected for %s: %w", position.Symbol, err)
		}
		return nil, fmt.Errorf("failed to place close order for %s: %w", position.Symbol, err)
	}

	orderID := strconv.FormatInt(order.ID, 10)
	fillPrice, state := e.awaitFill(orderID)
	if state == fillCancelled {
		return nil, fmt.Errorf("close order %s for %s: %w", orderID, position.Symbol, ErrOrderNotExecuted)
	}
	confirmed := state == fillConfirmed
	if !confirmed {
		e.log.WithFields(map[string]interface{}{
			"symbol":   position.Symbol,
			"order_id": orderID,
		}).Warn("fill not confirmed in time, falling back to pre-trade mark price")
		fillPrice = intendedPrice
	}

	// Slippage guard on closes logs and proceeds: a forced exit must not be
	// blocked by price precision.
	if slip := slippage(fillPrice, intendedPrice); slip > e.config.CloseSlippageTolerance {
		e.log.WithFields(map[string]interface{}{
			"symbol":   position.Symbol,
			"intended": intendedPrice,
			"fill":     fillPrice,
			"slippage": slip,
		}).Warn("close slippage tolerance exceeded")
	}

	grossPnl, fee, netPnl := realizedPnl(position.EntryPrice, fillPrice, float64(closeContracts), multiplier, position.SideSign(), e.config.TakerFeeRate)

	now := e.now()
	trade := &model.Trade{
		EngineID:   e.engineID,
		OrderID:    orderID,
		Symbol:     position.Symbol,
		Side:       position.Side,
		Type:       model.TradeTypeClose,
		Price:      fillPrice,
		Quantity:   float64(closeContracts),
		Leverage:   position.Leverage,
		Fee:        fee,
		Pnl:        &netPnl,
		Reason:     reason,
		Status:     model.TradeStatusFilled,
		ExecutedAt: &now,
	}

	// The trade row is the durable record of the exit; the ledger row is only
	// touched after it is written.
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("close executed but trade record failed for %s: %w", position.Symbol, err)
	}

	if fullClose {
		if err := e.positions.DeleteByEngineAndSymbol(ctx, e.engineID, position.Symbol); err != nil {
			return nil, fmt.Errorf("close recorded but ledger delete failed for %s: %w", position.Symbol, err)
		}
	} else {
		position.Quantity -= float64(closeContracts)
		if err := e.positions.Save(ctx, position); err != nil {
			return nil, fmt.Errorf("close recorded but ledger update failed for %s: %w", position.Symbol, err)
		}
	}

	e.log.WithFields(map[string]interface{}{
		"symbol":     position.Symbol,
		"reason":     reason,
		"exit_price": fillPrice,
		"net_pnl":    netPnl,
		"full_close": fullClose,
		"estimated":  !confirmed,
	}).Info("position closed")

	return &CloseResult{
		OrderID:   orderID,
		ExitPrice: fillPrice,
		Quantity:  float64(closeContracts),
		GrossPnl:  grossPnl,
		Fee:       fee,
		NetPnl:    netPnl,
		Estimated: !confirmed,
	}, nil
}

// OpenRequest describes a proposal-service entry.
type OpenRequest struct {
	Symbol    string
	Side      string // long | short
	MarginUSD float64
	Leverage  int
}

// Open enters a new position. Unlike closes, an open whose fill deviates more
// than the tolerance from the intended price is rolled back with an immediate
// reversing order.
func (e *TradeExecutor) Open(ctx context.Context, req OpenRequest) (*model.Position, error) {
	if req.Side != model.PositionSideLong && req.Side != model.PositionSideShort {
		return nil, fmt.Errorf("invalid side %q", req.Side)
	}
	if req.MarginUSD <= 0 || req.Leverage < 1 {
		return nil, fmt.Errorf("invalid sizing: margin=%v leverage=%d", req.MarginUSD, req.Leverage)
	}

	contract, err := e.client.GetContract(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contract info for %s: %w", req.Symbol, err)
	}
	multiplier := connectors.ContractMultiplier(contract)

	ticker, err := e.client.GetTicker(req.Symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ticker for %s: %w", req.Symbol, err)
	}
	intendedPrice := connectors.ParsePrice(ticker.MarkPrice)
	if intendedPrice <= 0 {
		intendedPrice = connectors.ParsePrice(ticker.Last)
	}
	if intendedPrice <= 0 {
		return nil, fmt.Errorf("no usable price for %s", req.Symbol)
	}

	notional := req.MarginUSD * float64(req.Leverage)
	contracts := int64(math.Floor(notional / (intendedPrice * multiplier)))
	if contracts < contract.OrderSizeMin {
		return nil, fmt.Errorf("size %d below contract minimum %d for %s", contracts, contract.OrderSizeMin, req.Symbol)
	}
	if contract.OrderSizeMax > 0 && contracts > contract.OrderSizeMax {
		contracts = contract.OrderSizeMax
	}

	size := contracts
	if req.Side == model.PositionSideShort {
		size = -contracts
	}

	order, err := e.client.PlaceOrder(connectors.OrderRequest{
		Contract: req.Symbol,
		Size:     size,
	})
	if err != nil {
		if connectors.IsExecutionRejection(err) {
			return nil, fmt.Errorf("open order rejected for %s: %w", req.Symbol, err)
		}
		return nil, fmt.Errorf("failed to place open order for %s: %w", req.Symbol, err)
	}

	orderID := strconv.FormatInt(order.ID, 10)
	fillPrice, state := e.awaitFill(orderID)
	if state == fillCancelled {
		return nil, fmt.Errorf("open order %s for %s: %w", orderID, req.Symbol, ErrOrderNotExecuted)
	}
	confirmed := state == fillConfirmed
	if !confirmed {
		fillPrice = intendedPrice
	}

	if slip := slippage(fillPrice, intendedPrice); slip > e.config.OpenSlippageTolerance {
		e.log.WithFields(map[string]interface{}{
			"symbol":   req.Symbol,
			"intended": intendedPrice,
			"fill":     fillPrice,
			"slippage": slip,
		}).Error("open slippage tolerance exceeded, reversing")

		revOrder, revErr := e.client.PlaceOrder(connectors.OrderRequest{
			Contract:   req.Symbol,
			Size:       -size,
			ReduceOnly: true,
		})
		if revErr != nil {
			e.log.WithError(revErr).Error("reversing order failed, position left open")
			return nil, fmt.Errorf("open slippage %.4f exceeded tolerance and rollback failed: %w", slip, revErr)
		}

		// Two real executions happened even though no position results; both
		// legs go into the trade history with the rollback reason.
		e.recordRollback(ctx, req, orderID, fillPrice, revOrder, float64(contracts), multiplier, slip)

		return nil, fmt.Errorf("open slippage %.4f exceeded tolerance %.4f, rolled back", slip, e.config.OpenSlippageTolerance)
	}

	fee := openFee(fillPrice, float64(contracts), multiplier, e.config.TakerFeeRate)

	now := e.now()
	trade := &model.Trade{
		EngineID:   e.engineID,
		OrderID:    orderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       model.TradeTypeOpen,
		Price:      fillPrice,
		Quantity:   float64(contracts),
		Leverage:   req.Leverage,
		Fee:        fee,
		Status:     model.TradeStatusFilled,
		ExecutedAt: &now,
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return nil, fmt.Errorf("open executed but trade record failed for %s: %w", req.Symbol, err)
	}

	position := &model.Position{
		EngineID:     e.engineID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Quantity:     float64(contracts),
		EntryPrice:   fillPrice,
		CurrentPrice: fillPrice,
		Leverage:     req.Leverage,
		OpenedAt:     now,
	}
	if err := e.positions.Save(ctx, position); err != nil {
		return nil, fmt.Errorf("open recorded but ledger insert failed for %s: %w", req.Symbol, err)
	}

	e.log.WithFields(map[string]interface{}{
		"symbol":   req.Symbol,
		"side":     req.Side,
		"size":     contracts,
		"price":    fillPrice,
		"leverage": req.Leverage,
	}).Info("position opened")

	return position, nil
}

// recordRollback writes the two trade legs of a slippage-rolled-back open.
// Record failures are logged, not returned: the caller is already surfacing
// the rollback itself.
func (e *TradeExecutor) recordRollback(ctx context.Context, req OpenRequest, openOrderID string, openFillPrice float64, revOrder *connectors.FuturesOrder, quantity, multiplier, slip float64) {
	revOrderID := strconv.FormatInt(revOrder.ID, 10)
	revPrice, revState := e.awaitFill(revOrderID)
	if revState != fillConfirmed {
		revPrice = openFillPrice
	}

	sideSign := 1.0
	if req.Side == model.PositionSideShort {
		sideSign = -1.0
	}
	_, _, netPnl := realizedPnl(openFillPrice, revPrice, quantity, multiplier, sideSign, e.config.TakerFeeRate)

	reason := fmt.Sprintf("open slippage %.4f exceeded tolerance, rolled back", slip)
	now := e.now()

	openLeg := &model.Trade{
		EngineID:   e.engineID,
		OrderID:    openOrderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       model.TradeTypeOpen,
		Price:      openFillPrice,
		Quantity:   quantity,
		Leverage:   req.Leverage,
		Fee:        openFee(openFillPrice, quantity, multiplier, e.config.TakerFeeRate),
		Reason:     reason,
		Status:     model.TradeStatusFilled,
		ExecutedAt: &now,
	}
	closeLeg := &model.Trade{
		EngineID:   e.engineID,
		OrderID:    revOrderID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       model.TradeTypeClose,
		Price:      revPrice,
		Quantity:   quantity,
		Leverage:   req.Leverage,
		Fee:        openFee(revPrice, quantity, multiplier, e.config.TakerFeeRate),
		Pnl:        &netPnl,
		Reason:     reason,
		Status:     model.TradeStatusFilled,
		ExecutedAt: &now,
	}

	for _, leg := range []*model.Trade{openLeg, closeLeg} {
		if err := e.trades.Create(ctx, leg); err != nil {
			e.log.WithFields(map[string]interface{}{
				"symbol": req.Symbol,
				"type":   leg.Type,
			}).WithError(err).Error("failed to record rollback trade leg")
		}
	}
}

// FlattenAll best-effort closes every given position. Per-symbol failures are
// logged and collected but do not stop the remaining exits; the circuit
// breaker path depends on this never aborting early.
func (e *TradeExecutor) FlattenAll(ctx context.Context, positions []model.Position, reason string) []error {
	var errs []error
	for i := range positions {
		if _, err := e.ForcedClose(ctx, &positions[i], reason); err != nil {
			e.log.WithFields(map[string]interface{}{
				"symbol": positions[i].Symbol,
			}).WithError(err).Error("failed to flatten position")
			errs = append(errs, fmt.Errorf("%s: %w", positions[i].Symbol, err))
		}
	}
	return errs
}

type fillState int

const (
	// fillUnknown: the order could not be confirmed either way within the
	// poll window. Callers may estimate from the pre-trade price.
	fillUnknown fillState = iota
	fillConfirmed
	// fillCancelled: the exchange finished the order without executing it.
	// Nothing happened; estimating a fill here would fabricate a trade.
	fillCancelled
)

// awaitFill polls the order until it is finished, returning the fill price
// and how the order resolved.
func (e *TradeExecutor) awaitFill(orderID string) (float64, fillState) {
	for attempt := 0; attempt < e.config.FillPollAttempts; attempt++ {
		if attempt > 0 {
			e.sleep(e.config.FillPollDelay())
		}

		order, err := e.client.GetOrder(orderID)
		if err != nil {
			e.log.WithField("order_id", orderID).WithError(err).Warn("order poll failed")
			continue
		}
		if order.Status == "finished" {
			if order.FinishAs == "cancelled" {
				return 0, fillCancelled
			}
			price := connectors.ParsePrice(order.FillPrice)
			if price > 0 {
				return price, fillConfirmed
			}
			return 0, fillUnknown
		}
	}
	return 0, fillUnknown
}

// realizedPnl computes gross PnL, round-trip taker fees and net PnL for a
// close, in decimal to keep fee rounding exact.
func realizedPnl(entryPrice, exitPrice, quantity, multiplier, sideSign, feeRate float64) (gross, fee, net float64) {
	entry := decimal.NewFromFloat(entryPrice)
	exit := decimal.NewFromFloat(exitPrice)
	qty := decimal.NewFromFloat(quantity)
	mult := decimal.NewFromFloat(multiplier)
	rate := decimal.NewFromFloat(feeRate)
	sign := decimal.NewFromFloat(sideSign)

	grossD := exit.Sub(entry).Mul(qty).Mul(mult).Mul(sign)
	// feeRate applies once to each leg: entry notional + exit notional.
	feeD := entry.Add(exit).Mul(qty).Mul(mult).Mul(rate)

	gross, _ = grossD.Float64()
	fee, _ = feeD.Float64()
	net, _ = grossD.Sub(feeD).Float64()
	return gross, fee, net
}

// openFee is the single-leg taker fee charged on entry.
func openFee(price, quantity, multiplier, feeRate float64) float64 {
	f, _ := decimal.NewFromFloat(price).
		Mul(decimal.NewFromFloat(quantity)).
		Mul(decimal.NewFromFloat(multiplier)).
		Mul(decimal.NewFromFloat(feeRate)).
		Float64()
	return f
}

func slippage(fillPrice, intendedPrice float64) float64 {
	if intendedPrice <= 0 {
		return 0
	}
	return math.Abs(fillPrice-intendedPrice) / intendedPrice
}
