package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/decision"
	"tradepilot/src/executors"
	"tradepilot/src/marketdata"
	"tradepilot/src/model"
	"tradepilot/src/monitoring"
	"tradepilot/src/repository"
	"tradepilot/src/risk"
)

type tradeLog interface {
	FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.Trade, error)
}

type snapshotLog interface {
	Create(ctx context.Context, snapshot *model.AccountSnapshot) error
	FirstByEngine(ctx context.Context, engineID uint) (*model.AccountSnapshot, error)
}

type decisionLog interface {
	Create(ctx context.Context, d *model.Decision) error
	FindLatestByEngine(ctx context.Context, engineID uint, limit int) ([]model.Decision, error)
	NextCycleNumber(ctx context.Context, engineID uint) (int, error)
}

type engineStore interface {
	UpdateStatus(ctx context.Context, id uint, status, lastError string) error
	SetInitialBalance(ctx context.Context, id uint, balance float64) error
}

type tradeExecutor interface {
	ForcedClose(ctx context.Context, position *model.Position, reason string) (*executors.CloseResult, error)
	Open(ctx context.Context, req executors.OpenRequest) (*model.Position, error)
	ClosePercent(ctx context.Context, position *model.Position, percent float64, reason string) (*executors.CloseResult, error)
	FlattenAll(ctx context.Context, positions []model.Position, reason string) []error
}

type marketCollector interface {
	Collect(symbols []string) map[string]marketdata.SymbolSummary
}

// errEngineHalted terminates the schedule from inside a cycle: once the
// circuit breaker trips, the persisted stopped status must mean no further
// cycles run, even if realized PnL later drifts back inside the limits.
var errEngineHalted = errors.New("engine halted by circuit breaker")

// Scheduler owns the recurring cycle of exactly one engine. Cycles are
// non-overlapping: a tick that arrives while the previous cycle is still
// running is skipped, not queued.
type Scheduler struct {
	engine     *model.EngineConfig
	client     connectors.ExchangeClient
	executor   tradeExecutor
	reconciler *Reconciler
	collector  marketCollector
	proposer   decision.Proposer

	ledger     positionLedger
	trades     tradeLog
	snapshots  snapshotLog
	decisions  decisionLog
	engines    engineStore
	exceptions *repository.ExceptionRepository

	config Config
	log    *logger.Entry
	now    nowFunc

	busy sync.Mutex
}

// cycleState carries data across the steps of one cycle.
type cycleState struct {
	account       *connectors.FuturesAccount
	totalValue    float64
	unrealizedPnl float64
	accountOK     bool
	marketData    map[string]marketdata.SymbolSummary
	closedAny     bool
}

// Run executes one cycle immediately, then on every tick until ctx is
// cancelled or the circuit breaker halts the engine. An in-flight cycle
// always runs to a natural completion point; cancellation only prevents
// future ticks.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithField("interval", s.engine.ScanInterval()).Info("engine loop starting")

	if halted := s.runCycleGuarded(ctx); halted {
		s.log.Warn("engine loop halted by circuit breaker")
		return
	}

	ticker := time.NewTicker(s.engine.ScanInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("engine loop stopped")
			return
		case <-ticker.C:
			if halted := s.runCycleGuarded(ctx); halted {
				s.log.Warn("engine loop halted by circuit breaker")
				return
			}
		}
	}
}

// runCycleGuarded reports whether the engine halted itself this cycle.
func (s *Scheduler) runCycleGuarded(ctx context.Context) bool {
	if !s.busy.TryLock() {
		s.log.Warn("previous cycle still running, skipping tick")
		return false
	}
	defer s.busy.Unlock()

	if err := s.runCycle(ctx); err != nil {
		if errors.Is(err, errEngineHalted) {
			return true
		}
		monitoring.Capture(ctx, s.exceptions, s.engine.ID, "engine", "runCycle", "error", err, nil)
	}
	return false
}

// runCycle is one full pass: market data, account, circuit breaker,
// reconciliation, per-position risk, snapshot, proposal, record.
func (s *Scheduler) runCycle(ctx context.Context) error {
	started := s.now()
	state := &cycleState{}

	// 1. Market data. Failure here degrades the proposal context, never the
	// risk path, which only needs positions and account state.
	state.marketData = s.collector.Collect(s.engine.Symbols)

	// 2. Account read.
	s.readAccount(state)

	// 3. Account circuit breaker dominates every per-position rule. It can
	// terminate the cycle before the risk evaluator runs.
	if state.accountOK {
		if stopped := s.checkBreaker(ctx, state); stopped {
			return errEngineHalted
		}
	}

	// 4. First reconciliation pass.
	if _, err := s.reconciler.Sync(ctx, false); err != nil {
		s.log.WithError(err).Warn("reconciliation failed, continuing with ledger state")
	}

	// 5. Per-position risk evaluation and forced closes.
	s.evaluatePositions(ctx, state)

	// 6. Re-reconcile if exits changed the book, so the snapshot and the
	// proposal see reality.
	if state.closedAny {
		if _, err := s.reconciler.Sync(ctx, true); err != nil {
			s.log.WithError(err).Warn("post-close reconciliation failed")
		}
	}

	// 7. Account snapshot.
	snapshot := s.recordSnapshot(ctx, state)

	// 8-9. Decision proposal and record.
	s.propose(ctx, state, snapshot)

	s.log.WithField("elapsed", s.now().Sub(started).String()).Debug("cycle complete")
	return nil
}

func (s *Scheduler) readAccount(state *cycleState) {
	account, err := s.client.GetAccount()
	if err != nil {
		s.log.WithError(err).Warn("account read failed, skipping breaker and snapshot this cycle")
		return
	}

	state.account = account
	state.unrealizedPnl = connectors.ParsePrice(account.UnrealisedPnl)
	// Ledger total is realized-basis: the exchange's equity figure minus
	// whatever is still unrealized.
	state.totalValue = connectors.ParsePrice(account.Total) - state.unrealizedPnl
	state.accountOK = true
}

// checkBreaker returns true when the breaker tripped and the engine stopped.
func (s *Scheduler) checkBreaker(ctx context.Context, state *cycleState) bool {
	initial := s.initialBalance(ctx, state)
	if initial <= 0 {
		return false
	}

	verdict := risk.CheckAccount(state.totalValue, initial, s.engine.StopLossLimit, s.engine.TakeProfitLimit)
	if !verdict.Tripped {
		return false
	}

	s.log.WithFields(map[string]interface{}{
		"pnl":    verdict.Pnl,
		"reason": verdict.Reason,
	}).Warn("account circuit breaker tripped, flattening all positions")

	positions, err := s.ledger.FindByEngine(ctx, s.engine.ID)
	if err != nil {
		s.log.WithError(err).Error("breaker tripped but ledger read failed")
	} else if errs := s.executor.FlattenAll(ctx, positions, verdict.Reason); len(errs) > 0 {
		s.log.WithField("failures", len(errs)).Error("some positions failed to flatten")
	}

	if err := s.engines.UpdateStatus(ctx, s.engine.ID, model.EngineStatusStopped, verdict.Reason); err != nil {
		s.log.WithError(err).Error("failed to persist stopped status")
	}
	s.engine.Status = model.EngineStatusStopped

	return true
}

// initialBalance is the engine's first observed realized account value,
// persisted once and reused for every later breaker check and return figure.
func (s *Scheduler) initialBalance(ctx context.Context, state *cycleState) float64 {
	if s.engine.InitialBalance > 0 {
		return s.engine.InitialBalance
	}

	first, err := s.snapshots.FirstByEngine(ctx, s.engine.ID)
	if err == nil && first != nil && first.TotalValue > 0 {
		s.engine.InitialBalance = first.TotalValue
		return first.TotalValue
	}

	if state.accountOK && state.totalValue > 0 {
		if err := s.engines.SetInitialBalance(ctx, s.engine.ID, state.totalValue); err != nil {
			s.log.WithError(err).Warn("failed to persist initial balance")
		}
		s.engine.InitialBalance = state.totalValue
		return state.totalValue
	}

	return 0
}

func (s *Scheduler) evaluatePositions(ctx context.Context, state *cycleState) {
	positions, err := s.ledger.FindByEngine(ctx, s.engine.ID)
	if err != nil {
		s.log.WithError(err).Error("ledger read failed, skipping risk evaluation")
		return
	}

	for i := range positions {
		position := &positions[i]

		pnl := position.PnlPercent()
		if pnl > position.PeakPnlPercent {
			position.PeakPnlPercent = pnl
			if err := s.ledger.Save(ctx, position); err != nil {
				s.log.WithField("symbol", position.Symbol).WithError(err).
					Warn("failed to persist peak watermark")
			}
		}

		verdict := risk.Evaluate(risk.Snapshot{
			Symbol:         position.Symbol,
			Leverage:       position.Leverage,
			PnlPercent:     pnl,
			PeakPnlPercent: position.PeakPnlPercent,
			StopLossTiers:  s.engine.StopLossTiers,
		}, position.HoldingHours(s.now()))

		if !verdict.Close {
			continue
		}

		s.log.WithFields(map[string]interface{}{
			"symbol":  position.Symbol,
			"pnl_pct": pnl,
			"reason":  verdict.Reason,
		}).Warn("risk rule triggered forced close")

		if _, err := s.executor.ForcedClose(ctx, position, verdict.Reason); err != nil {
			monitoring.Capture(ctx, s.exceptions, s.engine.ID, "engine", "ForcedClose", "error", err,
				map[string]interface{}{"symbol": position.Symbol})
			continue
		}
		state.closedAny = true
	}
}

func (s *Scheduler) recordSnapshot(ctx context.Context, state *cycleState) *model.AccountSnapshot {
	if !state.accountOK {
		return nil
	}

	snapshot := &model.AccountSnapshot{
		EngineID:      s.engine.ID,
		TotalValue:    state.totalValue,
		AvailableCash: connectors.ParsePrice(state.account.Available),
		UnrealizedPnl: state.unrealizedPnl,
	}

	if initial := s.initialBalance(ctx, state); initial > 0 {
		snapshot.ReturnPercent = (state.totalValue - initial) / initial * 100
	}
	if state.totalValue > 0 {
		snapshot.MarginRatio = (state.totalValue - connectors.ParsePrice(state.account.Available)) / state.totalValue
	}

	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		s.log.WithError(err).Error("failed to record account snapshot")
		return nil
	}
	return snapshot
}

func (s *Scheduler) propose(ctx context.Context, state *cycleState, snapshot *model.AccountSnapshot) {
	positions, err := s.ledger.FindByEngine(ctx, s.engine.ID)
	if err != nil {
		s.log.WithError(err).Error("ledger read failed, skipping proposal")
		return
	}

	trades, err := s.trades.FindLatestByEngine(ctx, s.engine.ID, s.config.TradeHistoryDepth)
	if err != nil {
		s.log.WithError(err).Warn("trade history unavailable for proposal context")
	}
	recent, err := s.decisions.FindLatestByEngine(ctx, s.engine.ID, s.config.DecisionHistoryDepth)
	if err != nil {
		s.log.WithError(err).Warn("decision history unavailable for proposal context")
	}

	dctx := &decision.Context{
		MarketData:      state.marketData,
		Positions:       positions,
		TradeHistory:    trades,
		RecentDecisions: recent,
		MaxPositions:    s.engine.MaxPositions,
		MaxLeverage:     s.engine.MaxLeverage,
		Symbols:         s.engine.Symbols,
	}
	if snapshot != nil {
		dctx.AccountInfo = *snapshot
	}

	cycleNumber, err := s.decisions.NextCycleNumber(ctx, s.engine.ID)
	if err != nil {
		cycleNumber = 0
	}

	record := &model.Decision{
		EngineID:    s.engine.ID,
		CycleNumber: cycleNumber,
		Success:     true,
	}

	proposal, err := s.proposer.Propose(ctx, dctx)
	if err != nil {
		monitoring.Capture(ctx, s.exceptions, s.engine.ID, "engine", "Propose", "error", err,
			map[string]interface{}{"cycle": cycleNumber})
		record.Success = false
		record.Error = err.Error()
	} else {
		record.Text = proposal.Text
		record.ToolCalls = s.executeToolCalls(ctx, proposal.ToolInvocations, positions)
	}

	if err := s.decisions.Create(ctx, record); err != nil {
		s.log.WithError(err).Error("failed to record decision")
	}
}

// executeToolCalls applies the proposal's trade calls through the same
// execution paths as forced closes, under the engine's position and leverage
// limits. Returns a summary for the decision record.
func (s *Scheduler) executeToolCalls(ctx context.Context, invocations []decision.ToolInvocation, positions []model.Position) map[string]any {
	if len(invocations) == 0 {
		return nil
	}

	byContract := make(map[string]*model.Position, len(positions))
	for i := range positions {
		byContract[positions[i].Symbol] = &positions[i]
	}
	openCount := len(positions)

	results := make([]map[string]any, 0, len(invocations))
	for _, inv := range invocations {
		outcome := map[string]any{"action": inv.Action, "symbol": inv.Symbol}

		switch inv.Action {
		case decision.ActionOpenLong, decision.ActionOpenShort:
			if openCount >= s.engine.MaxPositions {
				outcome["error"] = "max positions reached"
				break
			}
			if _, exists := byContract[inv.Symbol]; exists {
				outcome["error"] = "position already open"
				break
			}

			side := model.PositionSideLong
			if inv.Action == decision.ActionOpenShort {
				side = model.PositionSideShort
			}
			leverage := inv.Leverage
			if leverage < 1 {
				leverage = 1
			}
			if leverage > s.engine.MaxLeverage {
				leverage = s.engine.MaxLeverage
			}
			margin := inv.MarginUSD
			if margin > s.config.MaxMarginPerTrade {
				margin = s.config.MaxMarginPerTrade
			}

			position, err := s.executor.Open(ctx, executors.OpenRequest{
				Symbol:    inv.Symbol,
				Side:      side,
				MarginUSD: margin,
				Leverage:  leverage,
			})
			if err != nil {
				outcome["error"] = err.Error()
				break
			}
			openCount++
			byContract[inv.Symbol] = position
			outcome["opened"] = position.Quantity

		case decision.ActionClose:
			position, exists := byContract[inv.Symbol]
			if !exists {
				outcome["error"] = "no open position"
				break
			}
			percent := inv.Percent
			if percent <= 0 || percent > 100 {
				percent = 100
			}
			result, err := s.executor.ClosePercent(ctx, position, percent, "proposal close")
			if err != nil {
				outcome["error"] = err.Error()
				break
			}
			outcome["net_pnl"] = result.NetPnl
			if percent >= 100 {
				delete(byContract, inv.Symbol)
				openCount--
			}
		}

		results = append(results, outcome)
	}

	return map[string]any{"calls": results}
}
