package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	logger "github.com/sirupsen/logrus"

	"tradepilot/src/connectors"
	"tradepilot/src/decision"
	"tradepilot/src/executors"
	"tradepilot/src/marketdata"
	"tradepilot/src/model"
	"tradepilot/src/repository"
	"tradepilot/src/security"
)

// NewScheduler wires one engine's cycle out of its collaborators. Tests use
// this directly with fakes; production wiring goes through the Manager.
func NewScheduler(
	engine *model.EngineConfig,
	client connectors.ExchangeClient,
	stream *connectors.TickerStream,
	executor tradeExecutor,
	collector marketCollector,
	proposer decision.Proposer,
	ledger positionLedger,
	trades tradeLog,
	snapshots snapshotLog,
	decisions decisionLog,
	engines engineStore,
	exceptions *repository.ExceptionRepository,
) *Scheduler {
	now := time.Now
	return &Scheduler{
		engine:     engine,
		client:     client,
		executor:   executor,
		reconciler: NewReconciler(engine.ID, client, stream, ledger, now),
		collector:  collector,
		proposer:   proposer,
		ledger:     ledger,
		trades:     trades,
		snapshots:  snapshots,
		decisions:  decisions,
		engines:    engines,
		exceptions: exceptions,
		config:     GetConfig(),
		log:        logger.WithField("engine_id", engine.ID),
		now:        now,
	}
}

type runningEngine struct {
	scheduler *Scheduler
	cancel    context.CancelFunc
	done      chan struct{}
}

// Manager supervises the set of running engine schedulers, keyed by engine
// id. Each engine gets its own exchange client built from its own decrypted
// credentials; nothing is shared across engines except the database.
type Manager struct {
	mu      sync.Mutex
	running map[uint]*runningEngine

	engines    *repository.EngineRepository
	positions  *repository.PositionRepository
	trades     *repository.TradeRepository
	snapshots  *repository.SnapshotRepository
	decisions  *repository.DecisionRepository
	exceptions *repository.ExceptionRepository
}

func NewManager() *Manager {
	return &Manager{
		running:    make(map[uint]*runningEngine),
		engines:    repository.NewEngineRepository(),
		positions:  repository.NewPositionRepository(),
		trades:     repository.NewTradeRepository(),
		snapshots:  repository.NewSnapshotRepository(),
		decisions:  repository.NewDecisionRepository(),
		exceptions: repository.NewExceptionRepository(),
	}
}

// Start launches an engine's scheduler. Idempotent: starting a running engine
// is a no-op.
func (m *Manager) Start(ctx context.Context, engineID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, alreadyRunning := m.running[engineID]; alreadyRunning {
		logger.WithField("engine_id", engineID).Info("engine already running")
		return nil
	}

	engine, err := m.engines.FindByID(ctx, engineID)
	if err != nil {
		return err
	}
	if engine == nil {
		return fmt.Errorf("engine %d not found", engineID)
	}

	scheduler, stream, err := m.buildScheduler(engine)
	if err != nil {
		_ = m.engines.UpdateStatus(ctx, engineID, model.EngineStatusError, err.Error())
		return err
	}

	if err := m.engines.UpdateStatus(ctx, engineID, model.EngineStatusRunning, ""); err != nil {
		return err
	}
	engine.Status = model.EngineStatusRunning

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go stream.Run(runCtx)
	go func() {
		defer close(done)
		scheduler.Run(runCtx)

		// The scheduler may exit on its own when the circuit breaker trips.
		// Cancel the stream and deregister so Status reports stopped.
		cancel()
		m.mu.Lock()
		if entry, ok := m.running[engineID]; ok && entry.done == done {
			delete(m.running, engineID)
		}
		m.mu.Unlock()
	}()

	m.running[engineID] = &runningEngine{scheduler: scheduler, cancel: cancel, done: done}

	logger.WithFields(map[string]interface{}{
		"engine_id": engineID,
		"name":      engine.Name,
		"symbols":   engine.Symbols,
	}).Info("engine started")

	return nil
}

// Stop cancels an engine's future ticks. The in-flight cycle, if any, runs to
// completion. Idempotent: stopping an absent engine is a no-op.
func (m *Manager) Stop(ctx context.Context, engineID uint) error {
	m.mu.Lock()
	entry, ok := m.running[engineID]
	if ok {
		delete(m.running, engineID)
	}
	m.mu.Unlock()

	if !ok {
		logger.WithField("engine_id", engineID).Info("engine not running, stop is a no-op")
		return nil
	}

	entry.cancel()
	<-entry.done

	if err := m.engines.UpdateStatus(ctx, engineID, model.EngineStatusStopped, ""); err != nil {
		return err
	}

	logger.WithField("engine_id", engineID).Info("engine stopped")
	return nil
}

// Status reports whether an engine is currently scheduled.
func (m *Manager) Status(engineID uint) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.running[engineID]; ok {
		return model.EngineStatusRunning
	}
	return model.EngineStatusStopped
}

// RestoreRunning starts every engine whose persisted status is "running",
// called once on process boot. A failure to restore one engine never blocks
// the others.
func (m *Manager) RestoreRunning(ctx context.Context) error {
	engines, err := m.engines.FindByStatus(ctx, model.EngineStatusRunning)
	if err != nil {
		return err
	}

	for _, engine := range engines {
		if err := m.Start(ctx, engine.ID); err != nil {
			logger.WithField("engine_id", engine.ID).WithError(err).
				Error("failed to restore engine")
		}
	}
	return nil
}

// StopAll stops every running engine, used on graceful shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	ids := make([]uint, 0, len(m.running))
	for id := range m.running {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(ctx, id); err != nil {
			logger.WithField("engine_id", id).WithError(err).Error("failed to stop engine")
		}
	}
}

func (m *Manager) buildScheduler(engine *model.EngineConfig) (*Scheduler, *connectors.TickerStream, error) {
	apiKey, err := security.DecryptString(engine.APIKeyEnc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt API key: %w", err)
	}
	apiSecret, err := security.DecryptString(engine.APISecretEnc)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decrypt API secret: %w", err)
	}

	client := connectors.NewGateClient(apiKey, apiSecret)
	stream := connectors.NewTickerStream(engine.Symbols)
	executor := executors.NewTradeExecutor(engine.ID, client, m.positions, m.trades)
	collector := marketdata.NewCollector(client)
	proposer := decision.NewCompletionProposer(engine.Model)

	scheduler := NewScheduler(
		engine, client, stream, executor, collector, proposer,
		m.positions, m.trades, m.snapshots, m.decisions, m.engines, m.exceptions,
	)
	return scheduler, stream, nil
}
