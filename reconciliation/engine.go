// Package reconciliation implements the baseline-reconciliation sweep of
// spec.md §4.5: detecting a discrepancy between ledger and grid-aggregate
// positions, replaying missed executions from a broker history provider
// with exactly-once semantics, and durably checkpointing state.
//
// Grounded on the teacher's engine/subsystem Manager (guarded state with
// single-sweep methods that a host scheduler invokes; Engine has no
// start/stop or run loop of its own) and on
// backtester/funding's snapshot persistence idiom for the JSON checkpoint
// shape.
package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/pairmanager"
	"github.com/thrasher-corp/gridarb/symbol"
)

// virtualOrderCounter is the process-wide, strictly-decreasing counter
// spec.md §4.5 step 5 and §5 "Shared resources" require: every synthesized
// replay event gets a unique negative order id so it can never collide with
// a real host-assigned one.
var virtualOrderCounter atomic.Int64

func nextVirtualOrderID() string {
	return fmt.Sprintf("%d", virtualOrderCounter.Add(-1))
}

// ResetVirtualOrderCounter rewinds the process-wide virtual order id
// counter. It exists only for test isolation between independent Engine
// instances in the same process; callers must ensure no reconciliation sweep
// is in flight when calling it.
func ResetVirtualOrderCounter() {
	virtualOrderCounter.Store(0)
}

const (
	checkpointLookback = 5 * time.Minute
	freshStartWindow   = 30 * time.Minute
	stateKey           = "trade_data/trading_pair_manager/state"
	backupKeyPrefix    = "trade_data/trading_pair_manager/backups/"
	backupKeyLayout    = "20060102_150405"
)

// Stats is a point-in-time snapshot of the engine's recent activity, for
// host dashboards (SPEC_FULL.md §C.3).
type Stats struct {
	LastSweepTime        time.Time
	LastDiscrepancyFound bool
	RecordsReplayed      int
	RecordsSkipped       int
	PersistFailures      int
}

// Engine implements CompareBaseline/Reconciliation/PersistState/RestoreState
// against a single pairmanager.Manager.
type Engine struct {
	manager   *pairmanager.Manager
	portfolio Portfolio
	provider  ExecutionHistoryProvider
	store     ObjectStore

	// OnWarning is invoked for every condition spec.md §7 classifies as
	// "transient: log, abandon this cycle" — history provider failure,
	// object-store failure, an unreconstructible restored symbol. Nil is a
	// valid no-op logger; callers wire their own logging stack in.
	OnWarning func(error)

	mu       sync.Mutex
	baseline map[string]decimal.Decimal
	stats    Stats
}

// NewEngine constructs an Engine over manager, reading ledger truth from
// portfolio, broker history from provider, and checkpointing to store.
func NewEngine(manager *pairmanager.Manager, portfolio Portfolio, provider ExecutionHistoryProvider, store ObjectStore) *Engine {
	return &Engine{
		manager:   manager,
		portfolio: portfolio,
		provider:  provider,
		store:     store,
		baseline:  make(map[string]decimal.Decimal),
	}
}

func (e *Engine) warn(err error) {
	if e.OnWarning != nil && err != nil {
		e.OnWarning(err)
	}
}

// InitializeBaseline computes Baseline := {s: LP(s)-GP(s) | LP(s) != GP(s)}
// but only on a genuinely fresh start: spec.md §4.5 gates it on
// last_fill_time_by_market being empty, so a restore that already populated
// that map leaves the baseline at its persisted-implicit zero value.
func (e *Engine) InitializeBaseline() {
	if len(e.manager.LastFillTimesByMarket()) != 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.baseline = make(map[string]decimal.Decimal)
	for _, sym := range e.portfolio.Symbols() {
		lp := e.portfolio.LedgerPosition(sym)
		gp := e.manager.GridAggregate(sym)
		if !lp.Equal(gp) {
			e.baseline[sym.String()] = lp.Sub(gp)
		}
	}
}

// Baseline returns a copy of the current baseline map, keyed by symbol
// string form.
func (e *Engine) Baseline() map[string]decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]decimal.Decimal, len(e.baseline))
	for k, v := range e.baseline {
		out[k] = v
	}
	return out
}

// Stats returns a snapshot of recent engine activity.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// CompareBaseline runs spec.md §4.5's periodic sweep: compute the current
// diff, compare against the baseline, and either reconcile or clean up
// before always persisting.
func (e *Engine) CompareBaseline(ctx context.Context) (hasDiscrepancy bool, err error) {
	e.mu.Lock()
	baselineCopy := make(map[string]decimal.Decimal, len(e.baseline))
	for k, v := range e.baseline {
		baselineCopy[k] = v
	}
	e.mu.Unlock()

	current := diff(baselineCopy, e.portfolio, e.manager.GridAggregate)
	hasDiscrepancy = len(discrepancies(baselineCopy, current)) > 0

	e.mu.Lock()
	e.stats.LastSweepTime = time.Now()
	e.stats.LastDiscrepancyFound = hasDiscrepancy
	e.mu.Unlock()

	if hasDiscrepancy {
		e.Reconciliation(ctx)
	} else {
		e.manager.PruneProcessedExecutions()
	}

	if perr := e.PersistState(ctx); perr != nil {
		e.warn(fmt.Errorf("persist state: %w", perr))
	}

	return hasDiscrepancy, nil
}

// Reconciliation replays executions missed since the last recorded fill,
// per spec.md §4.5: query, filter, sort, synthesize, apply — the whole
// sweep runs under the manager's single mutex so a live event can never
// interleave with a partially-applied replay.
func (e *Engine) Reconciliation(ctx context.Context) {
	e.manager.WithLock(func(m *pairmanager.Manager) {
		e.reconcileLocked(ctx, m)
	})
}

func (e *Engine) reconcileLocked(ctx context.Context, m *pairmanager.Manager) {
	now := time.Now()
	start := now.Add(-freshStartWindow)
	lastFillTimes := m.LastFillTimesByMarketLocked()
	if len(lastFillTimes) > 0 {
		earliest := now
		for _, t := range lastFillTimes {
			if t.Before(earliest) {
				earliest = t
			}
		}
		start = earliest.Add(-checkpointLookback)
	}

	records, err := e.provider.GetExecutionHistory(ctx, start, now)
	if err != nil {
		e.warn(fmt.Errorf("query execution history: %w", err))
		return
	}
	if len(records) == 0 {
		return
	}

	surviving := make([]order.Record, 0, len(records))
	skipped := 0
	for _, rec := range records {
		if shouldProcessExecution(m, rec) {
			surviving = append(surviving, rec)
		} else {
			skipped++
		}
	}

	sort.Slice(surviving, func(i, j int) bool {
		return surviving[i].Time.Before(surviving[j].Time)
	})

	replayed := 0
	for _, rec := range surviving {
		evt := order.Event{
			OrderID:      nextVirtualOrderID(),
			ExecutionID:  rec.ExecutionID,
			Symbol:       rec.Symbol,
			Time:         rec.Time,
			Status:       order.Filled,
			Direction:    order.SignOf(rec.SignedQuantity),
			FillPrice:    rec.Price,
			FillQuantity: rec.SignedQuantity.Abs(),
			Fee:          rec.Fee,
			Ticket:       order.Ticket{Tag: rec.Tag},
		}
		m.Apply(evt)
		replayed++
	}

	e.mu.Lock()
	e.stats.RecordsReplayed += replayed
	e.stats.RecordsSkipped += skipped
	e.mu.Unlock()
}

// shouldProcessExecution implements spec.md §4.5 step 3's two-part filter.
// It runs from inside reconcileLocked, itself already inside a
// Manager.WithLock callback, so it must use the Locked accessor variants —
// the plain ones would deadlock on Manager's non-reentrant mutex.
func shouldProcessExecution(m *pairmanager.Manager, rec order.Record) bool {
	if rec.ExecutionID != "" && m.HasProcessedExecutionLocked(rec.ExecutionID) {
		return false
	}
	if lastFill, ok := m.LastFillTimeLocked(rec.Symbol.Market); ok && rec.Time.Before(lastFill) {
		return false
	}
	return true
}

// PersistState serializes the manager's full triple and writes it to both
// the latest-state key and a timestamped backup key (spec.md §6).
func (e *Engine) PersistState(ctx context.Context) error {
	now := time.Now()
	ps := buildPersistedState(now, e.manager.AllPositions(), e.manager.LastFillTimesByMarket(), e.manager.ProcessedExecutions())
	data, err := marshalPersistedState(ps)
	if err != nil {
		e.recordPersistFailure()
		return fmt.Errorf("marshal persisted state: %w", err)
	}

	if err := e.store.Save(ctx, stateKey, data); err != nil {
		e.recordPersistFailure()
		return fmt.Errorf("save latest state: %w", err)
	}
	backupKey := backupKeyPrefix + now.UTC().Format(backupKeyLayout)
	if err := e.store.Save(ctx, backupKey, data); err != nil {
		e.recordPersistFailure()
		return fmt.Errorf("save backup state: %w", err)
	}
	return nil
}

func (e *Engine) recordPersistFailure() {
	e.mu.Lock()
	e.stats.PersistFailures++
	e.mu.Unlock()
}

// RestoreState reads the latest checkpoint (a no-op if absent), rebuilds
// every restorable grid position into the manager, and performs a bounded
// reconciliation sweep over the window since the checkpoint (spec.md §4.5
// "RestoreState").
func (e *Engine) RestoreState(ctx context.Context) error {
	exists, err := e.store.ContainsKey(ctx, stateKey)
	if err != nil {
		return fmt.Errorf("check state key: %w", err)
	}
	if !exists {
		return nil
	}

	data, err := e.store.Read(ctx, stateKey)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	positions, lastFillTimeByMarket, processedExecutions, malformed, err := parseRestoredState(data)
	if err != nil {
		return fmt.Errorf("parse state: %w", err)
	}
	for _, m := range malformed {
		e.warn(fmt.Errorf("skipping unreconstructible grid position: %s", m))
	}

	e.rebuildPairs(positions)

	skipped := e.manager.RestoreState(positions, lastFillTimeByMarket, processedExecutions)
	for _, rp := range skipped {
		e.warn(fmt.Errorf("skipping restored position for unmanaged pair %s/%s", rp.Leg1Symbol, rp.Leg2Symbol))
	}

	e.Reconciliation(ctx)
	return nil
}

// rebuildPairs ensures every (leg1, leg2) combination named by positions has
// a managed TradingPair before RestoreState reseats them, per spec.md §4.5
// "Rebuild pairs via AddPair (idempotent)". It seeds the pair with whatever
// level pairs the restored positions themselves carry; a host that later
// calls AddPair with its authoritative grid configuration finds the pair
// already present and gets it back unchanged, since AddPair is idempotent on
// the (leg1, leg2) key.
func (e *Engine) rebuildPairs(positions []pairmanager.RestoredPosition) {
	type group struct {
		leg1, leg2 symbol.Symbol
		levels     map[string]grid.LevelPair
	}
	groups := make(map[string]*group)
	for _, rp := range positions {
		key := rp.Leg1Symbol.String() + "||" + rp.Leg2Symbol.String()
		g, ok := groups[key]
		if !ok {
			g = &group{leg1: rp.Leg1Symbol, leg2: rp.Leg2Symbol, levels: make(map[string]grid.LevelPair)}
			groups[key] = g
		}
		g.levels[rp.Position.LevelPair.Entry.NaturalKey()] = rp.Position.LevelPair
	}
	for _, g := range groups {
		if _, ok := e.manager.GetPair(g.leg1, g.leg2); ok {
			continue
		}
		levels := make([]grid.LevelPair, 0, len(g.levels))
		for _, lp := range g.levels {
			levels = append(levels, lp)
		}
		if _, err := e.manager.AddPair(g.leg1, g.leg2, "", levels); err != nil {
			e.warn(fmt.Errorf("rebuild pair %s/%s: %w", g.leg1, g.leg2, err))
		}
	}
}
