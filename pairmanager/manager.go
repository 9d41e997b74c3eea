// Package pairmanager implements the PairManager described in spec.md §4.4:
// the single authoritative owner of trading pairs and the single entry
// point for fill-driven grid-position mutation.
//
// Grounded on the teacher's account.Holdings (exchanges/account/holdings_test.go):
// one struct, one embedded mutex, a map keyed by a normalized string, and a
// handful of small guarded methods — rather than the original's multiple
// partial classes/mixins (spec.md §9's redesign note).
package pairmanager

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/pair"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

// ErrSymbolNotRegistered is returned by AddPair when a leg is not known to
// the collaborating security registry.
var ErrSymbolNotRegistered = errors.New("symbol not registered with security registry")

// pairKey is the natural identity of a TradingPair: (leg1, leg2).
type pairKey string

func keyFor(leg1, leg2 symbol.Symbol) pairKey {
	return pairKey(leg1.String() + "||" + leg2.String())
}

// PairChangeEvent is published whenever the manager's set of pairs changes
// (spec.md §4.4: "Publishes an added/removed change notification").
type PairChangeEvent struct {
	Pair  *pair.TradingPair
	Added bool
}

// changeChannelCapacity bounds the notification channel (SPEC_FULL.md §C.1).
const changeChannelCapacity = 64

// Outcome reports what ProcessGridOrderEvent did with an event, so callers
// and tests can distinguish "ignored because duplicate" from "ignored
// because untagged" without parsing log output.
type Outcome uint8

const (
	Applied Outcome = iota
	DuplicateExecution
	DecodeFailed
	PairNotManaged
	NonActionable
)

// Manager owns every TradingPair and serializes all mutation through a
// single coarse-grained mutex, per spec.md §5.
type Manager struct {
	mu sync.Mutex

	registry security.Registry

	pairs                map[pairKey]*pair.TradingPair
	processedExecutions  map[string]order.Snapshot
	lastFillTimeByMarket map[symbol.Market]time.Time

	changeCh chan PairChangeEvent
}

// New constructs an empty Manager backed by the given security registry.
func New(registry security.Registry) *Manager {
	return &Manager{
		registry:             registry,
		pairs:                make(map[pairKey]*pair.TradingPair),
		processedExecutions:  make(map[string]order.Snapshot),
		lastFillTimeByMarket: make(map[symbol.Market]time.Time),
		changeCh:             make(chan PairChangeEvent, changeChannelCapacity),
	}
}

// Subscribe returns the read side of the pair change-notification channel.
func (m *Manager) Subscribe() <-chan PairChangeEvent {
	return m.changeCh
}

func (m *Manager) publish(evt PairChangeEvent) {
	select {
	case m.changeCh <- evt:
	default:
		// A full channel means no one is listening closely; dropping the
		// notification is preferable to blocking the mutation path.
	}
}

// AddPair adds a new TradingPair for (leg1, leg2), or returns the existing
// one if the pair is already managed (spec.md §4.4 "AddPair", idempotent on
// duplicate key). It fails if either leg is unknown to the security
// registry.
func (m *Manager) AddPair(leg1, leg2 symbol.Symbol, pairType pair.PairType, levels []grid.LevelPair) (*pair.TradingPair, error) {
	leg1Sec, ok := m.registry.Get(leg1)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotRegistered, leg1)
	}
	leg2Sec, ok := m.registry.Get(leg2)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSymbolNotRegistered, leg2)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(leg1, leg2)
	if existing, ok := m.pairs[key]; ok {
		return existing, nil
	}

	tp := pair.New(leg1, leg2, pairType, leg1Sec, leg2Sec, levels)
	m.pairs[key] = tp
	m.publish(PairChangeEvent{Pair: tp, Added: true})
	return tp, nil
}

// RemovePair removes an explicitly-managed TradingPair.
func (m *Manager) RemovePair(leg1, leg2 symbol.Symbol) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyFor(leg1, leg2)
	tp, ok := m.pairs[key]
	if !ok {
		return
	}
	delete(m.pairs, key)
	m.publish(PairChangeEvent{Pair: tp, Added: false})
}

// GetPair returns the managed TradingPair for (leg1, leg2), if any.
func (m *Manager) GetPair(leg1, leg2 symbol.Symbol) (*pair.TradingPair, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tp, ok := m.pairs[keyFor(leg1, leg2)]
	return tp, ok
}

// Pairs returns a snapshot slice of every managed TradingPair.
func (m *Manager) Pairs() []*pair.TradingPair {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*pair.TradingPair, 0, len(m.pairs))
	for _, tp := range m.pairs {
		out = append(out, tp)
	}
	return out
}

// ProcessGridOrderEvent is the single authoritative entry point for
// fill-driven state changes (spec.md §4.4). It returns an Outcome
// describing what happened; no error crosses this boundary (spec.md §7:
// "No exception propagates across the Process/Reconcile boundary").
func (m *Manager) ProcessGridOrderEvent(evt order.Event) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processLocked(evt)
}

// processLocked implements the algorithm of spec.md §4.4 under the caller's
// held lock. Reconciliation reuses it directly (via Apply) so a
// replay sweep and a live event never interleave inside the same critical
// section.
func (m *Manager) processLocked(evt order.Event) Outcome {
	if evt.ExecutionID != "" {
		if _, ok := m.processedExecutions[evt.ExecutionID]; ok {
			return DuplicateExecution
		}
	}

	leg1, leg2, lp, ok := grid.DecodeTag(evt.Ticket.Tag)
	if !ok {
		return DecodeFailed
	}

	tp, managed := m.pairs[keyFor(leg1, leg2)]
	if !managed {
		return PairNotManaged
	}

	pos := tp.GetOrCreatePosition(lp, evt.Time)

	outcome := NonActionable
	switch evt.Status {
	case order.PartiallyFilled:
		pos.ProcessFill(evt)
		outcome = Applied
	case order.Filled:
		pos.ProcessFill(evt)
		if !pos.Invested() {
			tp.RemovePosition(pos.Tag())
		}
		outcome = Applied
	case order.Canceled, order.Invalid:
		if !pos.Invested() {
			tp.RemovePosition(pos.Tag())
		}
		outcome = Applied
	default:
		// None, New, Submitted, UpdateSubmitted: no position change.
	}

	if evt.ExecutionID != "" {
		m.processedExecutions[evt.ExecutionID] = order.Snapshot{
			ExecutionID: evt.ExecutionID,
			Time:        evt.Time,
			Market:      evt.Symbol.Market,
		}
	}
	if existing, ok := m.lastFillTimeByMarket[evt.Symbol.Market]; !ok || evt.Time.After(existing) {
		m.lastFillTimeByMarket[evt.Symbol.Market] = evt.Time
	}

	return outcome
}

// GridAggregate computes GP(sym): the aggregate grid-position quantity for
// sym, summed across every managed pair (GLOSSARY "GP").
func (m *Manager) GridAggregate(sym symbol.Symbol) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.aggregateLocked(sym)
}

func (m *Manager) aggregateLocked(sym symbol.Symbol) decimal.Decimal {
	total := decimal.Zero
	for _, tp := range m.pairs {
		total = total.Add(tp.AggregateQuantity(sym))
	}
	return total
}

// LastFillTime returns the recorded last-fill time for market, and whether
// one has been recorded at all.
func (m *Manager) LastFillTime(market symbol.Market) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFillTimeLocked(market)
}

func (m *Manager) lastFillTimeLocked(market symbol.Market) (time.Time, bool) {
	t, ok := m.lastFillTimeByMarket[market]
	return t, ok
}

// LastFillTimeLocked is LastFillTime for a caller already inside a WithLock
// callback (e.g. the reconciliation sweep). Calling it outside WithLock is a
// race; calling LastFillTime itself from inside WithLock would deadlock on
// Manager's non-reentrant mutex.
func (m *Manager) LastFillTimeLocked(market symbol.Market) (time.Time, bool) {
	return m.lastFillTimeLocked(market)
}

// LastFillTimesByMarket returns a copy of the whole map, for baseline
// initialization and checkpoint-window computation.
func (m *Manager) LastFillTimesByMarket() map[symbol.Market]time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastFillTimesByMarketLocked()
}

func (m *Manager) lastFillTimesByMarketLocked() map[symbol.Market]time.Time {
	out := make(map[symbol.Market]time.Time, len(m.lastFillTimeByMarket))
	for k, v := range m.lastFillTimeByMarket {
		out[k] = v
	}
	return out
}

// LastFillTimesByMarketLocked is LastFillTimesByMarket for a caller already
// inside a WithLock callback; see LastFillTimeLocked.
func (m *Manager) LastFillTimesByMarketLocked() map[symbol.Market]time.Time {
	return m.lastFillTimesByMarketLocked()
}

// HasProcessedExecution reports whether executionID has already been
// recorded (spec.md §4.5 "ShouldProcessExecution" dedup check).
func (m *Manager) HasProcessedExecution(executionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasProcessedExecutionLocked(executionID)
}

func (m *Manager) hasProcessedExecutionLocked(executionID string) bool {
	_, ok := m.processedExecutions[executionID]
	return ok
}

// HasProcessedExecutionLocked is HasProcessedExecution for a caller already
// inside a WithLock callback; see LastFillTimeLocked.
func (m *Manager) HasProcessedExecutionLocked(executionID string) bool {
	return m.hasProcessedExecutionLocked(executionID)
}

// ProcessedExecutions returns a copy of the processed-execution snapshot
// map, for persistence.
func (m *Manager) ProcessedExecutions() map[string]order.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]order.Snapshot, len(m.processedExecutions))
	for k, v := range m.processedExecutions {
		out[k] = v
	}
	return out
}

// PruneProcessedExecutions removes every processed-execution snapshot whose
// Time is strictly before the recorded last-fill-time of its market,
// keeping equal times (spec.md §4.5 "CleanupProcessedExecutions").
func (m *Manager) PruneProcessedExecutions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, snap := range m.processedExecutions {
		lastFill, ok := m.lastFillTimeByMarket[snap.Market]
		if ok && snap.Time.Before(lastFill) {
			delete(m.processedExecutions, id)
			removed++
		}
	}
	return removed
}

// RestoreState resets the manager's auxiliary maps from a persisted
// snapshot, and reseats each restored grid position into its (possibly
// freshly-AddPair'd) TradingPair. Positions whose pair is unknown are
// skipped and reported, so the caller can log+continue per spec.md §7
// ("Unrecoverable ... skip that position, log, continue").
func (m *Manager) RestoreState(positions []RestoredPosition, lastFillTimeByMarket map[symbol.Market]time.Time, processedExecutions map[string]order.Snapshot) (skipped []RestoredPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rp := range positions {
		tp, ok := m.pairs[keyFor(rp.Leg1Symbol, rp.Leg2Symbol)]
		if !ok {
			skipped = append(skipped, rp)
			continue
		}
		pos := tp.GetOrCreatePosition(rp.Position.LevelPair, rp.Position.FirstFillTime)
		*pos = *rp.Position
	}

	m.lastFillTimeByMarket = make(map[symbol.Market]time.Time, len(lastFillTimeByMarket))
	for k, v := range lastFillTimeByMarket {
		m.lastFillTimeByMarket[k] = v
	}

	m.processedExecutions = make(map[string]order.Snapshot, len(processedExecutions))
	for k, v := range processedExecutions {
		m.processedExecutions[k] = v
	}

	return skipped
}

// RestoredPosition pairs a persisted grid position with the leg symbols
// needed to find its owning pair at restore time.
type RestoredPosition struct {
	Leg1Symbol symbol.Symbol
	Leg2Symbol symbol.Symbol
	Position   *grid.Position
}

// AllPositions returns every grid position held by every managed pair, for
// persistence as the flat array spec.md §6 requires.
func (m *Manager) AllPositions() []RestoredPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []RestoredPosition
	for _, tp := range m.pairs {
		leg1, leg2 := tp.Key()
		for _, pos := range tp.Positions() {
			out = append(out, RestoredPosition{Leg1Symbol: leg1, Leg2Symbol: leg2, Position: pos})
		}
	}
	return out
}

// WithLock runs fn with the manager's mutex held for the duration, giving
// the reconciliation engine the single coarse-grained critical section
// spec.md §5 requires for a sweep (query + sort + replay all as one
// indivisible unit relative to concurrent live events).
func (m *Manager) WithLock(fn func(*Manager)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

// Apply is processLocked exposed for callers that already hold the lock via
// WithLock (the reconciliation replay path).
func (m *Manager) Apply(evt order.Event) Outcome {
	return m.processLocked(evt)
}
