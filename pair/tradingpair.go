package pair

import (
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/security"
	"github.com/thrasher-corp/gridarb/symbol"
)

// PairType distinguishes how the two legs relate to each other (e.g. a
// spot/future basis pair vs. a cross-exchange spot/spot pair). The core
// treats it as an opaque label; it is not used by the evaluator or grid
// math and only identifies the pair's strategy family for host code.
type PairType string

// spreadHistoryCapacity bounds the observable spread history ring buffer
// (SPEC_FULL.md §C.2): 256 samples, about 21 minutes of history at one
// tick every five seconds, without unbounded growth.
const spreadHistoryCapacity = 256

// SpreadSample is one historical observation of the pair's executable
// spread.
type SpreadSample struct {
	Time             time.Time
	ExecutableSpread decimal.Decimal
}

// TradingPair owns a pair's grid levels, grid positions and derived market
// state (spec.md §3 "TradingPair").
type TradingPair struct {
	mu sync.RWMutex

	Leg1Symbol symbol.Symbol
	Leg2Symbol symbol.Symbol
	Type       PairType

	leg1Security *security.Security
	leg2Security *security.Security

	gridLevels    []grid.LevelPair
	gridPositions map[string]*grid.Position

	lastEval       Result
	direction      grid.Direction
	lastUpdateTime time.Time

	spreadHistory []SpreadSample
}

// New constructs a TradingPair for the given legs and grid levels.
func New(leg1, leg2 symbol.Symbol, pairType PairType, leg1Sec, leg2Sec *security.Security, levels []grid.LevelPair) *TradingPair {
	return &TradingPair{
		Leg1Symbol:    leg1,
		Leg2Symbol:    leg2,
		Type:          pairType,
		leg1Security:  leg1Sec,
		leg2Security:  leg2Sec,
		gridLevels:    levels,
		gridPositions: make(map[string]*grid.Position),
	}
}

// Key returns the pair's natural identity key, (leg1, leg2).
func (p *TradingPair) Key() (symbol.Symbol, symbol.Symbol) {
	return p.Leg1Symbol, p.Leg2Symbol
}

// Update re-evaluates the pair's market state from its legs' current
// quotes and refreshes every derived field atomically relative to readers
// (spec.md §4.3 "Pair.Update()").
func (p *TradingPair) Update(now time.Time) Result {
	leg1 := p.leg1Security.Snapshot()
	leg2 := p.leg2Security.Snapshot()
	result := Evaluate(leg1.Bid, leg1.Ask, leg2.Bid, leg2.Ask)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastEval = result
	p.direction = result.Direction
	p.lastUpdateTime = now
	if result.HasExecutableSpread {
		p.spreadHistory = append(p.spreadHistory, SpreadSample{Time: now, ExecutableSpread: result.ExecutableSpread})
		if len(p.spreadHistory) > spreadHistoryCapacity {
			p.spreadHistory = p.spreadHistory[len(p.spreadHistory)-spreadHistoryCapacity:]
		}
	}
	return result
}

// Snapshot returns a consistent read of the pair's last-evaluated state.
func (p *TradingPair) Snapshot() (Result, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastEval, p.lastUpdateTime
}

// SpreadHistory returns a copy of the recent executable-spread samples,
// oldest first (SPEC_FULL.md §C.2).
func (p *TradingPair) SpreadHistory() []SpreadSample {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]SpreadSample, len(p.spreadHistory))
	copy(out, p.spreadHistory)
	return out
}

// GridLevels returns the pair's configured grid level pairs.
func (p *TradingPair) GridLevels() []grid.LevelPair {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]grid.LevelPair, len(p.gridLevels))
	copy(out, p.gridLevels)
	return out
}

// ErrUnknownLevelPair names the condition of a tag decoding to a level pair
// this TradingPair was not configured with. No function returns it:
// GetOrCreatePosition accepts any level pair.
var ErrUnknownLevelPair = errors.New("grid level pair not configured for this trading pair")

// GetOrCreatePosition returns the existing position keyed by
// levelPair.Entry.NaturalKey(), constructing and storing a fresh zero-leg
// position on first use (spec.md §4.3 "GetOrCreatePosition", idempotent per
// key).
func (p *TradingPair) GetOrCreatePosition(levelPair grid.LevelPair, _ time.Time) *grid.Position {
	key := levelPair.Entry.NaturalKey()

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.gridPositions[key]; ok {
		return existing
	}
	pos := grid.NewPosition(p.Leg1Symbol, p.Leg2Symbol, levelPair)
	p.gridPositions[key] = pos
	return pos
}

// GetPosition returns the position for a tag, if any.
func (p *TradingPair) GetPosition(tag string) (*grid.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.gridPositions[tag]
	return pos, ok
}

// RemovePosition deletes the position keyed by tag.
func (p *TradingPair) RemovePosition(tag string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.gridPositions, tag)
}

// Positions returns a snapshot slice of every currently-held grid position.
func (p *TradingPair) Positions() []*grid.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*grid.Position, 0, len(p.gridPositions))
	for _, pos := range p.gridPositions {
		out = append(out, pos)
	}
	return out
}

// AggregateQuantity sums the signed quantity this pair holds in sym across
// all of its grid positions (either leg).
func (p *TradingPair) AggregateQuantity(sym symbol.Symbol) decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	total := decimal.Zero
	for _, pos := range p.gridPositions {
		switch {
		case pos.Leg1Symbol.Equal(sym):
			total = total.Add(pos.Leg1Quantity)
		case pos.Leg2Symbol.Equal(sym):
			total = total.Add(pos.Leg2Quantity)
		}
	}
	return total
}
