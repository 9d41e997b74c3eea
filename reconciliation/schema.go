package reconciliation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thrasher-corp/gridarb/grid"
	"github.com/thrasher-corp/gridarb/order"
	"github.com/thrasher-corp/gridarb/pairmanager"
	"github.com/thrasher-corp/gridarb/symbol"
)

// schemaVersion is the only version PersistState writes and RestoreState
// accepts (spec.md §6: "version \"1.0\"").
const schemaVersion = "1.0"

// ErrUnsupportedSchemaVersion is returned when a persisted document carries
// a version this build does not understand.
var ErrUnsupportedSchemaVersion = fmt.Errorf("unsupported persisted state schema version")

type persistedLevel struct {
	SpreadPercentage    string `json:"spread_pct"`
	Direction           string `json:"direction"`
	Type                string `json:"type"`
	PositionSizePercent string `json:"position_size_pct"`
}

type persistedLevelPair struct {
	Entry persistedLevel `json:"entry"`
	Exit  persistedLevel `json:"exit"`
}

type persistedGridPosition struct {
	Leg1Symbol    string             `json:"leg1_symbol"`
	Leg2Symbol    string             `json:"leg2_symbol"`
	LevelPair     persistedLevelPair `json:"level_pair"`
	Leg1Quantity  string             `json:"leg1_quantity"`
	Leg2Quantity  string             `json:"leg2_quantity"`
	Leg1AvgCost   string             `json:"leg1_avg_cost"`
	Leg2AvgCost   string             `json:"leg2_avg_cost"`
	FirstFillTime time.Time          `json:"first_fill_time"`
}

type persistedLastFillTime struct {
	Market       string    `json:"market"`
	LastFillTime time.Time `json:"last_fill_time"`
}

type persistedSnapshot struct {
	ExecutionID string    `json:"execution_id"`
	TimeUTC     time.Time `json:"time_utc"`
	Market      string    `json:"market"`
}

type persistedProcessedExecution struct {
	ExecutionID string            `json:"execution_id"`
	Snapshot    persistedSnapshot `json:"snapshot"`
}

// persistedState is the exact wire shape of spec.md §6's versioned JSON
// document.
type persistedState struct {
	Timestamp            time.Time                      `json:"timestamp"`
	Version              string                         `json:"version"`
	GridPositions        []persistedGridPosition        `json:"grid_positions"`
	LastFillTimeByMarket []persistedLastFillTime        `json:"last_fill_time_by_market"`
	ProcessedExecutions  []persistedProcessedExecution  `json:"processed_executions"`
}

func levelToPersisted(l grid.Level) persistedLevel {
	return persistedLevel{
		SpreadPercentage:    l.SpreadPercentage.String(),
		Direction:           l.Direction.String(),
		Type:                l.Type.String(),
		PositionSizePercent: l.PositionSizePercent.String(),
	}
}

func levelFromPersisted(p persistedLevel) (grid.Level, error) {
	spread, err := decimal.NewFromString(p.SpreadPercentage)
	if err != nil {
		return grid.Level{}, fmt.Errorf("parse spread_pct %q: %w", p.SpreadPercentage, err)
	}
	size, err := decimal.NewFromString(p.PositionSizePercent)
	if err != nil {
		return grid.Level{}, fmt.Errorf("parse position_size_pct %q: %w", p.PositionSizePercent, err)
	}
	dir, err := grid.StringToDirection(p.Direction)
	if err != nil {
		return grid.Level{}, err
	}
	typ, err := grid.StringToLevelType(p.Type)
	if err != nil {
		return grid.Level{}, err
	}
	return grid.Level{
		SpreadPercentage:    spread,
		Direction:           dir,
		Type:                typ,
		PositionSizePercent: size,
	}, nil
}

func buildPersistedState(now time.Time, positions []pairmanager.RestoredPosition, lastFillTimeByMarket map[symbol.Market]time.Time, processedExecutions map[string]order.Snapshot) persistedState {
	out := persistedState{
		Timestamp: now.UTC(),
		Version:   schemaVersion,
	}
	for _, rp := range positions {
		pos := rp.Position
		out.GridPositions = append(out.GridPositions, persistedGridPosition{
			Leg1Symbol: rp.Leg1Symbol.String(),
			Leg2Symbol: rp.Leg2Symbol.String(),
			LevelPair: persistedLevelPair{
				Entry: levelToPersisted(pos.LevelPair.Entry),
				Exit:  levelToPersisted(pos.LevelPair.Exit),
			},
			Leg1Quantity:  pos.Leg1Quantity.String(),
			Leg2Quantity:  pos.Leg2Quantity.String(),
			Leg1AvgCost:   pos.Leg1AvgCost.String(),
			Leg2AvgCost:   pos.Leg2AvgCost.String(),
			FirstFillTime: pos.FirstFillTime.UTC(),
		})
	}
	for market, t := range lastFillTimeByMarket {
		out.LastFillTimeByMarket = append(out.LastFillTimeByMarket, persistedLastFillTime{
			Market:       market.String(),
			LastFillTime: t.UTC(),
		})
	}
	for id, snap := range processedExecutions {
		out.ProcessedExecutions = append(out.ProcessedExecutions, persistedProcessedExecution{
			ExecutionID: id,
			Snapshot: persistedSnapshot{
				ExecutionID: snap.ExecutionID,
				TimeUTC:     snap.Time.UTC(),
				Market:      snap.Market.String(),
			},
		})
	}
	return out
}

func marshalPersistedState(ps persistedState) ([]byte, error) {
	return json.Marshal(ps)
}

// parseRestoredState inverts buildPersistedState, skipping (and reporting)
// any grid position whose symbols fail to parse rather than aborting the
// whole restore (spec.md §7 "Unrecoverable": skip, log, continue).
func parseRestoredState(data []byte) (positions []pairmanager.RestoredPosition, lastFillTimeByMarket map[symbol.Market]time.Time, processedExecutions map[string]order.Snapshot, malformed []string, err error) {
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("unmarshal persisted state: %w", err)
	}
	if ps.Version != schemaVersion {
		return nil, nil, nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedSchemaVersion, ps.Version)
	}

	lastFillTimeByMarket = make(map[symbol.Market]time.Time, len(ps.LastFillTimeByMarket))
	for _, e := range ps.LastFillTimeByMarket {
		lastFillTimeByMarket[symbol.Market(e.Market)] = e.LastFillTime
	}

	processedExecutions = make(map[string]order.Snapshot, len(ps.ProcessedExecutions))
	for _, e := range ps.ProcessedExecutions {
		processedExecutions[e.ExecutionID] = order.Snapshot{
			ExecutionID: e.Snapshot.ExecutionID,
			Time:        e.Snapshot.TimeUTC,
			Market:      symbol.Market(e.Snapshot.Market),
		}
	}

	for _, pgp := range ps.GridPositions {
		rp, convErr := persistedGridPositionToRestored(pgp)
		if convErr != nil {
			malformed = append(malformed, fmt.Sprintf("%s/%s: %v", pgp.Leg1Symbol, pgp.Leg2Symbol, convErr))
			continue
		}
		positions = append(positions, rp)
	}
	return positions, lastFillTimeByMarket, processedExecutions, malformed, nil
}

func persistedGridPositionToRestored(pgp persistedGridPosition) (pairmanager.RestoredPosition, error) {
	leg1, err := symbol.Parse(pgp.Leg1Symbol)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg1 symbol: %w", err)
	}
	leg2, err := symbol.Parse(pgp.Leg2Symbol)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg2 symbol: %w", err)
	}
	entry, err := levelFromPersisted(pgp.LevelPair.Entry)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse entry level: %w", err)
	}
	exit, err := levelFromPersisted(pgp.LevelPair.Exit)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse exit level: %w", err)
	}
	leg1Qty, err := decimal.NewFromString(pgp.Leg1Quantity)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg1_quantity: %w", err)
	}
	leg2Qty, err := decimal.NewFromString(pgp.Leg2Quantity)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg2_quantity: %w", err)
	}
	leg1Cost, err := decimal.NewFromString(pgp.Leg1AvgCost)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg1_avg_cost: %w", err)
	}
	leg2Cost, err := decimal.NewFromString(pgp.Leg2AvgCost)
	if err != nil {
		return pairmanager.RestoredPosition{}, fmt.Errorf("parse leg2_avg_cost: %w", err)
	}

	pos := grid.NewPosition(leg1, leg2, grid.LevelPair{Entry: entry, Exit: exit})
	pos.Leg1Quantity = leg1Qty
	pos.Leg2Quantity = leg2Qty
	pos.Leg1AvgCost = leg1Cost
	pos.Leg2AvgCost = leg2Cost
	pos.FirstFillTime = pgp.FirstFillTime

	return pairmanager.RestoredPosition{Leg1Symbol: leg1, Leg2Symbol: leg2, Position: pos}, nil
}
