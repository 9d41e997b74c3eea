// Package reconciliation implements the baseline-reconciliation sweep of
// spec.md §4.5: detecting a discrepancy between ledger and grid-aggregate
// positions, replaying missed executions from a broker history provider
// with exactly-once semantics, and durably checkpointing state.
package reconciliation

import (
	"context"
	"time"

	"github.com/thrasher-corp/gridarb/order"
)

// ExecutionHistoryProvider is the external collaborator contract of
// spec.md §6: a query interface over broker-confirmed executions. Its
// implementation (the real broker connector) is out of this core's scope
// per spec.md §1.
type ExecutionHistoryProvider interface {
	// GetExecutionHistory returns every execution in [start, end]. It must
	// return a non-nil error only when data is genuinely unavailable, not
	// merely when the interval contains no executions (spec.md §6).
	GetExecutionHistory(ctx context.Context, start, end time.Time) ([]order.Record, error)
}
