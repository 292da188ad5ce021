package schema

import "time"

// LedgerStatus represents the status of the execution ledger.
type LedgerStatus struct {
	Backend       string           `json:"backend"`
	Connected     bool             `json:"connected"`
	TotalBatches  int              `json:"total_batches"`
	LastBatchID   int64            `json:"last_batch_id"`
	LastBatchTime time.Time        `json:"last_batch_time"`
	OldestBatch   time.Time        `json:"oldest_batch_time"`
	StateCounts   map[string]int64 `json:"state_counts"`
	TableSizes    map[string]int64 `json:"table_sizes"`
}
