package model

// PoolState is the persisted pool: its immutable owner and the ledger entries
// in first-deposit order. Pending holds withdrawal receipts committed with a
// sweep but not yet delivered to the settlement journal.
type PoolState struct {
	Owner     string         `json:"owner"`
	Entries   []BalanceEntry `json:"entries"`
	Pending   []Withdrawal   `json:"pending,omitempty"`
	UpdatedAt string         `json:"updated_at"`
}
