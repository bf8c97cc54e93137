package model

// Withdrawal is the receipt handed to the settlement sink when the owner
// sweeps the pool.
type Withdrawal struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Amount    string         `json:"amount"`
	Entries   []BalanceEntry `json:"entries"`
	CreatedAt string         `json:"created_at"`
}
