package core

// Snapshot is a full copy of the ledger contents, the unit the backup
// codec serializes and the store restores atomically.
type Snapshot struct {
	Transactions []Transaction `json:"transactions"`
	Accounts     []Account     `json:"accounts"`
	Budgets      []Budget      `json:"budgets"`
	Categories   []Category    `json:"categories"`
}

// Empty reports whether the snapshot holds no records at all.
func (s Snapshot) Empty() bool {
	return len(s.Transactions) == 0 && len(s.Accounts) == 0 &&
		len(s.Budgets) == 0 && len(s.Categories) == 0
}

// Len returns the total number of records across all kinds.
func (s Snapshot) Len() int {
	return len(s.Transactions) + len(s.Accounts) + len(s.Budgets) + len(s.Categories)
}
