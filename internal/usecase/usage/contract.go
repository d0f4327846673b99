package usage

import "github.com/kailas-cloud/neardup/internal/usecase/embedding"

// BudgetReader provides read-only access to token budget state.
type BudgetReader interface {
	Snapshot() embedding.BudgetSnapshot
}
