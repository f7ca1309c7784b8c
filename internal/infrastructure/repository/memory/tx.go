package memory

import (
	"context"
	"sync"
)

// TxManager serializes in-memory "transactions". It gives the same
// single-writer guarantee the database transaction gives in production, but
// without rollback: callers must not depend on partial-write recovery in
// memory mode.
type TxManager struct {
	mu sync.Mutex
}

func NewTxManager() *TxManager {
	return &TxManager{}
}

func (m *TxManager) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx)
}

func (m *TxManager) Ping(_ context.Context) error {
	return nil
}
