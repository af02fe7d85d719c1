package marketplace

import (
	"context"
	"sync"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"go.uber.org/zap"
)

// market is one marketplace contract, bound on first use. It is safe to share
// between the goroutines of a single aggregation.
type market struct {
	address string
	loader  contract.Loader
	scanner BigmapScanner

	handleOnce sync.Once
	handle     contract.Handle

	pointersOnce sync.Once
	pointers     Pointers
}

func newMarket(address string, loader contract.Loader, scanner BigmapScanner) *market {
	return &market{address: address, loader: loader, scanner: scanner}
}

// Handle returns the bound contract, or nil when it could not be bound.
func (m *market) Handle(ctx context.Context) contract.Handle {
	m.handleOnce.Do(func() {
		if m.loader == nil {
			return
		}
		h, err := m.loader.At(ctx, m.address)
		if err != nil {
			zap.L().With(zap.String("market", m.address), zap.Error(err)).Warn("Market: Failed to bind contract")
			return
		}
		m.handle = h
	})
	return m.handle
}

func (m *market) Pointers(ctx context.Context) Pointers {
	m.pointersOnce.Do(func() {
		m.pointers = m.scanner.Pointers(ctx, m.address)
	})
	return m.pointers
}
