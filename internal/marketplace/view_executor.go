package marketplace

import (
	"context"
	"fmt"
	"strings"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"go.uber.org/zap"
)

const onchainPrefix = "onchain_"

type ViewExecutor interface {
	// Execute runs the view with each argument variant in turn and returns the
	// first result. It reports false when every variant failed.
	Execute(ctx context.Context, market contract.Handle, kind contract.ViewKind, name, viewer string, variants ...contract.Args) (interface{}, bool)
}

type viewExecutor struct{}

func NewViewExecutor() ViewExecutor {
	return viewExecutor{}
}

func (e viewExecutor) Execute(ctx context.Context, market contract.Handle, kind contract.ViewKind, name, viewer string, variants ...contract.Args) (interface{}, bool) {
	if market == nil {
		return nil, false
	}
	if viewer == "" {
		viewer = market.Address()
	}
	if kind == contract.Offchain {
		name = strings.TrimPrefix(name, onchainPrefix)
	}
	if len(variants) == 0 {
		variants = []contract.Args{{}}
	}

	for i, args := range variants {
		if ctx.Err() != nil {
			return nil, false
		}

		result, err := e.run(ctx, market, kind, name, viewer, args)
		if err != nil {
			zap.L().With(
				zap.String("view", name),
				zap.Stringer("kind", kind),
				zap.Int("variant", i),
				zap.Error(err),
			).Debug("View: Variant failed")
			continue
		}
		if result == nil {
			continue
		}
		return result, true
	}

	return nil, false
}

func (e viewExecutor) run(ctx context.Context, market contract.Handle, kind contract.ViewKind, name, viewer string, args contract.Args) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("view %s panicked: %v", name, r)
		}
	}()

	if kind == contract.Offchain {
		return market.OffchainView(ctx, name, args, viewer)
	}
	return market.OnchainView(ctx, name, args, viewer)
}
