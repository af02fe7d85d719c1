package marketplace

import (
	"context"
	"testing"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewExecutor_FallsBackToNextVariant(t *testing.T) {
	h := newFakeHandle()
	var tried []bool
	h.onchain[ViewListingsForCollection] = func(args contract.Args) (interface{}, error) {
		tried = append(tried, args.IsNamed())
		if args.IsNamed() {
			return nil, contract.ErrShapeMismatch
		}
		return []interface{}{"ok"}, nil
	}

	result, ok := NewViewExecutor().Execute(context.Background(), h, contract.Onchain, ViewListingsForCollection, "",
		contract.Named(entity.Params{"nft_contract": collection}),
		contract.Positional(collection),
	)

	require.True(t, ok)
	assert.Equal(t, []interface{}{"ok"}, result)
	assert.Equal(t, []bool{true, false}, tried)
	assert.Equal(t, []string{marketAddress, marketAddress}, h.viewers, "the marketplace views as itself without a viewer")
}

func TestViewExecutor_AllVariantsFail(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForCollection] = func(args contract.Args) (interface{}, error) {
		panic("abi exploded")
	}

	result, ok := NewViewExecutor().Execute(context.Background(), h, contract.Onchain, ViewListingsForCollection, seller,
		contract.Positional(collection),
	)

	assert.False(t, ok)
	assert.Nil(t, result)
	assert.Equal(t, []string{seller}, h.viewers)
}

func TestViewExecutor_OffchainNameDropsPrefix(t *testing.T) {
	h := newFakeHandle()
	h.offchain["listings_for_collection"] = func(contract.Args) (interface{}, error) {
		return "offchain", nil
	}

	result, ok := NewViewExecutor().Execute(context.Background(), h, contract.Offchain, ViewListingsForCollection, "")

	require.True(t, ok)
	assert.Equal(t, "offchain", result)
}

func TestViewExecutor_NoHandle(t *testing.T) {
	_, ok := NewViewExecutor().Execute(context.Background(), nil, contract.Onchain, ViewListingsForToken, "")
	assert.False(t, ok)
}
