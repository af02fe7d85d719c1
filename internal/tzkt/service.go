package tzkt

import (
	"context"
	"net/url"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

type Service interface {
	GetBigmaps(ctx context.Context, contract string) ([]Bigmap, error)
	GetBigmapKeys(ctx context.Context, ptr int64, filter url.Values) ([]BigmapKey, error)
	GetBigmapKeyNames(ctx context.Context, ptr int64) ([]interface{}, error)
	GetBigmapKey(ctx context.Context, ptr int64, key string) (*BigmapKey, error)
	GetTokenBalances(ctx context.Context, contract string, tokenId uint64, accounts []string) ([]TokenBalance, error)
	GetContractMetadata(ctx context.Context, contract string) (entity.ContractMetadata, error)
	RunView(ctx context.Context, contract, name, input string, jsonFormat bool) (interface{}, error)
}

type service struct {
	provider *Provider
}

func NewTzktService(provider *Provider) Service {
	return service{provider}
}

func (s service) GetBigmaps(ctx context.Context, contract string) ([]Bigmap, error) {
	return s.provider.GetBigmaps(ctx, contract)
}

func (s service) GetBigmapKeys(ctx context.Context, ptr int64, filter url.Values) ([]BigmapKey, error) {
	return s.provider.GetBigmapKeys(ctx, ptr, filter)
}

func (s service) GetBigmapKeyNames(ctx context.Context, ptr int64) ([]interface{}, error) {
	return s.provider.GetBigmapKeyNames(ctx, ptr)
}

func (s service) GetBigmapKey(ctx context.Context, ptr int64, key string) (*BigmapKey, error) {
	return s.provider.GetBigmapKey(ctx, ptr, key)
}

func (s service) GetTokenBalances(ctx context.Context, contract string, tokenId uint64, accounts []string) ([]TokenBalance, error) {
	if len(accounts) == 0 {
		return []TokenBalance{}, nil
	}
	return s.provider.GetTokenBalances(ctx, contract, tokenId, accounts)
}

func (s service) GetContractMetadata(ctx context.Context, contract string) (entity.ContractMetadata, error) {
	return s.provider.GetContractMetadata(ctx, contract)
}

func (s service) RunView(ctx context.Context, contract, name, input string, jsonFormat bool) (interface{}, error) {
	return s.provider.RunView(ctx, contract, name, input, jsonFormat)
}
