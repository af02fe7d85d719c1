package tzkt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

// MaxPageSize is the largest page TzKT serves for big-map keys.
const MaxPageSize = 10000

type Provider struct {
	client *restClient
}

func NewProvider(client *restClient) *Provider {
	return &Provider{client: client}
}

type Bigmap struct {
	Path   string       `json:"path"`
	Name   string       `json:"name"`
	Ptr    *json.Number `json:"ptr"`
	Id     *json.Number `json:"id"`
	Active bool         `json:"active"`
}

// Pointer returns the big-map id, whichever of ptr or id the indexer filled.
func (b Bigmap) Pointer() (int64, bool) {
	for _, n := range []*json.Number{b.Ptr, b.Id} {
		if n == nil {
			continue
		}
		if v, err := n.Int64(); err == nil {
			return v, true
		}
	}
	return 0, false
}

func (b Bigmap) PathName() string {
	if b.Path != "" {
		return b.Path
	}
	return b.Name
}

type BigmapKey struct {
	Key    interface{} `json:"key"`
	Value  interface{} `json:"value"`
	Active *bool       `json:"active,omitempty"`
}

type TokenBalance struct {
	Account struct {
		Address string `json:"address"`
	} `json:"account"`
	Balance json.Number `json:"balance"`
}

func (b TokenBalance) Amount() uint64 {
	v, err := strconv.ParseUint(b.Balance.String(), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func (p *Provider) GetBigmaps(ctx context.Context, contract string) ([]Bigmap, error) {
	query := url.Values{}
	query.Set("select", "path,ptr,id,active")
	query.Set("limit", "200")

	var bigmaps []Bigmap
	if err := p.client.get(ctx, fmt.Sprintf("/contracts/%s/bigmaps", contract), query, &bigmaps); err != nil {
		return nil, err
	}
	return bigmaps, nil
}

// GetBigmapKeys returns active keys of a big-map. filter is merged into the query,
// e.g. value.nft_contract=KT1...
func (p *Provider) GetBigmapKeys(ctx context.Context, ptr int64, filter url.Values) ([]BigmapKey, error) {
	query := url.Values{}
	for k, v := range filter {
		query[k] = v
	}
	query.Set("active", "true")
	query.Set("select", "key,value")
	query.Set("limit", strconv.Itoa(MaxPageSize))

	var keys []BigmapKey
	if err := p.client.get(ctx, fmt.Sprintf("/bigmaps/%d/keys", ptr), query, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

// GetBigmapKeyNames returns only the keys of the active entries.
func (p *Provider) GetBigmapKeyNames(ctx context.Context, ptr int64) ([]interface{}, error) {
	query := url.Values{}
	query.Set("active", "true")
	query.Set("select", "key")
	query.Set("limit", strconv.Itoa(MaxPageSize))

	var keys []interface{}
	if err := p.client.get(ctx, fmt.Sprintf("/bigmaps/%d/keys", ptr), query, &keys); err != nil {
		return nil, err
	}
	return keys, nil
}

func (p *Provider) GetBigmapKey(ctx context.Context, ptr int64, key string) (*BigmapKey, error) {
	var bk BigmapKey
	if err := p.client.get(ctx, fmt.Sprintf("/bigmaps/%d/keys/%s", ptr, url.PathEscape(key)), nil, &bk); err != nil {
		return nil, err
	}
	return &bk, nil
}

// GetTokenBalances returns the positive balances of accounts for one token.
// No select projection is sent, some indexer versions reject account.address in select.
func (p *Provider) GetTokenBalances(ctx context.Context, contract string, tokenId uint64, accounts []string) ([]TokenBalance, error) {
	query := url.Values{}
	query.Set("account.in", strings.Join(accounts, ","))
	query.Set("token.contract", contract)
	query.Set("token.tokenId", strconv.FormatUint(tokenId, 10))
	query.Set("balance.gt", "0")
	query.Set("limit", strconv.Itoa(len(accounts)))

	var balances []TokenBalance
	if err := p.client.get(ctx, "/tokens/balances", query, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (p *Provider) GetContractMetadata(ctx context.Context, contract string) (entity.ContractMetadata, error) {
	var md entity.ContractMetadata
	if err := p.client.get(ctx, fmt.Sprintf("/contracts/%s/metadata", contract), nil, &md); err != nil {
		return nil, err
	}
	return md, nil
}

// RunView executes an on-chain view through the indexer. input is sent as is.
func (p *Provider) RunView(ctx context.Context, contract, name, input string, jsonFormat bool) (interface{}, error) {
	query := url.Values{}
	query.Set("input", input)
	query.Set("unlimited", "true")
	if jsonFormat {
		query.Set("format", "json")
	}

	var result interface{}
	if err := p.client.get(ctx, fmt.Sprintf("/contracts/%s/views/%s", contract, name), query, &result); err != nil {
		return nil, err
	}
	return result, nil
}
