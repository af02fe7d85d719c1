package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
)

const (
	marketAddress = "KT1HmDjRUJSx4uUoFVZyDWVXY5WjDofEgH2G"
	collection    = "KT1RJ6PbjHpwc3M5rw5s2Nbmefwbuwbdxton"
	other         = "KT1PWx2mnDueood7fEmfbBDKx1D9BAnnXitn"
	seller        = "tz1burnburnburnburnburnburnburjAYjjX"
	offeror       = "tz1KqTpEZ7Yob7QbPE4Hy4Wo8fHG8LhKxZSx"
)

var errIndexer = errors.New("indexer down")

type fakeTzkt struct {
	mu sync.Mutex

	bigmaps    map[string][]tzkt.Bigmap
	rows       map[int64][]tzkt.BigmapKey
	filtered   map[string][]tzkt.BigmapKey
	entries    map[string]*tzkt.BigmapKey
	names      map[int64][]interface{}
	balances   map[string]uint64
	balanceErr error
	metadata   map[string]entity.ContractMetadata

	keyQueries    []string
	balanceCalls  [][]string
	metadataCalls int
}

func newFakeTzkt() *fakeTzkt {
	return &fakeTzkt{
		bigmaps:  map[string][]tzkt.Bigmap{},
		rows:     map[int64][]tzkt.BigmapKey{},
		filtered: map[string][]tzkt.BigmapKey{},
		entries:  map[string]*tzkt.BigmapKey{},
		names:    map[int64][]interface{}{},
		balances: map[string]uint64{},
		metadata: map[string]entity.ContractMetadata{},
	}
}

func pointer(n int64) *json.Number {
	v := json.Number(strconv.FormatInt(n, 10))
	return &v
}

func (f *fakeTzkt) withBigmap(contract, path string, ptr int64) *fakeTzkt {
	f.bigmaps[contract] = append(f.bigmaps[contract], tzkt.Bigmap{Path: path, Ptr: pointer(ptr), Active: true})
	return f
}

func (f *fakeTzkt) withFiltered(ptr int64, filter url.Values, rows ...tzkt.BigmapKey) *fakeTzkt {
	f.filtered[fmt.Sprintf("%d|%s", ptr, filter.Encode())] = rows
	return f
}

func (f *fakeTzkt) withBalance(contract string, tokenId uint64, account string, balance uint64) *fakeTzkt {
	f.balances[fmt.Sprintf("%s|%d|%s", contract, tokenId, account)] = balance
	return f
}

func (f *fakeTzkt) GetBigmaps(_ context.Context, contract string) ([]tzkt.Bigmap, error) {
	return f.bigmaps[contract], nil
}

func (f *fakeTzkt) GetBigmapKeys(_ context.Context, ptr int64, filter url.Values) ([]tzkt.BigmapKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.keyQueries = append(f.keyQueries, fmt.Sprintf("%d|%s", ptr, filter.Encode()))
	if len(filter) == 0 {
		return f.rows[ptr], nil
	}
	return f.filtered[fmt.Sprintf("%d|%s", ptr, filter.Encode())], nil
}

func (f *fakeTzkt) GetBigmapKeyNames(_ context.Context, ptr int64) ([]interface{}, error) {
	return f.names[ptr], nil
}

func (f *fakeTzkt) GetBigmapKey(_ context.Context, ptr int64, key string) (*tzkt.BigmapKey, error) {
	if row, ok := f.entries[fmt.Sprintf("%d|%s", ptr, key)]; ok {
		return row, nil
	}
	return nil, tzkt.ErrNotFound
}

func (f *fakeTzkt) GetTokenBalances(_ context.Context, contract string, tokenId uint64, accounts []string) ([]tzkt.TokenBalance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balanceCalls = append(f.balanceCalls, append([]string{}, accounts...))
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}

	rows := make([]tzkt.TokenBalance, 0)
	for _, a := range accounts {
		if b := f.balances[fmt.Sprintf("%s|%d|%s", contract, tokenId, a)]; b > 0 {
			row := tzkt.TokenBalance{Balance: json.Number(strconv.FormatUint(b, 10))}
			row.Account.Address = a
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (f *fakeTzkt) GetContractMetadata(_ context.Context, contract string) (entity.ContractMetadata, error) {
	f.mu.Lock()
	f.metadataCalls++
	f.mu.Unlock()

	if md, ok := f.metadata[contract]; ok {
		return md, nil
	}
	return nil, tzkt.ErrNotFound
}

func (f *fakeTzkt) RunView(context.Context, string, string, string, bool) (interface{}, error) {
	return nil, contract.ErrViewUnavailable
}

type viewFunc func(args contract.Args) (interface{}, error)

type fakeHandle struct {
	mu          sync.Mutex
	address     string
	onchain     map[string]viewFunc
	offchain    map[string]viewFunc
	objects     map[string]contract.ObjectMethod
	positionals map[string]contract.PositionalMethod
	viewers     []string
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{
		address:     marketAddress,
		onchain:     map[string]viewFunc{},
		offchain:    map[string]viewFunc{},
		objects:     map[string]contract.ObjectMethod{},
		positionals: map[string]contract.PositionalMethod{},
	}
}

func (h *fakeHandle) Address() string {
	return h.address
}

func (h *fakeHandle) OnchainView(_ context.Context, name string, args contract.Args, viewer string) (interface{}, error) {
	h.mu.Lock()
	h.viewers = append(h.viewers, viewer)
	fn, ok := h.onchain[name]
	h.mu.Unlock()
	if ok {
		return fn(args)
	}
	return nil, contract.ErrViewUnavailable
}

func (h *fakeHandle) OffchainView(_ context.Context, name string, args contract.Args, viewer string) (interface{}, error) {
	h.mu.Lock()
	h.viewers = append(h.viewers, viewer)
	fn, ok := h.offchain[name]
	h.mu.Unlock()
	if ok {
		return fn(args)
	}
	return nil, contract.ErrViewUnavailable
}

func (h *fakeHandle) ObjectMethods() map[string]contract.ObjectMethod {
	return h.objects
}

func (h *fakeHandle) PositionalMethods() map[string]contract.PositionalMethod {
	return h.positionals
}

type fakeLoader struct {
	handle contract.Handle
	err    error
}

func (l fakeLoader) At(context.Context, string) (contract.Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

// objectMethod echoes its arguments as the invocation value. reject may refuse an
// argument set.
func objectMethod(entrypoint string, reject func(entity.Params) error) contract.ObjectMethod {
	return func(args entity.Params) (*contract.Invocation, error) {
		if reject != nil {
			if err := reject(args); err != nil {
				return nil, err
			}
		}
		value, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		return &contract.Invocation{To: marketAddress, Entrypoint: entrypoint, Value: value}, nil
	}
}

func positionalMethod(entrypoint string, reject func([]interface{}) error) contract.PositionalMethod {
	return func(args ...interface{}) (*contract.Invocation, error) {
		if reject != nil {
			if err := reject(args); err != nil {
				return nil, err
			}
		}
		value, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		return &contract.Invocation{To: marketAddress, Entrypoint: entrypoint, Value: value}, nil
	}
}

func decodeJSON(s string) interface{} {
	d := json.NewDecoder(strings.NewReader(s))
	d.UseNumber()
	var v interface{}
	if err := d.Decode(&v); err != nil {
		panic(err)
	}
	return v
}
