package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

const TransferKindTransaction = "transaction"

var (
	ErrParamNotFound = errors.New("param not found")
)

// TransferParams is a ready-to-sign contract call. Value holds Micheline JSON.
type TransferParams struct {
	Kind       string          `json:"kind"`
	To         string          `json:"to"`
	Amount     uint64          `json:"amount"`
	Entrypoint string          `json:"entrypoint"`
	Value      json.RawMessage `json:"value"`
}

type Params map[string]interface{}

func (p Params) Get(name string) (interface{}, error) {
	if v, ok := p[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%s: %w", name, ErrParamNotFound)
}

func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Without returns a copy of p with the named params removed.
func (p Params) Without(names ...string) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	for _, n := range names {
		delete(out, n)
	}
	return out
}
