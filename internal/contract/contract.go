package contract

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

var (
	ErrViewUnavailable    = errors.New("view unavailable")
	ErrEntrypointNotFound = errors.New("entrypoint not found")
	ErrShapeMismatch      = errors.New("arguments do not match entrypoint type")
)

type ViewKind int

const (
	Onchain ViewKind = iota
	Offchain
)

func (k ViewKind) String() string {
	if k == Offchain {
		return "offchain"
	}
	return "onchain"
}

// Handle is a bound contract: its views and its callable entrypoints in the two
// argument conventions, named (object) and positional.
type Handle interface {
	Address() string
	OnchainView(ctx context.Context, name string, args Args, viewer string) (interface{}, error)
	OffchainView(ctx context.Context, name string, args Args, viewer string) (interface{}, error)
	ObjectMethods() map[string]ObjectMethod
	PositionalMethods() map[string]PositionalMethod
}

type ObjectMethod func(args entity.Params) (*Invocation, error)

type PositionalMethod func(args ...interface{}) (*Invocation, error)

type Loader interface {
	At(ctx context.Context, address string) (Handle, error)
}

// Invocation is an encoded entrypoint call waiting for an amount.
type Invocation struct {
	To         string
	Entrypoint string
	Value      json.RawMessage
}

func (i Invocation) TransferParams(amountMutez uint64) entity.TransferParams {
	return entity.TransferParams{
		Kind:       entity.TransferKindTransaction,
		To:         i.To,
		Amount:     amountMutez,
		Entrypoint: i.Entrypoint,
		Value:      i.Value,
	}
}
