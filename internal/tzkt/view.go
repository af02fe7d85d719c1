package tzkt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"go.uber.org/zap"
)

// viewHandle is a read-only contract binding that executes on-chain views through
// the indexer. It has no entrypoints and no off-chain views.
type viewHandle struct {
	address string
	tzkt    Service
}

type viewLoader struct {
	tzkt Service
}

func NewViewLoader(tzkt Service) contract.Loader {
	return viewLoader{tzkt}
}

func (l viewLoader) At(_ context.Context, address string) (contract.Handle, error) {
	return viewHandle{address: address, tzkt: l.tzkt}, nil
}

func (h viewHandle) Address() string {
	return h.address
}

func (h viewHandle) OnchainView(ctx context.Context, name string, args contract.Args, _ string) (interface{}, error) {
	var lastErr error
	for _, in := range viewInputs(args) {
		result, err := h.tzkt.RunView(ctx, h.address, name, in.value, in.json)
		if err == nil && result != nil {
			return result, nil
		}
		if err == nil {
			err = contract.ErrViewUnavailable
		}
		lastErr = err
		zap.L().With(zap.String("view", name), zap.String("input", in.value), zap.Error(err)).Debug("Tzkt: View attempt failed")
	}

	if lastErr == nil {
		lastErr = contract.ErrViewUnavailable
	}
	return nil, fmt.Errorf("%s: %w", name, lastErr)
}

func (h viewHandle) OffchainView(context.Context, string, contract.Args, string) (interface{}, error) {
	return nil, contract.ErrViewUnavailable
}

func (h viewHandle) ObjectMethods() map[string]contract.ObjectMethod {
	return map[string]contract.ObjectMethod{}
}

func (h viewHandle) PositionalMethods() map[string]contract.PositionalMethod {
	return map[string]contract.PositionalMethod{}
}

type viewInput struct {
	value string
	json  bool
}

// viewInputs lists the encodings the indexer accepts for a view parameter.
// A single scalar is tried raw, quoted, then as a Micheline json string.
func viewInputs(args contract.Args) []viewInput {
	if args.IsNamed() {
		named := map[string]interface{}{}
		for k, v := range args.Named() {
			named[k] = scalar(v)
		}
		b, err := json.Marshal(named)
		if err != nil {
			return nil
		}
		return []viewInput{{value: string(b)}}
	}

	values := args.Positional()
	switch len(values) {
	case 0:
		return []viewInput{{value: "Unit"}}
	case 1:
		s := scalar(values[0])
		str, _ := json.Marshal(s)
		mich, _ := json.Marshal(map[string]string{"string": s})
		return []viewInput{
			{value: s},
			{value: string(str)},
			{value: string(mich), json: true},
		}
	default:
		tuple := make([]string, 0, len(values))
		for _, v := range values {
			tuple = append(tuple, scalar(v))
		}
		b, err := json.Marshal(tuple)
		if err != nil {
			return nil
		}
		return []viewInput{{value: string(b)}}
	}
}

func scalar(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case uint64:
		return strconv.FormatUint(t, 10)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case entity.Params:
		b, _ := json.Marshal(t)
		return string(b)
	default:
		return fmt.Sprintf("%v", t)
	}
}
