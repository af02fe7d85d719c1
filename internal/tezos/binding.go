package tezos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"blockwatch.cc/tzgo/micheline"
	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"go.uber.org/zap"
)

// MetadataSource serves the TZIP-16 metadata a contract declares its off-chain views in.
type MetadataSource interface {
	GetContractMetadata(ctx context.Context, address string) (entity.ContractMetadata, error)
}

type binder struct {
	node     Service
	metadata MetadataSource
}

// NewBinder binds contracts through a node. metadata may be nil, in which case
// off-chain views are unavailable.
func NewBinder(node Service, metadata MetadataSource) contract.Loader {
	return binder{node: node, metadata: metadata}
}

func (b binder) At(ctx context.Context, address string) (contract.Handle, error) {
	entrypoints, err := b.node.GetEntrypoints(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("binding %s: %w", address, err)
	}

	views := map[string]ViewDef{}
	script, err := b.node.GetScript(ctx, address)
	if err != nil {
		zap.L().With(zap.String("contract", address), zap.Error(err)).Warn("Node: Unable to read script, on-chain views disabled")
	} else {
		views = script.Views()
		if len(entrypoints) == 0 {
			if param, ok := script.Section("parameter"); ok {
				entrypoints = map[string]micheline.Prim{"default": param}
			}
		}
	}

	return handle{
		address:     address,
		entrypoints: entrypoints,
		views:       views,
		node:        b.node,
		metadata:    b.metadata,
	}, nil
}

type handle struct {
	address     string
	entrypoints map[string]micheline.Prim
	views       map[string]ViewDef
	node        Service
	metadata    MetadataSource
}

func (h handle) Address() string {
	return h.address
}

func (h handle) OnchainView(ctx context.Context, name string, args contract.Args, viewer string) (interface{}, error) {
	def, ok := h.views[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, contract.ErrViewUnavailable)
	}

	input, err := encodeArgs(def.Input, args)
	if err != nil {
		return nil, err
	}

	data, err := h.node.RunScriptView(ctx, h.address, name, input, viewer)
	if err != nil {
		return nil, err
	}

	return Decode(def.Output, data)
}

func (h handle) OffchainView(ctx context.Context, name string, args contract.Args, viewer string) (interface{}, error) {
	if h.metadata == nil {
		return nil, contract.ErrViewUnavailable
	}

	md, err := h.metadata.GetContractMetadata(ctx, h.address)
	if err != nil {
		return nil, err
	}

	impl, err := storageView(md, name)
	if err != nil {
		return nil, err
	}

	script, err := h.node.GetScript(ctx, h.address)
	if err != nil {
		return nil, err
	}
	storageType, ok := script.Section("storage")
	if !ok {
		return nil, fmt.Errorf("%s: storage type missing", h.address)
	}

	paramType := storageType
	input := script.Storage
	if impl.Parameter != nil {
		param, err := encodeArgs(*impl.Parameter, args)
		if err != nil {
			return nil, err
		}
		paramType = newPrim(micheline.T_PAIR, *impl.Parameter, storageType)
		input = newPrim(micheline.D_PAIR, param, script.Storage)
	}

	code := newSeq(
		newPrim(micheline.K_PARAMETER, paramType),
		newPrim(micheline.K_STORAGE, newPrim(micheline.T_OPTION, impl.ReturnType)),
		newPrim(micheline.K_CODE, newSeq(
			newPrim(micheline.I_CAR),
			impl.Code,
			newPrim(micheline.I_SOME),
			newPrim(micheline.I_NIL, newPrim(micheline.T_OPERATION)),
			newPrim(micheline.I_PAIR),
		)),
	)

	result, err := h.node.RunCode(ctx, code, newPrim(micheline.D_NONE), input, viewer)
	if err != nil {
		return nil, err
	}
	if !isOpCode(result, "Some") || len(result.Args) != 1 {
		return nil, fmt.Errorf("%s: %w", name, contract.ErrViewUnavailable)
	}

	return Decode(impl.ReturnType, result.Args[0])
}

func (h handle) ObjectMethods() map[string]contract.ObjectMethod {
	methods := make(map[string]contract.ObjectMethod, len(h.entrypoints))
	for name, typ := range h.entrypoints {
		name, typ := name, typ
		methods[name] = func(args entity.Params) (*contract.Invocation, error) {
			value, err := EncodeObject(typ, args)
			if err != nil {
				return nil, err
			}
			return h.invocation(name, value)
		}
	}
	return methods
}

func (h handle) PositionalMethods() map[string]contract.PositionalMethod {
	methods := make(map[string]contract.PositionalMethod, len(h.entrypoints))
	for name, typ := range h.entrypoints {
		name, typ := name, typ
		methods[name] = func(args ...interface{}) (*contract.Invocation, error) {
			value, err := EncodePositional(typ, args)
			if err != nil {
				return nil, err
			}
			return h.invocation(name, value)
		}
	}
	return methods
}

func (h handle) invocation(entrypoint string, value micheline.Prim) (*contract.Invocation, error) {
	raw, err := marshalPrim(value)
	if err != nil {
		return nil, err
	}
	return &contract.Invocation{To: h.address, Entrypoint: entrypoint, Value: raw}, nil
}

func encodeArgs(typ micheline.Prim, args contract.Args) (micheline.Prim, error) {
	if args.IsNamed() {
		return EncodeObject(typ, args.Named())
	}
	return EncodePositional(typ, args.Positional())
}

type michelsonStorageView struct {
	Parameter  *micheline.Prim `json:"parameter"`
	ReturnType micheline.Prim  `json:"returnType"`
	Code       micheline.Prim  `json:"code"`
}

// storageView finds the michelsonStorageView implementation of an off-chain view
// in a TZIP-16 document.
func storageView(md entity.ContractMetadata, name string) (*michelsonStorageView, error) {
	raw, err := json.Marshal(md["views"])
	if err != nil {
		return nil, err
	}

	var views []struct {
		Name            string `json:"name"`
		Implementations []struct {
			MichelsonStorageView *json.RawMessage `json:"michelsonStorageView"`
		} `json:"implementations"`
	}
	if err := json.Unmarshal(raw, &views); err != nil {
		return nil, fmt.Errorf("%s: %w", name, contract.ErrViewUnavailable)
	}

	for _, v := range views {
		if !strings.EqualFold(v.Name, name) {
			continue
		}
		for _, impl := range v.Implementations {
			if impl.MichelsonStorageView == nil {
				continue
			}
			var sv michelsonStorageView
			if err := json.Unmarshal(*impl.MichelsonStorageView, &sv); err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			return &sv, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", name, contract.ErrViewUnavailable)
}
