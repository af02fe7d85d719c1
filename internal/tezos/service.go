package tezos

import (
	"context"

	"blockwatch.cc/tzgo/micheline"
)

type Service interface {
	GetChainId(ctx context.Context) (string, error)
	GetEntrypoints(ctx context.Context, address string) (map[string]micheline.Prim, error)
	GetScript(ctx context.Context, address string) (*Script, error)
	RunScriptView(ctx context.Context, address, view string, input micheline.Prim, viewer string) (micheline.Prim, error)
	RunCode(ctx context.Context, script, storage, input micheline.Prim, viewer string) (micheline.Prim, error)
}

type service struct {
	provider *Provider
}

func NewTezosService(provider *Provider) Service {
	return service{provider}
}

func (s service) GetChainId(ctx context.Context) (string, error) {
	return s.provider.GetChainId(ctx)
}

func (s service) GetEntrypoints(ctx context.Context, address string) (map[string]micheline.Prim, error) {
	return s.provider.GetEntrypoints(ctx, address)
}

func (s service) GetScript(ctx context.Context, address string) (*Script, error) {
	return s.provider.GetScript(ctx, address)
}

func (s service) RunScriptView(ctx context.Context, address, view string, input micheline.Prim, viewer string) (micheline.Prim, error) {
	return s.provider.RunScriptView(ctx, address, view, input, viewer)
}

func (s service) RunCode(ctx context.Context, script, storage, input micheline.Prim, viewer string) (micheline.Prim, error) {
	return s.provider.RunCode(ctx, script, storage, input, viewer)
}
