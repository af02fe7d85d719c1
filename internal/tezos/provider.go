package tezos

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"blockwatch.cc/tzgo/micheline"
)

const headContext = "/chains/main/blocks/head/context/contracts/%s"

type Provider struct {
	rpcClient *rpcClient

	mu      sync.Mutex
	chainId string
}

func NewProvider(rpcClient *rpcClient) *Provider {
	return &Provider{rpcClient: rpcClient}
}

type Script struct {
	Code    micheline.Prim `json:"code"`
	Storage micheline.Prim `json:"storage"`
}

// Section returns the first top level code section with the given keyword.
func (s Script) Section(keyword string) (micheline.Prim, bool) {
	for _, p := range s.Code.Args {
		if isOpCode(p, keyword) && len(p.Args) > 0 {
			return p.Args[0], true
		}
	}
	return micheline.Prim{}, false
}

// ViewDef is an on-chain view declared in a contract script.
type ViewDef struct {
	Name   string
	Input  micheline.Prim
	Output micheline.Prim
	Code   micheline.Prim
}

func (s Script) Views() map[string]ViewDef {
	views := map[string]ViewDef{}
	for _, p := range s.Code.Args {
		if !isOpCode(p, "view") || len(p.Args) != 4 || p.Args[0].Type != micheline.PrimString {
			continue
		}
		views[p.Args[0].String] = ViewDef{
			Name:   p.Args[0].String,
			Input:  p.Args[1],
			Output: p.Args[2],
			Code:   p.Args[3],
		}
	}
	return views
}

func (p *Provider) GetChainId(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chainId != "" {
		return p.chainId, nil
	}

	var chainId string
	if err := p.rpcClient.get(ctx, "/chains/main/chain_id", &chainId); err != nil {
		return "", err
	}
	p.chainId = chainId

	return chainId, nil
}

func (p *Provider) GetEntrypoints(ctx context.Context, address string) (map[string]micheline.Prim, error) {
	var resp struct {
		Entrypoints map[string]micheline.Prim `json:"entrypoints"`
	}
	if err := p.rpcClient.get(ctx, fmt.Sprintf(headContext+"/entrypoints", address), &resp); err != nil {
		return nil, err
	}
	return resp.Entrypoints, nil
}

func (p *Provider) GetScript(ctx context.Context, address string) (*Script, error) {
	var script Script
	if err := p.rpcClient.get(ctx, fmt.Sprintf(headContext+"/script", address), &script); err != nil {
		return nil, err
	}
	return &script, nil
}

type runScriptViewRequest struct {
	Contract      string         `json:"contract"`
	View          string         `json:"view"`
	Input         micheline.Prim `json:"input"`
	ChainId       string         `json:"chain_id"`
	UnlimitedGas  bool           `json:"unlimited_gas"`
	UnparsingMode string         `json:"unparsing_mode"`
	Source        string         `json:"source,omitempty"`
	Payer         string         `json:"payer,omitempty"`
}

// RunScriptView executes an on-chain view with viewer as source and payer.
func (p *Provider) RunScriptView(ctx context.Context, address, view string, input micheline.Prim, viewer string) (micheline.Prim, error) {
	chainId, err := p.GetChainId(ctx)
	if err != nil {
		return micheline.Prim{}, err
	}

	req := runScriptViewRequest{
		Contract:      address,
		View:          view,
		Input:         input,
		ChainId:       chainId,
		UnlimitedGas:  true,
		UnparsingMode: "Readable",
		Source:        viewer,
		Payer:         viewer,
	}

	var resp struct {
		Data micheline.Prim `json:"data"`
	}
	if err := p.rpcClient.post(ctx, "/chains/main/blocks/head/helpers/scripts/run_script_view", req, &resp); err != nil {
		return micheline.Prim{}, err
	}
	return resp.Data, nil
}

type runCodeRequest struct {
	Script        micheline.Prim `json:"script"`
	Storage       micheline.Prim `json:"storage"`
	Input         micheline.Prim `json:"input"`
	Amount        string         `json:"amount"`
	ChainId       string         `json:"chain_id"`
	Source        string         `json:"source,omitempty"`
	Payer         string         `json:"payer,omitempty"`
	UnparsingMode string         `json:"unparsing_mode"`
}

// RunCode runs a throwaway script and returns its final storage.
func (p *Provider) RunCode(ctx context.Context, script, storage, input micheline.Prim, viewer string) (micheline.Prim, error) {
	chainId, err := p.GetChainId(ctx)
	if err != nil {
		return micheline.Prim{}, err
	}

	req := runCodeRequest{
		Script:        script,
		Storage:       storage,
		Input:         input,
		Amount:        "0",
		ChainId:       chainId,
		Source:        viewer,
		Payer:         viewer,
		UnparsingMode: "Readable",
	}

	var resp struct {
		Storage micheline.Prim `json:"storage"`
	}
	if err := p.rpcClient.post(ctx, "/chains/main/blocks/head/helpers/scripts/run_code", req, &resp); err != nil {
		return micheline.Prim{}, err
	}
	return resp.Storage, nil
}

func marshalPrim(p micheline.Prim) (json.RawMessage, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return b, nil
}
