package tezos

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	market = "KT1HmDjRUJSx4uUoFVZyDWVXY5WjDofEgH2G"
	viewer = "tz1burnburnburnburnburnburnburjAYjjX"
)

const marketScript = `{
	"code": [
		{"prim":"parameter","args":[{"prim":"or","args":[{"prim":"unit","annots":["%buy"]},{"prim":"nat","annots":["%cancel_listing"]}]}]},
		{"prim":"storage","args":[{"prim":"nat"}]},
		{"prim":"code","args":[[{"prim":"CDR"},{"prim":"NIL","args":[{"prim":"operation"}]},{"prim":"PAIR"}]]},
		{"prim":"view","args":[
			{"string":"onchain_listings_for_token"},
			{"prim":"pair","args":[{"prim":"address","annots":["%nft_contract"]},{"prim":"nat","annots":["%token_id"]}]},
			{"prim":"map","args":[{"prim":"nat"},{"prim":"pair","args":[{"prim":"mutez","annots":["%price"]},{"prim":"nat","annots":["%amount"]}]}]},
			[{"prim":"DROP"},{"prim":"EMPTY_MAP","args":[{"prim":"nat"},{"prim":"pair","args":[{"prim":"mutez"},{"prim":"nat"}]}]}]
		]}
	],
	"storage": {"int":"42"}
}`

type fakeMetadata struct {
	md entity.ContractMetadata
}

func (f fakeMetadata) GetContractMetadata(context.Context, string) (entity.ContractMetadata, error) {
	return f.md, nil
}

func newNode(t *testing.T) (Service, *[]map[string]interface{}) {
	var posted []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chains/main/chain_id":
			_, _ = w.Write([]byte(`"NetXnHfVqm9iesp"`))
		case "/chains/main/blocks/head/context/contracts/" + market + "/entrypoints":
			_, _ = w.Write([]byte(`{"entrypoints":{
				"buy":{"prim":"pair","args":[{"prim":"nat","annots":["%nonce"]},{"prim":"address","annots":["%seller"]}]},
				"cancel_listing":{"prim":"nat"}
			}}`))
		case "/chains/main/blocks/head/context/contracts/" + market + "/script":
			_, _ = w.Write([]byte(marketScript))
		case "/chains/main/blocks/head/helpers/scripts/run_script_view":
			body, _ := io.ReadAll(r.Body)
			var req map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &req))
			posted = append(posted, req)
			_, _ = w.Write([]byte(`{"data":[{"prim":"Elt","args":[{"int":"3"},{"prim":"Pair","args":[{"int":"300000"},{"int":"1"}]}]}]}`))
		case "/chains/main/blocks/head/helpers/scripts/run_code":
			body, _ := io.ReadAll(r.Body)
			var req map[string]interface{}
			require.NoError(t, json.Unmarshal(body, &req))
			posted = append(posted, req)
			_, _ = w.Write([]byte(`{"storage":{"prim":"Some","args":[{"int":"7"}]},"operations":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient([]string{srv.URL + "/"}, 5, 0, false)
	require.NoError(t, err)

	return NewTezosService(NewProvider(client)), &posted
}

func TestBinder_OnchainView(t *testing.T) {
	node, posted := newNode(t)

	h, err := NewBinder(node, nil).At(context.Background(), market)
	require.NoError(t, err)
	assert.Equal(t, market, h.Address())

	v, err := h.OnchainView(context.Background(), "onchain_listings_for_token",
		contract.Named(entity.Params{"nft_contract": collection, "token_id": uint64(3)}), viewer)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"3": map[string]interface{}{"price": "300000", "amount": "1"}}, v)

	require.Len(t, *posted, 1)
	req := (*posted)[0]
	assert.Equal(t, market, req["contract"])
	assert.Equal(t, "onchain_listings_for_token", req["view"])
	assert.Equal(t, "NetXnHfVqm9iesp", req["chain_id"])
	assert.Equal(t, true, req["unlimited_gas"])
	assert.Equal(t, viewer, req["source"])
	assert.Equal(t, viewer, req["payer"])

	_, err = h.OnchainView(context.Background(), "onchain_offers_for_token", contract.Positional(collection, 3), viewer)
	assert.True(t, errors.Is(err, contract.ErrViewUnavailable))

	_, err = h.OnchainView(context.Background(), "onchain_listings_for_token", contract.Positional(collection), viewer)
	assert.True(t, errors.Is(err, contract.ErrShapeMismatch))
}

func TestBinder_Methods(t *testing.T) {
	node, _ := newNode(t)

	h, err := NewBinder(node, nil).At(context.Background(), market)
	require.NoError(t, err)

	buy, ok := h.ObjectMethods()["buy"]
	require.True(t, ok)
	inv, err := buy(entity.Params{"nonce": 2, "seller": viewer})
	require.NoError(t, err)

	params := inv.TransferParams(300000)
	assert.Equal(t, entity.TransferKindTransaction, params.Kind)
	assert.Equal(t, market, params.To)
	assert.Equal(t, "buy", params.Entrypoint)
	assert.Equal(t, uint64(300000), params.Amount)
	assert.JSONEq(t, `{"prim":"Pair","args":[{"int":"2"},{"string":"`+viewer+`"}]}`, string(params.Value))

	cancel, ok := h.PositionalMethods()["cancel_listing"]
	require.True(t, ok)
	inv, err = cancel(uint64(5))
	require.NoError(t, err)
	assert.JSONEq(t, `{"int":"5"}`, string(inv.Value))

	_, err = cancel(uint64(5), uint64(6))
	assert.Error(t, err)
}

func TestBinder_OffchainView(t *testing.T) {
	node, posted := newNode(t)

	md := entity.ContractMetadata{}
	require.NoError(t, json.Unmarshal([]byte(`{"views":[{"name":"listing_count","implementations":[{"michelsonStorageView":{
		"parameter":{"prim":"address"},
		"returnType":{"prim":"nat"},
		"code":[{"prim":"CDR"}]
	}}]}]}`), &md))

	h, err := NewBinder(node, fakeMetadata{md}).At(context.Background(), market)
	require.NoError(t, err)

	v, err := h.OffchainView(context.Background(), "listing_count", contract.Positional(collection), viewer)
	require.NoError(t, err)
	assert.Equal(t, "7", v)

	require.Len(t, *posted, 1)
	req := (*posted)[0]
	assert.Equal(t, map[string]interface{}{"prim": "None"}, req["storage"])
	assert.Equal(t, map[string]interface{}{
		"prim": "Pair",
		"args": []interface{}{map[string]interface{}{"string": collection}, map[string]interface{}{"int": "42"}},
	}, req["input"])

	_, err = h.OffchainView(context.Background(), "missing", contract.Positional(collection), viewer)
	assert.True(t, errors.Is(err, contract.ErrViewUnavailable))

	noMeta, err := NewBinder(node, nil).At(context.Background(), market)
	require.NoError(t, err)
	_, err = noMeta.OffchainView(context.Background(), "listing_count", contract.Positional(collection), viewer)
	assert.True(t, errors.Is(err, contract.ErrViewUnavailable))
}

func TestClient_FailsOverToNextNode(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`"NetXdQprcVkpaWU"`))
	}))
	defer up.Close()

	client, err := NewClient([]string{down.URL, up.URL}, 5, 0, false)
	require.NoError(t, err)

	chainId, err := NewTezosService(NewProvider(client)).GetChainId(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NetXdQprcVkpaWU", chainId)
}
