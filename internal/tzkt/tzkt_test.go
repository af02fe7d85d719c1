package tzkt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const market = "KT1HmDjRUJSx4uUoFVZyDWVXY5WjDofEgH2G"

func newTestService(t *testing.T, handler http.HandlerFunc) Service {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/v1/", 5, 0, 0, false)
	require.NoError(t, err)

	return NewTzktService(NewProvider(client))
}

func TestNewClient_RequiresUrl(t *testing.T) {
	_, err := NewClient("", 5, 0, 0, false)
	assert.Error(t, err)
}

func TestGetBigmaps(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contracts/"+market+"/bigmaps", r.URL.Path)
		assert.Equal(t, "path,ptr,id,active", r.URL.Query().Get("select"))
		assert.Equal(t, "200", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"path":"listings","ptr":512,"active":true},{"path":"collection_listings","id":"513"},{"name":"seller_listings","ptr":null,"id":null}]`))
	})

	bigmaps, err := svc.GetBigmaps(context.Background(), market)
	require.NoError(t, err)
	require.Len(t, bigmaps, 3)

	ptr, ok := bigmaps[0].Pointer()
	assert.True(t, ok)
	assert.Equal(t, int64(512), ptr)

	ptr, ok = bigmaps[1].Pointer()
	assert.True(t, ok)
	assert.Equal(t, int64(513), ptr)

	_, ok = bigmaps[2].Pointer()
	assert.False(t, ok)
	assert.Equal(t, "seller_listings", bigmaps[2].PathName())
}

func TestGetBigmapKeys(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/bigmaps/512/keys", r.URL.Path)
		assert.Equal(t, "true", q.Get("active"))
		assert.Equal(t, "key,value", q.Get("select"))
		assert.Equal(t, "10000", q.Get("limit"))
		assert.Equal(t, "KT1Coll", q.Get("value.nft_contract"))
		_, _ = w.Write([]byte(`[{"key":"7","value":{"price":"300000","amount":"1"}}]`))
	})

	keys, err := svc.GetBigmapKeys(context.Background(), 512, url.Values{"value.nft_contract": {"KT1Coll"}})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.Equal(t, "7", keys[0].Key)
	assert.Equal(t, map[string]interface{}{"price": "300000", "amount": "1"}, keys[0].Value)
}

func TestGetBigmapKey_NotFound(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	_, err := svc.GetBigmapKey(context.Background(), 1, "tz1abc")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetTokenBalances(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/v1/tokens/balances", r.URL.Path)
		assert.Equal(t, "tz1a,tz1b", q.Get("account.in"))
		assert.Equal(t, "KT1Coll", q.Get("token.contract"))
		assert.Equal(t, "3", q.Get("token.tokenId"))
		assert.Equal(t, "0", q.Get("balance.gt"))
		assert.Empty(t, q.Get("select"))
		_, _ = w.Write([]byte(`[{"account":{"address":"tz1a"},"balance":"2"},{"account":{"address":"tz1b"},"balance":5}]`))
	})

	balances, err := svc.GetTokenBalances(context.Background(), "KT1Coll", 3, []string{"tz1a", "tz1b"})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, "tz1a", balances[0].Account.Address)
	assert.Equal(t, uint64(2), balances[0].Amount())
	assert.Equal(t, uint64(5), balances[1].Amount())

	none, err := svc.GetTokenBalances(context.Background(), "KT1Coll", 3, nil)
	assert.NoError(t, err)
	assert.Empty(t, none)
}

func TestGetContractMetadata(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contracts/KT1Coll/metadata", r.URL.Path)
		_, _ = w.Write([]byte(`{"version":"ZeroContract v4","interfaces":["TZIP-012"]}`))
	})

	md, err := svc.GetContractMetadata(context.Background(), "KT1Coll")
	require.NoError(t, err)
	assert.Equal(t, entity.ContractMetadata{"version": "ZeroContract v4", "interfaces": []interface{}{"TZIP-012"}}, md)
}

func TestHttpError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":400,"errors":{"select":"invalid"}}`))
	})

	_, err := svc.GetBigmaps(context.Background(), market)
	var httpErr HttpError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusBadRequest, httpErr.Status)
}

func TestViewHandle_TriesInputEncodings(t *testing.T) {
	var inputs []string
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/contracts/"+market+"/views/onchain_listings_for_collection", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("unlimited"))
		in := r.URL.Query().Get("input")
		inputs = append(inputs, in)
		if r.URL.Query().Get("format") != "json" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`[{"token_id":"1","price":"300000"}]`))
	})

	handle, err := NewViewLoader(svc).At(context.Background(), market)
	require.NoError(t, err)

	result, err := handle.OnchainView(context.Background(), "onchain_listings_for_collection", contract.Positional("KT1Coll"), "")
	require.NoError(t, err)
	assert.Len(t, result, 1)
	assert.Equal(t, []string{"KT1Coll", `"KT1Coll"`, `{"string":"KT1Coll"}`}, inputs)

	_, err = handle.OffchainView(context.Background(), "listings_for_collection", contract.Positional("KT1Coll"), "")
	assert.ErrorIs(t, err, contract.ErrViewUnavailable)
	assert.Empty(t, handle.ObjectMethods())
}

func TestViewInputs_Named(t *testing.T) {
	inputs := viewInputs(contract.Named(entity.Params{"nft_contract": "KT1Coll", "token_id": uint64(4)}))
	require.Len(t, inputs, 1)
	assert.JSONEq(t, `{"nft_contract":"KT1Coll","token_id":"4"}`, inputs[0].value)
}
