package marketplace

import (
	"context"
	"net/url"
	"testing"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointers_Preferred(t *testing.T) {
	ptr, path, ok := Pointers{PathCollectionListings: 3, PathListings: 2, PathListingsActive: 1}.Preferred()
	require.True(t, ok)
	assert.Equal(t, int64(1), ptr)
	assert.Equal(t, PathListingsActive, path)

	ptr, path, ok = Pointers{PathCollectionListings: 3, PathListings: 2}.Preferred()
	require.True(t, ok)
	assert.Equal(t, int64(2), ptr)
	assert.Equal(t, PathListings, path)

	_, _, ok = Pointers{PathSellerListings: 9}.Preferred()
	assert.False(t, ok)
}

func TestBigmapScanner_Pointers(t *testing.T) {
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withBigmap(marketAddress, PathSellerListings, 20)
	f.bigmaps[marketAddress] = append(f.bigmaps[marketAddress], tzkt.Bigmap{Name: "offers", Id: pointer(30)}, tzkt.Bigmap{Path: "broken"})

	pointers := NewBigmapScanner(f).Pointers(context.Background(), marketAddress)

	assert.Equal(t, Pointers{PathListings: 10, PathSellerListings: 20, "offers": 30}, pointers)
}

func TestBigmapScanner_ActiveRows_ValueFieldFallback(t *testing.T) {
	row := tzkt.BigmapKey{Key: "1", Value: map[string]interface{}{"contract": collection, "price": "1"}}
	f := newFakeTzkt().withFiltered(10, url.Values{"value.contract": {collection}}, row)

	rows := NewBigmapScanner(f).ActiveRows(context.Background(), 10, collection)

	assert.Equal(t, []tzkt.BigmapKey{row}, rows)
	assert.Equal(t, []string{
		"10|value.nft_contract=" + collection,
		"10|value.contract=" + collection,
	}, f.keyQueries)
}

func TestBigmapScanner_ActiveRows_FullScan(t *testing.T) {
	f := newFakeTzkt()
	f.rows[10] = []tzkt.BigmapKey{
		{Key: map[string]interface{}{"address": collection, "nat": "1"}, Value: map[string]interface{}{"0": map[string]interface{}{"price": "5"}}},
		{Key: map[string]interface{}{"address": other, "nat": "1"}, Value: map[string]interface{}{}},
		{Key: "7", Value: map[string]interface{}{"collection": collection}},
	}

	rows := NewBigmapScanner(f).ActiveRows(context.Background(), 10, collection)

	require.Len(t, rows, 2)
	assert.Equal(t, "7", rows[1].Key)
}

func TestBigmapScanner_SellerRefs(t *testing.T) {
	f := newFakeTzkt()
	f.entries["20|"+seller] = &tzkt.BigmapKey{Value: decodeJSON(`[
		{"nft_contract":"` + collection + `","token_id":"1","listing_nonce":"4"},
		{"nft_contract":"nope","token_id":"1","listing_nonce":"5"}
	]`)}

	refs := NewBigmapScanner(f).SellerRefs(context.Background(), 20, seller)

	assert.Equal(t, []entity.ListingKey{{Contract: collection, TokenId: 1, Nonce: 4}}, refs)
	assert.Empty(t, NewBigmapScanner(f).SellerRefs(context.Background(), 20, offeror))
}

func TestBigmapScanner_CollectionRows(t *testing.T) {
	f := newFakeTzkt()
	f.entries["11|"+collection] = &tzkt.BigmapKey{Value: map[string]interface{}{}}

	rows := NewBigmapScanner(f).CollectionRows(context.Background(), 11, collection)
	require.Len(t, rows, 1)
	assert.Equal(t, collection, rows[0].Key)

	assert.Empty(t, NewBigmapScanner(f).CollectionRows(context.Background(), 11, other))
}
