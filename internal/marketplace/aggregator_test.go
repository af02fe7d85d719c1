package marketplace

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/network"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ghostnet = network.Network{Key: network.Ghostnet, Marketplaces: []string{marketAddress}}

func newTestAggregator(f *fakeTzkt, h *fakeHandle, config AggregatorConfig) ListingAggregator {
	scanner := NewBigmapScanner(f)
	return NewListingAggregator(
		ghostnet,
		fakeLoader{handle: h},
		NewViewExecutor(),
		scanner,
		NewStaleFilter(f, nil, 4),
		NewCollectionDiscovery(ghostnet, scanner, f, nil),
		factory.NewListingFactory(),
		factory.NewOfferFactory(),
		config,
	)
}

func tokenView(raw string) viewFunc {
	return func(contract.Args) (interface{}, error) {
		return decodeJSON(raw), nil
	}
}

func TestListingAggregator_LowestListing(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForToken] = tokenView(`{
		"1": {"seller":"tz1a","price":"500000","amount":"1"},
		"2": {"seller":"tz1b","price":"300000","amount":"2"},
		"3": {"seller":"tz1c","price":"400000","amount":"1"},
		"4": {"seller":"tz1d","price":"100","amount":"0"}
	}`)

	lowest := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{}).LowestListing(context.Background(), collection, 7, false)

	require.NotNil(t, lowest)
	assert.Equal(t, uint64(300000), lowest.PriceMutez)
	assert.Equal(t, uint64(2), lowest.Nonce)
	assert.Equal(t, uint64(7), lowest.TokenId)
	assert.Equal(t, collection, lowest.Contract)
}

func TestListingAggregator_LowestListing_SkipsStaleSeller(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForToken] = tokenView(`{
		"1": {"seller":"tz1cheap","price":"100000","amount":"1"},
		"2": {"seller":"tz1honest","price":"300000","amount":"1"}
	}`)
	f := newFakeTzkt().withBalance(collection, 7, "tz1honest", 1)

	a := newTestAggregator(f, h, AggregatorConfig{})

	lowest := a.LowestListing(context.Background(), collection, 7, true)
	require.NotNil(t, lowest)
	assert.Equal(t, uint64(300000), lowest.PriceMutez)

	unchecked := a.LowestListing(context.Background(), collection, 7, false)
	require.NotNil(t, unchecked)
	assert.Equal(t, uint64(100000), unchecked.PriceMutez)
}

func TestListingAggregator_LowestListing_KeepsListingsWhenCheckFails(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForToken] = tokenView(`{"1": {"seller":"tz1cheap","price":"100000","amount":"1"}}`)
	f := newFakeTzkt()
	f.balanceErr = errIndexer

	lowest := newTestAggregator(f, h, AggregatorConfig{}).LowestListing(context.Background(), collection, 7, true)

	require.NotNil(t, lowest)
	assert.Equal(t, uint64(100000), lowest.PriceMutez)
}

func TestListingAggregator_ListingsForCollection_OnlyPurchasableAndUnique(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForCollection] = tokenView(`[
		{"token_id":"1","nonce":"1","seller":"tz1a","price":"10","amount":"1"},
		{"token_id":"1","nonce":"1","seller":"tz1a","price":"99","amount":"1"},
		{"token_id":"2","nonce":"1","seller":"tz1a","price":"10","amount":"0"},
		{"token_id":"3","nonce":"1","seller":"tz1a","price":"10","amount":"1","active":false},
		{"nft_contract":"` + other + `","token_id":"4","nonce":"1","seller":"tz1a","price":"10","amount":"1"}
	]`)
	a := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{})

	first := a.ListingsForCollection(context.Background(), collection)
	require.Len(t, first, 1)
	assert.Equal(t, uint64(10), first[0].PriceMutez, "the first duplicate wins")
	for _, l := range first {
		assert.True(t, l.Active)
		assert.Greater(t, l.Amount, uint64(0))
	}

	assert.Equal(t, first, a.ListingsForCollection(context.Background(), collection))
	assert.Equal(t, 1, a.CountActiveTokens(context.Background(), collection))
}

func TestListingAggregator_ListingsForCollection_PrefersBigmap(t *testing.T) {
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withFiltered(10, url.Values{"value.nft_contract": {collection}}, tzkt.BigmapKey{
			Key:   map[string]interface{}{"address": collection, "nat": "5"},
			Value: decodeJSON(`{"3": {"seller":"tz1a","price":"42","amount":"1"}}`),
		})
	h := newFakeHandle()
	h.onchain[ViewListingsForCollection] = func(contract.Args) (interface{}, error) {
		return nil, errors.New("the view should not run")
	}

	listings := newTestAggregator(f, h, AggregatorConfig{}).ListingsForCollection(context.Background(), collection)

	require.Len(t, listings, 1)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 5, Nonce: 3}, listings[0].Key())
	assert.Empty(t, h.viewers)
}

func TestListingAggregator_ListingsForToken_ListingIdKeys(t *testing.T) {
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withFiltered(10, url.Values{"value.nft_contract": {collection}},
			tzkt.BigmapKey{Key: "5", Value: decodeJSON(`{"token_id":"1","seller":"tz1a","price":"10","amount":"1"}`)},
			tzkt.BigmapKey{Key: "6", Value: decodeJSON(`{"token_id":"1","seller":"tz1b","price":"20","amount":"1"}`)},
		)

	listings := newTestAggregator(f, newFakeHandle(), AggregatorConfig{}).ListingsForToken(context.Background(), collection, 1)

	require.Len(t, listings, 2, "rows keyed by listing id keep their own identity")
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 1, Nonce: 5}, listings[0].Key())
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 1, Nonce: 6}, listings[1].Key())
	assert.Equal(t, uint64(20), listings[1].PriceMutez)
}

func TestListingAggregator_ListingsForToken_ReadsTokenEntry(t *testing.T) {
	tokenFilter := url.Values{"key.address": {collection}, "key.nat": {"5"}}
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withFiltered(10, tokenFilter, tzkt.BigmapKey{
			Key:   map[string]interface{}{"address": collection, "nat": "5"},
			Value: decodeJSON(`{"3": {"seller":"tz1a","price":"42","amount":"1"}}`),
		})

	listings := newTestAggregator(f, newFakeHandle(), AggregatorConfig{}).ListingsForToken(context.Background(), collection, 5)

	require.Len(t, listings, 1)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 5, Nonce: 3}, listings[0].Key())
	assert.Equal(t, []string{"10|" + tokenFilter.Encode()}, f.keyQueries, "no collection scan once the token entry answers")
}

func TestListingAggregator_ListingsForCollection_OffchainFallback(t *testing.T) {
	h := newFakeHandle()
	h.offchain["listings_for_collection"] = tokenView(`[{"token_id":"1","nonce":"1","seller":"tz1a","price":"10","amount":"1"}]`)

	listings := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{}).ListingsForCollection(context.Background(), collection)

	assert.Len(t, listings, 1)
}

func TestListingAggregator_ListingsForCollection_NothingAnywhere(t *testing.T) {
	a := NewListingAggregator(ghostnet, fakeLoader{err: errors.New("node down")}, NewViewExecutor(),
		NewBigmapScanner(newFakeTzkt()), nil, nil, factory.NewListingFactory(), factory.NewOfferFactory(), AggregatorConfig{})

	listings := a.ListingsForCollection(context.Background(), collection)

	assert.NotNil(t, listings)
	assert.Empty(t, listings)
}

func TestListingAggregator_Offers(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewOffersForToken] = tokenView(`[
		{"offeror":"` + offeror + `","price":"50","amount":"1","nonce":"1","accepted":false},
		{"offeror":"` + seller + `","price":"60","amount":"1","nonce":"2","accepted":true},
		{"offeror":"` + seller + `","price":"70","amount":"0","nonce":"3"}
	]`)
	h.offchain["offers_for_collection"] = tokenView(`[
		{"token_id":"2","offeror":"` + offeror + `","price":"5","amount":"1","nonce":"1"}
	]`)
	a := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{})

	offers := a.OffersForToken(context.Background(), collection, 1)
	require.Len(t, offers, 1)
	assert.Equal(t, offeror, offers[0].Offeror)
	assert.Equal(t, uint64(1), offers[0].TokenId)

	all := a.OffersForCollection(context.Background(), collection)
	require.Len(t, all, 1)
	assert.Equal(t, uint64(2), all[0].TokenId)
}

func TestActionableOffers(t *testing.T) {
	listings := []entity.Listing{
		{Contract: collection, TokenId: 1, Seller: seller, Amount: 1, Active: true},
		{Contract: collection, TokenId: 2, Seller: offeror, Amount: 1, Active: true},
		{Contract: collection, TokenId: 3, Seller: seller, Amount: 0, Active: true},
	}
	offers := []entity.Offer{
		{Contract: collection, TokenId: 1, Offeror: offeror, Amount: 1},
		{Contract: collection, TokenId: 2, Offeror: offeror, Amount: 1},
		{Contract: collection, TokenId: 3, Offeror: offeror, Amount: 1},
		{Contract: collection, TokenId: 1, Offeror: offeror, Amount: 1, Accepted: true},
	}

	actionable := ActionableOffers(offers, listings)

	require.Len(t, actionable, 1)
	assert.Equal(t, uint64(1), actionable[0].TokenId)
}

func TestLowestPerToken(t *testing.T) {
	listings := []entity.Listing{
		{Contract: collection, TokenId: 2, Nonce: 1, PriceMutez: 30},
		{Contract: collection, TokenId: 1, Nonce: 1, PriceMutez: 20},
		{Contract: collection, TokenId: 2, Nonce: 2, PriceMutez: 10},
		{Contract: collection, TokenId: 1, Nonce: 2, PriceMutez: 20},
	}

	lowest := LowestPerToken(listings)

	require.Len(t, lowest, 2)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 1, Nonce: 1}, lowest[0].Key())
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 2, Nonce: 2}, lowest[1].Key())
	assert.Nil(t, Lowest(nil))
}

func TestListingAggregator_ListingsForSeller_FromSellerIndex(t *testing.T) {
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withBigmap(marketAddress, PathSellerListings, 20).
		withFiltered(10, url.Values{"key.address": {collection}, "key.nat": {"1"}}, tzkt.BigmapKey{
			Key: map[string]interface{}{"address": collection, "nat": "1"},
			Value: decodeJSON(`{
				"5": {"price":"100","amount":"1"},
				"6": {"price":"100","amount":"1","seller":"` + offeror + `"},
				"7": {"price":"90","amount":"0"}
			}`),
		})
	f.entries["20|"+seller] = &tzkt.BigmapKey{Value: decodeJSON(`[
		{"nft_contract":"` + collection + `","token_id":"1","nonce":"5"},
		{"nft_contract":"` + collection + `","token_id":"1","nonce":"7"}
	]`)}

	listings := newTestAggregator(f, newFakeHandle(), AggregatorConfig{}).ListingsForSeller(context.Background(), seller)

	require.Len(t, listings, 1)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 1, Nonce: 5}, listings[0].Key())
	assert.Equal(t, seller, listings[0].Seller)
}

func TestListingAggregator_ListingsForSeller_FromView(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingsForSeller] = func(args contract.Args) (interface{}, error) {
		assert.Equal(t, []interface{}{seller}, args.Positional())
		return decodeJSON(`[{"nft_contract":"` + collection + `","token_id":"3","nonce":"1","price":"10","amount":"1"}]`), nil
	}

	listings := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{}).ListingsForSeller(context.Background(), seller)

	require.Len(t, listings, 1)
	assert.Equal(t, seller, listings[0].Seller)
	assert.Empty(t, newTestAggregator(newFakeTzkt(), h, AggregatorConfig{}).ListingsForSeller(context.Background(), "nobody"))
}

func TestListingAggregator_ListingDetails(t *testing.T) {
	h := newFakeHandle()
	h.onchain[ViewListingDetails] = func(args contract.Args) (interface{}, error) {
		if !args.IsNamed() {
			return nil, contract.ErrShapeMismatch
		}
		return decodeJSON(`{"nft_contract":"` + collection + `","seller":"` + seller + `","price":"250","amount":"1","active":true}`), nil
	}
	a := newTestAggregator(newFakeTzkt(), h, AggregatorConfig{})

	listing, err := a.ListingDetails(context.Background(), collection, 4, 9)
	require.NoError(t, err)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 4, Nonce: 9}, listing.Key())
	assert.Equal(t, uint64(250), listing.PriceMutez)

	_, err = newTestAggregator(newFakeTzkt(), newFakeHandle(), AggregatorConfig{}).ListingDetails(context.Background(), collection, 4, 9)
	assert.True(t, errors.Is(err, ErrListingNotFound))
}

func TestListingAggregator_Aggregate_TwoCollections(t *testing.T) {
	f := newFakeTzkt().
		withBigmap(marketAddress, PathListings, 10).
		withBigmap(marketAddress, PathCollectionListings, 11).
		withFiltered(10, url.Values{"value.nft_contract": {collection}},
			tzkt.BigmapKey{Key: "1", Value: decodeJSON(`{"nft_contract":"` + collection + `","token_id":"1","nonce":"1","seller":"tz1a","price":"100","amount":"1"}`)},
			tzkt.BigmapKey{Key: "2", Value: decodeJSON(`{"nft_contract":"` + collection + `","token_id":"2","nonce":"1","seller":"tz1gone","price":"50","amount":"1"}`)},
		).
		withFiltered(10, url.Values{"value.contract": {other}},
			tzkt.BigmapKey{Key: "3", Value: decodeJSON(`{"contract":"` + other + `","token_id":"9","nonce":"2","seller":"tz1b","price":"300","amount":"2"}`)},
		).
		withBalance(collection, 1, "tz1a", 1).
		withBalance(other, 9, "tz1b", 5)
	f.names[11] = []interface{}{collection, "not-a-contract"}
	f.names[10] = []interface{}{map[string]interface{}{"address": other, "nat": "9"}, collection}

	snapshot, err := newTestAggregator(f, newFakeHandle(), AggregatorConfig{Fanout: 2, StaleCheck: true}).Aggregate(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, network.Ghostnet, snapshot.Network)
	assert.Equal(t, []string{collection, other}, snapshot.Collections)
	require.Len(t, snapshot.Listings, 2)
	assert.Equal(t, entity.ListingKey{Contract: collection, TokenId: 1, Nonce: 1}, snapshot.Listings[0].Key())
	assert.Equal(t, entity.ListingKey{Contract: other, TokenId: 9, Nonce: 2}, snapshot.Listings[1].Key())
}

func TestListingAggregator_Aggregate_UnknownNetwork(t *testing.T) {
	a := NewListingAggregator(network.Network{Key: "nowhere", Marketplaces: []string{}}, fakeLoader{}, NewViewExecutor(),
		NewBigmapScanner(newFakeTzkt()), nil, nil, factory.NewListingFactory(), factory.NewOfferFactory(), AggregatorConfig{})

	_, err := a.Aggregate(context.Background(), []string{collection})

	assert.True(t, errors.Is(err, ErrUnknownMarketplace))
}
