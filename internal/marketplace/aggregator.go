package marketplace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/network"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	ViewListingsForCollection = "onchain_listings_for_collection"
	ViewListingsForToken      = "onchain_listings_for_token"
	ViewListingsForSeller     = "onchain_listings_for_seller"
	ViewListingDetails        = "onchain_listing_details"
	ViewOffersForToken        = "onchain_offers_for_token"
	ViewOffersForCollection   = "onchain_offers_for_collection"
)

type ListingAggregator interface {
	ListingsForCollection(ctx context.Context, collection string) []entity.Listing
	ListingsForToken(ctx context.Context, collection string, tokenId uint64) []entity.Listing
	LowestListing(ctx context.Context, collection string, tokenId uint64, staleCheck bool) *entity.Listing
	OffersForToken(ctx context.Context, collection string, tokenId uint64) []entity.Offer
	OffersForCollection(ctx context.Context, collection string) []entity.Offer
	ListingsForSeller(ctx context.Context, seller string) []entity.Listing
	ListingDetails(ctx context.Context, collection string, tokenId, nonce uint64) (*entity.Listing, error)
	CountActiveTokens(ctx context.Context, collection string) int
	Aggregate(ctx context.Context, collections []string) (*Snapshot, error)
}

// Snapshot is the aggregated, stale-filtered listing state of a set of collections.
type Snapshot struct {
	Network     string           `json:"network"`
	Collections []string         `json:"collections"`
	Listings    []entity.Listing `json:"listings"`
	CreatedAt   time.Time        `json:"createdAt"`
}

type AggregatorConfig struct {
	Viewer     string
	Fanout     int
	StaleCheck bool
	Classify   bool
}

type listingAggregator struct {
	network        network.Network
	loader         contract.Loader
	views          ViewExecutor
	scanner        BigmapScanner
	stale          StaleFilter
	discovery      CollectionDiscovery
	listingFactory factory.ListingFactory
	offerFactory   factory.OfferFactory
	config         AggregatorConfig
}

func NewListingAggregator(
	n network.Network,
	loader contract.Loader,
	views ViewExecutor,
	scanner BigmapScanner,
	stale StaleFilter,
	discovery CollectionDiscovery,
	listingFactory factory.ListingFactory,
	offerFactory factory.OfferFactory,
	config AggregatorConfig,
) ListingAggregator {
	if config.Fanout < 1 {
		config.Fanout = 1
	}
	return listingAggregator{n, loader, views, scanner, stale, discovery, listingFactory, offerFactory, config}
}

func (a listingAggregator) markets() []*market {
	markets := make([]*market, 0, len(a.network.Marketplaces))
	for _, address := range a.network.Marketplaces {
		markets = append(markets, newMarket(address, a.loader, a.scanner))
	}
	return markets
}

// listingAttempt is one source of listings. Attempts run in order and the first
// non-empty cleaned result wins.
type listingAttempt func() []entity.Listing

func firstListings(clean func([]entity.Listing) []entity.Listing, attempts ...listingAttempt) []entity.Listing {
	for _, attempt := range attempts {
		if listings := clean(attempt()); len(listings) > 0 {
			return listings
		}
	}
	return []entity.Listing{}
}

func (a listingAggregator) ListingsForCollection(ctx context.Context, collection string) []entity.Listing {
	return a.listingsForCollection(ctx, a.markets(), collection)
}

func (a listingAggregator) listingsForCollection(ctx context.Context, markets []*market, collection string) []entity.Listing {
	clean := func(listings []entity.Listing) []entity.Listing {
		return CleanListings(listings, func(l entity.Listing) bool {
			return entity.SameAddress(l.Contract, collection)
		})
	}
	named := contract.Named(entity.Params{"nft_contract": collection})
	positional := contract.Positional(collection)

	for _, m := range markets {
		m := m
		listings := firstListings(clean,
			func() []entity.Listing {
				return a.bigmapListings(ctx, m, collection)
			},
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Onchain, ViewListingsForCollection, a.config.Viewer, named, positional)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromView(collection, raw)
			},
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Offchain, ViewListingsForCollection, a.config.Viewer, named, positional)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromView(collection, raw)
			},
		)
		if len(listings) > 0 {
			zap.L().With(zap.String("contract", collection), zap.String("market", m.address), zap.Int("count", len(listings))).Debug("Listings: Collection resolved")
			return listings
		}
	}

	return []entity.Listing{}
}

func (a listingAggregator) bigmapListings(ctx context.Context, m *market, collection string) []entity.Listing {
	ptr, path, ok := m.Pointers(ctx).Preferred()
	if !ok {
		return nil
	}

	var rows []tzkt.BigmapKey
	if path == PathCollectionListings {
		rows = a.scanner.CollectionRows(ctx, ptr, collection)
	}
	if len(rows) == 0 {
		rows = a.scanner.ActiveRows(ctx, ptr, collection)
	}

	return a.listingFactory.CreateListingsFromBigmap(collection, rows)
}

// tokenBigmapListings reads the single entry of a listings map keyed by
// (collection, token id), saving the scan of the whole collection.
func (a listingAggregator) tokenBigmapListings(ctx context.Context, m *market, collection string, tokenId uint64) []entity.Listing {
	ptr, path, ok := m.Pointers(ctx).Preferred()
	if !ok || path == PathCollectionListings {
		return nil
	}

	return a.listingFactory.CreateListingsFromBigmap(collection, a.scanner.TokenRows(ctx, ptr, collection, tokenId))
}

func (a listingAggregator) ListingsForToken(ctx context.Context, collection string, tokenId uint64) []entity.Listing {
	clean := func(listings []entity.Listing) []entity.Listing {
		return CleanListings(listings, func(l entity.Listing) bool {
			return entity.SameAddress(l.Contract, collection) && l.TokenId == tokenId
		})
	}
	named := contract.Named(entity.Params{"nft_contract": collection, "token_id": tokenId})
	positional := contract.Positional(collection, tokenId)

	for _, m := range a.markets() {
		m := m
		listings := firstListings(clean,
			func() []entity.Listing {
				return a.tokenBigmapListings(ctx, m, collection, tokenId)
			},
			func() []entity.Listing {
				return a.bigmapListings(ctx, m, collection)
			},
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Onchain, ViewListingsForToken, a.config.Viewer, named, positional)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromTokenView(collection, tokenId, raw)
			},
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Offchain, ViewListingsForToken, a.config.Viewer, named, positional)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromTokenView(collection, tokenId, raw)
			},
		)
		if len(listings) > 0 {
			return listings
		}
	}

	return []entity.Listing{}
}

func (a listingAggregator) LowestListing(ctx context.Context, collection string, tokenId uint64, staleCheck bool) *entity.Listing {
	listings := a.ListingsForToken(ctx, collection, tokenId)
	if staleCheck && len(listings) > 0 {
		fresh, err := a.stale.Filter(ctx, listings)
		if err != nil {
			zap.L().With(zap.String("contract", collection), zap.Uint64("tokenId", tokenId), zap.Error(err)).Warn("Listings: Stale check failed")
		} else {
			listings = fresh
		}
	}

	return Lowest(listings)
}

func (a listingAggregator) OffersForToken(ctx context.Context, collection string, tokenId uint64) []entity.Offer {
	named := contract.Named(entity.Params{"nft_contract": collection, "token_id": tokenId})
	positional := contract.Positional(collection, tokenId)
	keep := func(o entity.Offer) bool {
		return entity.SameAddress(o.Contract, collection) && o.TokenId == tokenId
	}

	return a.offers(ctx, ViewOffersForToken, &tokenId, collection, keep, named, positional)
}

func (a listingAggregator) OffersForCollection(ctx context.Context, collection string) []entity.Offer {
	named := contract.Named(entity.Params{"nft_contract": collection})
	positional := contract.Positional(collection)
	keep := func(o entity.Offer) bool {
		return entity.SameAddress(o.Contract, collection)
	}

	return a.offers(ctx, ViewOffersForCollection, nil, collection, keep, named, positional)
}

func (a listingAggregator) offers(ctx context.Context, view string, tokenId *uint64, collection string, keep func(entity.Offer) bool, variants ...contract.Args) []entity.Offer {
	for _, m := range a.markets() {
		for _, kind := range []contract.ViewKind{contract.Onchain, contract.Offchain} {
			raw, ok := a.views.Execute(ctx, m.Handle(ctx), kind, view, a.config.Viewer, variants...)
			if !ok {
				continue
			}
			if offers := CleanOffers(a.offerFactory.CreateOffersFromView(collection, tokenId, raw), keep); len(offers) > 0 {
				return offers
			}
		}
	}
	return []entity.Offer{}
}

func (a listingAggregator) ListingsForSeller(ctx context.Context, seller string) []entity.Listing {
	if !tez.IsAccount(seller) {
		return []entity.Listing{}
	}

	withSeller := func(listings []entity.Listing) []entity.Listing {
		for i := range listings {
			if listings[i].Seller == "" {
				listings[i].Seller = seller
			}
		}
		return listings
	}
	clean := func(listings []entity.Listing) []entity.Listing {
		return CleanListings(withSeller(listings), func(l entity.Listing) bool {
			return tez.IsContract(l.Contract) && entity.SameAddress(l.Seller, seller)
		})
	}
	named := contract.Named(entity.Params{"seller": seller})
	positional := contract.Positional(seller)

	for _, m := range a.markets() {
		m := m
		listings := firstListings(clean,
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Onchain, ViewListingsForSeller, a.config.Viewer, positional, named)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromView("", raw)
			},
			func() []entity.Listing {
				raw, ok := a.views.Execute(ctx, m.Handle(ctx), contract.Offchain, ViewListingsForSeller, a.config.Viewer, positional, named)
				if !ok {
					return nil
				}
				return a.listingFactory.CreateListingsFromView("", raw)
			},
			func() []entity.Listing {
				return a.sellerBigmapListings(ctx, m, seller)
			},
		)
		if len(listings) > 0 {
			return listings
		}
	}

	return []entity.Listing{}
}

// sellerBigmapListings follows the seller index to the listings it references.
func (a listingAggregator) sellerBigmapListings(ctx context.Context, m *market, seller string) []entity.Listing {
	pointers := m.Pointers(ctx)
	sellerPtr, ok := pointers.Get(PathSellerListings)
	if !ok {
		return nil
	}
	listingsPtr, ok := pointers.Get(PathListings)
	if !ok {
		return nil
	}

	wanted := map[entity.TokenKey]map[uint64]bool{}
	order := make([]entity.TokenKey, 0)
	for _, ref := range a.scanner.SellerRefs(ctx, sellerPtr, seller) {
		token := entity.TokenKey{Contract: ref.Contract, TokenId: ref.TokenId}
		if _, ok := wanted[token]; !ok {
			wanted[token] = map[uint64]bool{}
			order = append(order, token)
		}
		wanted[token][ref.Nonce] = true
	}

	listings := make([]entity.Listing, 0)
	for _, token := range order {
		rows := a.scanner.TokenRows(ctx, listingsPtr, token.Contract, token.TokenId)
		for _, l := range a.listingFactory.CreateListingsFromBigmap(token.Contract, rows) {
			if l.TokenId == token.TokenId && wanted[token][l.Nonce] {
				listings = append(listings, l)
			}
		}
	}
	return listings
}

func (a listingAggregator) ListingDetails(ctx context.Context, collection string, tokenId, nonce uint64) (*entity.Listing, error) {
	variants := []contract.Args{
		contract.Named(entity.Params{"listing_nonce": nonce, "nft_contract": collection, "token_id": tokenId}),
		contract.Positional(nonce, collection, tokenId),
	}

	for _, m := range a.markets() {
		for _, kind := range []contract.ViewKind{contract.Onchain, contract.Offchain} {
			raw, ok := a.views.Execute(ctx, m.Handle(ctx), kind, ViewListingDetails, a.config.Viewer, variants...)
			if !ok {
				continue
			}
			listing, err := a.listingFactory.CreateListingDetails(collection, tokenId, nonce, raw)
			if err != nil {
				zap.L().With(zap.String("market", m.address), zap.Error(err)).Debug("Listings: Unreadable details")
				continue
			}
			return listing, nil
		}
	}

	for _, l := range a.ListingsForToken(ctx, collection, tokenId) {
		if l.Nonce == nonce {
			listing := l
			return &listing, nil
		}
	}

	return nil, fmt.Errorf("%s: %w", entity.CreateListingSlug(collection, tokenId, nonce), ErrListingNotFound)
}

func (a listingAggregator) CountActiveTokens(ctx context.Context, collection string) int {
	tokens := map[uint64]bool{}
	for _, l := range a.ListingsForCollection(ctx, collection) {
		tokens[l.TokenId] = true
	}
	return len(tokens)
}

// Aggregate resolves the listings of every collection, discovering them when
// none are given. Collections are resolved concurrently, bounded by the fanout.
func (a listingAggregator) Aggregate(ctx context.Context, collections []string) (*Snapshot, error) {
	if len(a.network.Marketplaces) == 0 {
		return nil, fmt.Errorf("%s: %w", a.network.Key, ErrUnknownMarketplace)
	}

	if len(collections) == 0 {
		collections = a.discovery.Discover(ctx)
		if a.config.Classify {
			collections = a.discovery.Classify(ctx, collections)
		}
	}

	markets := a.markets()
	results := make([][]entity.Listing, len(collections))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.config.Fanout)
	for i, collection := range collections {
		i, collection := i, collection
		eg.Go(func() error {
			results[i] = a.listingsForCollection(egCtx, markets, collection)
			return nil
		})
	}
	_ = eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	listings := make([]entity.Listing, 0)
	for _, r := range results {
		listings = append(listings, r...)
	}
	listings = CleanListings(listings, nil)

	if a.config.StaleCheck && len(listings) > 0 {
		fresh, err := a.stale.Filter(ctx, listings)
		if err != nil {
			zap.L().With(zap.Error(err)).Warn("Aggregate: Stale check failed, keeping all listings")
		} else {
			listings = fresh
		}
	}

	zap.L().With(
		zap.String("network", a.network.Key),
		zap.Int("collections", len(collections)),
		zap.Int("listings", len(listings)),
	).Info("Aggregate: Snapshot built")

	return &Snapshot{
		Network:     a.network.Key,
		Collections: collections,
		Listings:    listings,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// CleanListings keeps purchasable listings accepted by keep (nil keeps all) and
// drops repeats of a (contract, token id, nonce), the first one wins.
func CleanListings(listings []entity.Listing, keep func(entity.Listing) bool) []entity.Listing {
	out := make([]entity.Listing, 0, len(listings))
	seen := map[entity.ListingKey]bool{}
	for _, l := range listings {
		if !l.Purchasable() || (keep != nil && !keep(l)) {
			continue
		}
		if seen[l.Key()] {
			continue
		}
		seen[l.Key()] = true
		out = append(out, l)
	}
	return out
}

type offerKey struct {
	token   entity.TokenKey
	offeror string
	nonce   uint64
}

// CleanOffers keeps open offers accepted by keep (nil keeps all), without repeats.
func CleanOffers(offers []entity.Offer, keep func(entity.Offer) bool) []entity.Offer {
	out := make([]entity.Offer, 0, len(offers))
	seen := map[offerKey]bool{}
	for _, o := range offers {
		if !o.Open() || (keep != nil && !keep(o)) {
			continue
		}
		k := offerKey{o.TokenKey(), o.Offeror, o.Nonce}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, o)
	}
	return out
}

// Lowest returns the cheapest listing. Equal prices keep the first seen.
func Lowest(listings []entity.Listing) *entity.Listing {
	var lowest *entity.Listing
	for i := range listings {
		if lowest == nil || listings[i].PriceMutez < lowest.PriceMutez {
			lowest = &listings[i]
		}
	}
	if lowest == nil {
		return nil
	}
	l := *lowest
	return &l
}

// LowestPerToken reduces listings to the cheapest one per token, ordered by
// collection then token id.
func LowestPerToken(listings []entity.Listing) []entity.Listing {
	byToken := map[entity.TokenKey]entity.Listing{}
	for _, l := range listings {
		if cur, ok := byToken[l.TokenKey()]; !ok || l.PriceMutez < cur.PriceMutez {
			byToken[l.TokenKey()] = l
		}
	}

	out := make([]entity.Listing, 0, len(byToken))
	for _, l := range byToken {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Contract != out[j].Contract {
			return out[i].Contract < out[j].Contract
		}
		return out[i].TokenId < out[j].TokenId
	})
	return out
}

// ActionableOffers keeps the open offers a seller can accept: the token has a
// purchasable listing by someone other than the offeror.
func ActionableOffers(offers []entity.Offer, listings []entity.Listing) []entity.Offer {
	out := make([]entity.Offer, 0, len(offers))
	for _, o := range offers {
		if !o.Open() {
			continue
		}
		for _, l := range listings {
			if l.Purchasable() && l.TokenKey() == o.TokenKey() && !entity.SameAddress(l.Seller, o.Offeror) {
				out = append(out, o)
				break
			}
		}
	}
	return out
}
