package marketplace

import (
	"context"
	"net/url"
	"strconv"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"go.uber.org/zap"
)

const (
	PathListingsActive     = "listings_active"
	PathListings           = "listings"
	PathCollectionListings = "collection_listings"
	PathSellerListings     = "seller_listings"
)

var listingPaths = []string{PathListingsActive, PathListings, PathCollectionListings}

var listingValueFields = []string{"value.nft_contract", "value.contract", "value.collection"}

// Pointers maps a marketplace big-map path to its pointer.
type Pointers map[string]int64

// Preferred returns the most specific listings big-map the marketplace has.
func (p Pointers) Preferred() (int64, string, bool) {
	for _, path := range listingPaths {
		if ptr, ok := p[path]; ok {
			return ptr, path, true
		}
	}
	return 0, "", false
}

func (p Pointers) Get(path string) (int64, bool) {
	ptr, ok := p[path]
	return ptr, ok
}

// BigmapScanner reads marketplace state straight from the indexer. Every method
// degrades to an empty result when the indexer fails.
type BigmapScanner interface {
	Pointers(ctx context.Context, market string) Pointers
	ActiveRows(ctx context.Context, ptr int64, contract string) []tzkt.BigmapKey
	CollectionRows(ctx context.Context, ptr int64, contract string) []tzkt.BigmapKey
	CollectionKeys(ctx context.Context, ptr int64) []interface{}
	SellerRefs(ctx context.Context, ptr int64, seller string) []entity.ListingKey
	TokenRows(ctx context.Context, ptr int64, contract string, tokenId uint64) []tzkt.BigmapKey
}

type bigmapScanner struct {
	tzkt tzkt.Service
}

func NewBigmapScanner(tzkt tzkt.Service) BigmapScanner {
	return bigmapScanner{tzkt}
}

func (s bigmapScanner) Pointers(ctx context.Context, market string) Pointers {
	pointers := Pointers{}

	bigmaps, err := s.tzkt.GetBigmaps(ctx, market)
	if err != nil {
		zap.L().With(zap.String("market", market), zap.Error(err)).Warn("Bigmap: Failed to get pointers")
		return pointers
	}

	for _, bm := range bigmaps {
		ptr, ok := bm.Pointer()
		if !ok || bm.PathName() == "" {
			continue
		}
		if _, seen := pointers[bm.PathName()]; !seen {
			pointers[bm.PathName()] = ptr
		}
	}

	return pointers
}

// ActiveRows returns the active rows of a listings big-map belonging to contract.
// Server side value filters are tried first. Without a hit the whole map is read
// and filtered locally.
func (s bigmapScanner) ActiveRows(ctx context.Context, ptr int64, contract string) []tzkt.BigmapKey {
	for _, field := range listingValueFields {
		rows, err := s.tzkt.GetBigmapKeys(ctx, ptr, url.Values{field: {contract}})
		if err != nil {
			zap.L().With(zap.Int64("ptr", ptr), zap.String("filter", field), zap.Error(err)).Debug("Bigmap: Filtered scan failed")
			continue
		}
		if len(rows) > 0 {
			return rows
		}
	}

	rows, err := s.tzkt.GetBigmapKeys(ctx, ptr, nil)
	if err != nil {
		zap.L().With(zap.Int64("ptr", ptr), zap.Error(err)).Warn("Bigmap: Full scan failed")
		return []tzkt.BigmapKey{}
	}

	matched := make([]tzkt.BigmapKey, 0)
	for _, row := range rows {
		if factory.RowMentionsContract(row, contract) {
			matched = append(matched, row)
		}
	}
	return matched
}

// CollectionRows reads the entry of a map keyed by collection address.
func (s bigmapScanner) CollectionRows(ctx context.Context, ptr int64, contract string) []tzkt.BigmapKey {
	row, err := s.tzkt.GetBigmapKey(ctx, ptr, contract)
	if err != nil || row == nil || row.Value == nil {
		if err != nil {
			zap.L().With(zap.Int64("ptr", ptr), zap.String("contract", contract), zap.Error(err)).Debug("Bigmap: No collection entry")
		}
		return []tzkt.BigmapKey{}
	}
	if row.Active != nil && !*row.Active {
		return []tzkt.BigmapKey{}
	}
	if row.Key == nil {
		row.Key = contract
	}
	return []tzkt.BigmapKey{*row}
}

func (s bigmapScanner) CollectionKeys(ctx context.Context, ptr int64) []interface{} {
	keys, err := s.tzkt.GetBigmapKeyNames(ctx, ptr)
	if err != nil {
		zap.L().With(zap.Int64("ptr", ptr), zap.Error(err)).Warn("Bigmap: Failed to get keys")
		return []interface{}{}
	}
	return keys
}

// SellerRefs reads the listing references a seller index holds for one account.
func (s bigmapScanner) SellerRefs(ctx context.Context, ptr int64, seller string) []entity.ListingKey {
	row, err := s.tzkt.GetBigmapKey(ctx, ptr, seller)
	if err != nil || row == nil {
		if err != nil {
			zap.L().With(zap.String("seller", seller), zap.Error(err)).Debug("Bigmap: No seller entry")
		}
		return []entity.ListingKey{}
	}
	return factory.CreateListingRefs(row.Value)
}

// TokenRows reads the entry of a listings map keyed by (collection, token id).
func (s bigmapScanner) TokenRows(ctx context.Context, ptr int64, contract string, tokenId uint64) []tzkt.BigmapKey {
	filter := url.Values{
		"key.address": {contract},
		"key.nat":     {strconv.FormatUint(tokenId, 10)},
	}
	rows, err := s.tzkt.GetBigmapKeys(ctx, ptr, filter)
	if err != nil {
		zap.L().With(zap.String("contract", contract), zap.Uint64("tokenId", tokenId), zap.Error(err)).Debug("Bigmap: No token entry")
		return []tzkt.BigmapKey{}
	}
	return rows
}
