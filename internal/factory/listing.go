package factory

import (
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
	"go.uber.org/zap"
)

type ListingFactory interface {
	// CreateListingsFromView reads the record lists the collection and seller views answer with.
	CreateListingsFromView(contract string, raw interface{}) []entity.Listing
	// CreateListingsFromTokenView reads the nonce keyed map the token view answers with.
	CreateListingsFromTokenView(contract string, tokenId uint64, raw interface{}) []entity.Listing
	CreateListingsFromBigmap(contract string, rows []tzkt.BigmapKey) []entity.Listing
	CreateListingDetails(contract string, tokenId, nonce uint64, raw interface{}) (*entity.Listing, error)
}

type listingFactory struct{}

func NewListingFactory() ListingFactory {
	return listingFactory{}
}

func (f listingFactory) CreateListingsFromView(contract string, raw interface{}) []entity.Listing {
	return f.collect(entries(raw), walkContext{contract: contract})
}

func (f listingFactory) CreateListingsFromTokenView(contract string, tokenId uint64, raw interface{}) []entity.Listing {
	return f.collect(entries(raw), walkContext{contract: contract, tokenId: &tokenId})
}

func (f listingFactory) CreateListingsFromBigmap(contract string, rows []tzkt.BigmapKey) []entity.Listing {
	listings := make([]entity.Listing, 0)
	for _, row := range rows {
		ctx := walkContext{contract: contract}.enterKey(row.Key)
		listings = append(listings, f.collect(row.Value, ctx)...)
	}
	return listings
}

func (f listingFactory) CreateListingDetails(contract string, tokenId, nonce uint64, raw interface{}) (*entity.Listing, error) {
	record, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("listing details %T: %w", raw, ErrFieldInvalid)
	}
	if !has(record, "token_id", "tokenId", "token.token_id", "token.id") {
		record["token_id"] = tokenId
	}
	if !has(record, "listing_nonce", "nonce") {
		record["nonce"] = nonce
	}

	return createListing(record, walkContext{contract: contract})
}

func (f listingFactory) collect(raw interface{}, ctx walkContext) []entity.Listing {
	listings := make([]entity.Listing, 0)
	walk(raw, ctx, 0, looksLikeListing, func(record map[string]interface{}, ctx walkContext) {
		listing, err := createListing(record, ctx)
		if err != nil {
			zap.L().With(zap.String("contract", ctx.contract), zap.Error(err)).Debug("Listing: Skipping record")
			return
		}
		listings = append(listings, *listing)
	})
	return listings
}

func looksLikeListing(m map[string]interface{}) bool {
	return has(m, "price", "priceMutez", "price_mutez")
}

// createListing normalizes one listing record. Fields missing from the record are
// taken from the keys it was found under.
func createListing(record map[string]interface{}, ctx walkContext) (*entity.Listing, error) {
	tokenId, err := toUint(first(record, "token_id", "tokenId", "token.token_id", "token.id"))
	ownTokenId := err == nil
	if err != nil {
		if ctx.tokenId == nil {
			return nil, fmt.Errorf("token id: %w", err)
		}
		tokenId = *ctx.tokenId
	}

	price, err := toUint(first(record, "priceMutez", "price_mutez", "price"))
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}

	amount, err := toUint(first(record, "amount", "quantity", "amountTokens", "qty"))
	if err != nil {
		amount = 0
	}

	var nonce uint64
	if n, err := toUint(first(record, "listing_nonce", "nonce")); err == nil {
		nonce = n
	} else if ctx.nonce != nil {
		nonce = *ctx.nonce
	} else if ownTokenId && ctx.index != nil {
		// keyed by listing id
		nonce = *ctx.index
	}

	contract := str(first(record, "nft_contract", "contract", "collection"))
	if contract == "" {
		contract = ctx.contract
	}

	seller := str(first(record, "seller", "owner"))
	if seller == "" {
		seller = ctx.account
	}

	return &entity.Listing{
		Contract:      contract,
		TokenId:       tokenId,
		Nonce:         nonce,
		Seller:        seller,
		PriceMutez:    price,
		Amount:        amount,
		Active:        toBool(first(record, "active", "is_active"), true),
		StartTime:     toTime(first(record, "start_time", "startTime")),
		SaleSplits:    toSplits(first(record, "sale_splits", "saleSplits")),
		RoyaltySplits: toSplits(first(record, "royalty_splits", "royaltySplits")),
	}, nil
}

// RowMentionsContract reports whether a raw big-map row belongs to contract, by
// any of the value fields a listing names its collection in, or by its key.
func RowMentionsContract(row tzkt.BigmapKey, contract string) bool {
	if v, ok := row.Value.(map[string]interface{}); ok {
		for _, field := range []string{"nft_contract", "contract", "collection"} {
			if s, ok := v[field].(string); ok && s == contract {
				return true
			}
		}
	}

	return walkContext{}.enterKey(row.Key).contract == contract
}

// CreateListingRefs reads (contract, token id, nonce) references such as the
// seller index stores. References without a valid collection are dropped.
func CreateListingRefs(raw interface{}) []entity.ListingKey {
	records := make([]map[string]interface{}, 0)
	switch t := raw.(type) {
	case map[string]interface{}:
		records = append(records, t)
	case []interface{}:
		for _, item := range t {
			if m, ok := item.(map[string]interface{}); ok {
				records = append(records, m)
			}
		}
	}

	refs := make([]entity.ListingKey, 0, len(records))
	for _, r := range records {
		contract := str(first(r, "nft_contract", "contract", "collection"))
		if !tez.IsContract(contract) {
			continue
		}
		tokenId, err := toUint(first(r, "token_id", "tokenId", "token.id"))
		if err != nil {
			continue
		}
		nonce, err := toUint(first(r, "listing_nonce", "nonce", "id"))
		if err != nil {
			continue
		}
		refs = append(refs, entity.ListingKey{Contract: contract, TokenId: tokenId, Nonce: nonce})
	}
	return refs
}
