package factory

import (
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"go.uber.org/zap"
)

type OfferFactory interface {
	// CreateOffersFromView reads offer records, either a list or a map keyed by offeror.
	CreateOffersFromView(contract string, tokenId *uint64, raw interface{}) []entity.Offer
}

type offerFactory struct{}

func NewOfferFactory() OfferFactory {
	return offerFactory{}
}

func (f offerFactory) CreateOffersFromView(contract string, tokenId *uint64, raw interface{}) []entity.Offer {
	offers := make([]entity.Offer, 0)
	walk(entries(raw), walkContext{contract: contract, tokenId: tokenId}, 0, looksLikeOffer, func(record map[string]interface{}, ctx walkContext) {
		offer, err := createOffer(record, ctx)
		if err != nil {
			zap.L().With(zap.String("contract", ctx.contract), zap.Error(err)).Debug("Offer: Skipping record")
			return
		}
		offers = append(offers, *offer)
	})
	return offers
}

func looksLikeOffer(m map[string]interface{}) bool {
	return has(m, "price", "priceMutez", "price_mutez") && has(m, "amount", "accepted", "nonce", "offeror")
}

func createOffer(record map[string]interface{}, ctx walkContext) (*entity.Offer, error) {
	tokenId, err := toUint(first(record, "token_id", "tokenId", "token.token_id", "token.id"))
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

	offeror := str(first(record, "offeror", "buyer"))
	if offeror == "" {
		offeror = ctx.account
	}
	if offeror == "" {
		return nil, fmt.Errorf("offeror: %w", ErrFieldMissing)
	}

	amount, _ := toUint(first(record, "amount", "quantity", "qty"))

	var nonce uint64
	if n, err := toUint(first(record, "nonce", "offer_nonce")); err == nil {
		nonce = n
	} else if ctx.nonce != nil {
		nonce = *ctx.nonce
	}

	contract := str(first(record, "nft_contract", "contract", "collection"))
	if contract == "" {
		contract = ctx.contract
	}

	return &entity.Offer{
		Contract:   contract,
		TokenId:    tokenId,
		Offeror:    offeror,
		Nonce:      nonce,
		PriceMutez: price,
		Amount:     amount,
		Accepted:   toBool(first(record, "accepted"), false),
	}, nil
}
