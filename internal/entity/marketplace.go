package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

type Entity interface {
	Slug() string
}

// FullSplitBps is the basis point total of a complete split set (100%).
const FullSplitBps uint64 = 10000

type Split struct {
	Address            string `json:"address"`
	PercentBasisPoints uint64 `json:"percent"`
}

type Listing struct {
	Contract      string     `json:"contract"`
	TokenId       uint64     `json:"tokenId"`
	Nonce         uint64     `json:"nonce"`
	Seller        string     `json:"seller"`
	PriceMutez    uint64     `json:"priceMutez"`
	Amount        uint64     `json:"amount"`
	Active        bool       `json:"active"`
	StartTime     *time.Time `json:"startTime,omitempty"`
	SaleSplits    []Split    `json:"saleSplits,omitempty"`
	RoyaltySplits []Split    `json:"royaltySplits,omitempty"`
}

// Purchasable reports the necessary condition for a listing to be bought.
// A purchasable listing may still be stale, see the marketplace stale filter.
func (l Listing) Purchasable() bool {
	return l.Active && l.Amount > 0
}

func (l Listing) Key() ListingKey {
	return ListingKey{Contract: l.Contract, TokenId: l.TokenId, Nonce: l.Nonce}
}

func (l Listing) Slug() string {
	return CreateListingSlug(l.Contract, l.TokenId, l.Nonce)
}

func CreateListingSlug(contract string, tokenId, nonce uint64) string {
	return slug.Make(fmt.Sprintf("listing-%s-%d-%d", contract, tokenId, nonce))
}

type ListingKey struct {
	Contract string
	TokenId  uint64
	Nonce    uint64
}

type TokenKey struct {
	Contract string
	TokenId  uint64
}

func (l Listing) TokenKey() TokenKey {
	return TokenKey{Contract: l.Contract, TokenId: l.TokenId}
}

type Offer struct {
	Contract   string `json:"contract"`
	TokenId    uint64 `json:"tokenId"`
	Offeror    string `json:"offeror"`
	Nonce      uint64 `json:"nonce"`
	PriceMutez uint64 `json:"priceMutez"`
	Amount     uint64 `json:"amount"`
	Accepted   bool   `json:"accepted"`
}

func (o Offer) Open() bool {
	return !o.Accepted && o.Amount > 0
}

func (o Offer) TokenKey() TokenKey {
	return TokenKey{Contract: o.Contract, TokenId: o.TokenId}
}

func (o Offer) Slug() string {
	return slug.Make(fmt.Sprintf("offer-%s-%d-%s-%d", o.Contract, o.TokenId, o.Offeror, o.Nonce))
}

type Collection struct {
	Address string `json:"address"`
}

func (c Collection) Slug() string {
	return slug.Make(fmt.Sprintf("collection-%s", c.Address))
}

// SameAddress compares two tezos addresses ignoring case and surrounding space.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// CompleteSaleSplits gives the seller whatever share the explicit splits leave unassigned.
func CompleteSaleSplits(seller string, splits []Split) []Split {
	if len(splits) == 0 {
		if seller == "" {
			return splits
		}
		return []Split{{Address: seller, PercentBasisPoints: FullSplitBps}}
	}

	var used uint64
	for _, s := range splits {
		used += s.PercentBasisPoints
	}
	if used >= FullSplitBps || seller == "" {
		return splits
	}

	completed := make([]Split, 0, len(splits)+1)
	completed = append(completed, splits...)
	return append(completed, Split{Address: seller, PercentBasisPoints: FullSplitBps - used})
}
