package factory

import (
	"sort"
	"strings"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

const OfflineBalanceArg = "offline_balance"

// EntrypointShape describes a logical marketplace entrypoint: its canonical name,
// the fragments a renamed version still contains, and its positional argument order.
type EntrypointShape struct {
	Name       entity.ENTRYPOINT
	Keywords   []string
	Positional []string
}

func CreateEntrypointShape(name entity.ENTRYPOINT, keywords string, positional ...string) EntrypointShape {
	return EntrypointShape{
		Name:       name,
		Keywords:   strings.Split(keywords, "+"),
		Positional: positional,
	}
}

var (
	ListTokenShape = CreateEntrypointShape(entity.EntrypointListToken, "list+token",
		"amount", "nft_contract", "price", OfflineBalanceArg, "royalty_splits", "sale_splits", "start_delay", "token_id")
	BuyShape = CreateEntrypointShape(entity.EntrypointBuy, "buy",
		"amount", "nft_contract", "nonce", "seller", "token_id")
	CancelListingShape = CreateEntrypointShape(entity.EntrypointCancelListing, "cancel+listing",
		"listing_nonce", "nft_contract", "token_id")
	MakeOfferShape = CreateEntrypointShape(entity.EntrypointMakeOffer, "make+offer",
		"amount", "nft_contract", "price", "token_id")
	AcceptOfferShape = CreateEntrypointShape(entity.EntrypointAcceptOffer, "accept+offer",
		"amount", "listing_nonce", "nft_contract", "offeror", "token_id")
	WithdrawOfferShape = CreateEntrypointShape(entity.EntrypointWithdrawOffer, "withdraw+offer",
		"nft_contract", "token_id")
)

// Args lays out named arguments in positional order. Names absent from args are
// skipped, so optional arguments like offline_balance only take a slot when given.
func (s EntrypointShape) Args(args entity.Params) []interface{} {
	out := make([]interface{}, 0, len(s.Positional))
	for _, name := range s.Positional {
		if v, ok := args[name]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Transposed is Args with the royalty and sale split slots swapped, an order some
// contract versions were deployed with.
func (s EntrypointShape) Transposed(args entity.Params) []interface{} {
	swapped := args.Without("royalty_splits", "sale_splits")
	if v, ok := args["sale_splits"]; ok {
		swapped["royalty_splits"] = v
	}
	if v, ok := args["royalty_splits"]; ok {
		swapped["sale_splits"] = v
	}
	return s.Args(swapped)
}

// Match finds the method implementing the shape: the canonical name, otherwise
// the first name (in sorted order) whose normalized form contains every keyword.
func (s EntrypointShape) Match(names []string) (string, bool) {
	for _, n := range names {
		if n == string(s.Name) {
			return n, true
		}
	}

	sorted := append([]string{}, names...)
	sort.Strings(sorted)
	for _, n := range sorted {
		normalized := NormalizeEntrypointName(n)
		matched := true
		for _, k := range s.Keywords {
			if !strings.Contains(normalized, k) {
				matched = false
				break
			}
		}
		if matched {
			return n, true
		}
	}

	return "", false
}

func NormalizeEntrypointName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "_", "")
}
