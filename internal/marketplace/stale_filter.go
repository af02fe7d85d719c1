package marketplace

import (
	"context"
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sellerBatchSize = 50

// StaleFilter drops listings whose seller no longer holds the listed tokens.
// The check is advisory: when the indexer cannot answer, listings are kept.
type StaleFilter interface {
	Filter(ctx context.Context, listings []entity.Listing) ([]entity.Listing, error)
	Preflight(ctx context.Context, listing entity.Listing) error
}

type staleFilter struct {
	tzkt     tzkt.Service
	balances *cache.Cache
	fanout   int
}

// NewStaleFilter builds a filter. balances may be nil to disable caching.
func NewStaleFilter(tzkt tzkt.Service, balances *cache.Cache, fanout int) StaleFilter {
	if fanout < 1 {
		fanout = 1
	}
	return staleFilter{tzkt, balances, fanout}
}

type listingGroup struct {
	token   entity.TokenKey
	indexes []int
}

// Filter returns listings in their input order minus the stale ones. The error is
// ErrBalanceCheckFailed when no group could be checked, the listings are then
// returned untouched.
func (f staleFilter) Filter(ctx context.Context, listings []entity.Listing) ([]entity.Listing, error) {
	if len(listings) == 0 {
		return listings, nil
	}

	groups := make([]*listingGroup, 0)
	byToken := map[entity.TokenKey]*listingGroup{}
	for i, l := range listings {
		g, ok := byToken[l.TokenKey()]
		if !ok {
			g = &listingGroup{token: l.TokenKey()}
			byToken[l.TokenKey()] = g
			groups = append(groups, g)
		}
		g.indexes = append(g.indexes, i)
	}

	balances := make([]map[string]uint64, len(groups))
	failed := make([]bool, len(groups))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.fanout)
	for gi, g := range groups {
		gi, g := gi, g
		eg.Go(func() error {
			sellers := make([]string, 0, len(g.indexes))
			seen := map[string]bool{}
			for _, i := range g.indexes {
				if s := listings[i].Seller; s != "" && !seen[s] {
					seen[s] = true
					sellers = append(sellers, s)
				}
			}

			held, err := f.sellerBalances(egCtx, g.token, sellers)
			if err != nil {
				zap.L().With(
					zap.String("contract", g.token.Contract),
					zap.Uint64("tokenId", g.token.TokenId),
					zap.Error(err),
				).Warn("Stale: Balance check failed, keeping listings")
				failed[gi] = true
				return nil
			}
			balances[gi] = held
			return nil
		})
	}
	_ = eg.Wait()

	keep := make([]bool, len(listings))
	checked := 0
	for gi, g := range groups {
		if failed[gi] {
			for _, i := range g.indexes {
				keep[i] = true
			}
			continue
		}
		checked++
		for _, i := range g.indexes {
			keep[i] = balances[gi][listings[i].Seller] >= listings[i].Amount
		}
	}

	if checked == 0 {
		return listings, ErrBalanceCheckFailed
	}

	fresh := make([]entity.Listing, 0, len(listings))
	for i, l := range listings {
		if keep[i] {
			fresh = append(fresh, l)
		} else {
			zap.L().With(zap.String("listing", l.Slug()), zap.String("seller", l.Seller)).Debug("Stale: Dropping listing")
		}
	}
	return fresh, nil
}

// Preflight checks the seller still holds the listed amount. The cache is
// bypassed, a buy deserves a fresh answer.
func (f staleFilter) Preflight(ctx context.Context, listing entity.Listing) error {
	needed := listing.Amount
	if needed == 0 {
		needed = 1
	}

	rows, err := f.tzkt.GetTokenBalances(ctx, listing.Contract, listing.TokenId, []string{listing.Seller})
	if err != nil {
		return fmt.Errorf("preflight %s: %w", listing.Slug(), err)
	}

	var balance uint64
	for _, row := range rows {
		if row.Account.Address == listing.Seller {
			balance = row.Amount()
		}
	}
	f.store(listing.TokenKey(), listing.Seller, balance)

	if balance < needed {
		return &StaleListingError{Listing: listing, Balance: balance, Needed: needed}
	}
	return nil
}

// sellerBalances resolves the balance of every seller, from cache where possible
// and from the indexer in batches otherwise. Sellers without a row hold nothing.
func (f staleFilter) sellerBalances(ctx context.Context, token entity.TokenKey, sellers []string) (map[string]uint64, error) {
	held := make(map[string]uint64, len(sellers))
	need := make([]string, 0, len(sellers))
	for _, s := range sellers {
		if b, ok := f.cached(token, s); ok {
			held[s] = b
			continue
		}
		need = append(need, s)
	}

	for start := 0; start < len(need); start += sellerBatchSize {
		end := start + sellerBatchSize
		if end > len(need) {
			end = len(need)
		}
		batch := need[start:end]

		rows, err := f.tzkt.GetTokenBalances(ctx, token.Contract, token.TokenId, batch)
		if err != nil {
			return nil, err
		}

		found := make(map[string]uint64, len(rows))
		for _, row := range rows {
			found[row.Account.Address] = row.Amount()
		}
		for _, s := range batch {
			held[s] = found[s]
			f.store(token, s, found[s])
		}
	}

	return held, nil
}

func balanceCacheKey(token entity.TokenKey, seller string) string {
	return fmt.Sprintf("%s|%d|%s", token.Contract, token.TokenId, seller)
}

func (f staleFilter) cached(token entity.TokenKey, seller string) (uint64, bool) {
	if f.balances == nil {
		return 0, false
	}
	v, ok := f.balances.Get(balanceCacheKey(token, seller))
	if !ok {
		return 0, false
	}
	b, ok := v.(uint64)
	return b, ok
}

func (f staleFilter) store(token entity.TokenKey, seller string, balance uint64) {
	if f.balances == nil {
		return
	}
	f.balances.SetDefault(balanceCacheKey(token, seller), balance)
}
