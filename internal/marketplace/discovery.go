package marketplace

import (
	"context"
	"strings"

	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/network"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// CollectionDiscovery finds the collections that have listings on the network's
// marketplaces.
type CollectionDiscovery interface {
	Discover(ctx context.Context) []string
	// Classify keeps the collections whose metadata identifies them as
	// marketplace-issued contracts.
	Classify(ctx context.Context, collections []string) []string
}

type collectionDiscovery struct {
	network  network.Network
	scanner  BigmapScanner
	tzkt     tzkt.Service
	verdicts *cache.Cache
}

// NewCollectionDiscovery builds a discovery. verdicts may be nil to disable
// caching of classification results.
func NewCollectionDiscovery(n network.Network, scanner BigmapScanner, tzkt tzkt.Service, verdicts *cache.Cache) CollectionDiscovery {
	return collectionDiscovery{n, scanner, tzkt, verdicts}
}

func (d collectionDiscovery) Discover(ctx context.Context) []string {
	collections := make([]string, 0)
	seen := map[string]bool{}
	add := func(kt string) {
		if kt == "" || seen[kt] || !tez.IsContract(kt) {
			return
		}
		seen[kt] = true
		collections = append(collections, kt)
	}

	for _, market := range d.network.Marketplaces {
		pointers := d.scanner.Pointers(ctx, market)
		for _, path := range []string{PathCollectionListings, PathListings} {
			ptr, ok := pointers.Get(path)
			if !ok {
				continue
			}
			for _, key := range d.scanner.CollectionKeys(ctx, ptr) {
				add(contractFromKey(key))
			}
		}
	}

	zap.L().With(zap.String("network", d.network.Key), zap.Int("count", len(collections))).Info("Discovery: Collections found")

	return collections
}

func (d collectionDiscovery) Classify(ctx context.Context, collections []string) []string {
	out := make([]string, 0, len(collections))
	for _, c := range collections {
		if d.classify(ctx, c) {
			out = append(out, c)
		}
	}
	return out
}

func (d collectionDiscovery) classify(ctx context.Context, collection string) bool {
	if d.verdicts != nil {
		if v, ok := d.verdicts.Get(collection); ok {
			if verdict, ok := v.(bool); ok {
				return verdict
			}
		}
	}

	md, err := d.tzkt.GetContractMetadata(ctx, collection)
	if err != nil {
		zap.L().With(zap.String("contract", collection), zap.Error(err)).Debug("Discovery: No metadata")
		return false
	}

	verdict := factory.IsMarketplaceCollection(md)
	if d.verdicts != nil {
		d.verdicts.SetDefault(collection, verdict)
	}
	return verdict
}

// contractFromKey reads a collection address from a big-map key: the key itself,
// or a field of an object key.
func contractFromKey(key interface{}) string {
	switch k := key.(type) {
	case string:
		return strings.TrimSpace(k)
	case map[string]interface{}:
		for _, field := range []string{"address", "nft_contract", "contract", "collection"} {
			if s, ok := k[field].(string); ok && tez.IsContract(s) {
				return s
			}
		}
	}
	return ""
}
