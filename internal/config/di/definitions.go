package di

import (
	"fmt"
	"strings"
	"time"

	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/elastic_search"
	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/marketplace"
	"github.com/ZilDuck/zerosum-market-resolver/internal/network"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tezos"
	"github.com/ZilDuck/zerosum-market-resolver/internal/tzkt"
	"github.com/patrickmn/go-cache"
	"github.com/sarulabs/di/v2"
	"go.uber.org/zap"
)

var Definitions = []di.Def{
	{
		Name: "network",
		Build: func(ctn di.Container) (interface{}, error) {
			overrides, err := network.LoadOverrides(config.Get().NetworksFile)
			if err != nil {
				return nil, err
			}

			n := network.NewResolver(overrides, config.Get().MarketplaceAddress).Resolve(config.Get().Network)
			if !n.Known() {
				zap.L().With(zap.String("network", n.Key)).Warn("Network: No marketplace known")
			}
			return n, nil
		},
	},
	{
		Name: "cache.balances",
		Build: func(ctn di.Container) (interface{}, error) {
			ttl := config.Get().BalanceCacheTTL
			return cache.New(ttl, 2*ttl), nil
		},
	},
	{
		Name: "cache.verdicts",
		Build: func(ctn di.Container) (interface{}, error) {
			return cache.New(time.Hour, 2*time.Hour), nil
		},
	},
	{
		Name: "tzkt",
		Build: func(ctn di.Container) (interface{}, error) {
			base := network.NormalizeTzktBase(config.Get().Tzkt.Url)
			if base == "" {
				base = ctn.Get("network").(network.Network).Tzkt
			}
			if base == "" {
				return nil, fmt.Errorf("no indexer url for network %s", config.Get().Network)
			}

			c := config.Get().Tzkt
			client, err := tzkt.NewClient(base, c.Timeout, c.RateLimit, c.Retries, c.Debug)
			if err != nil {
				return nil, err
			}
			return tzkt.NewTzktService(tzkt.NewProvider(client)), nil
		},
	},
	{
		Name: "tezos",
		Build: func(ctn di.Container) (interface{}, error) {
			urls := ctn.Get("network").(network.Network).Rpc
			if config.Get().Node.Url != "" {
				urls = strings.Split(config.Get().Node.Url, ",")
			}

			c := config.Get().Node
			client, err := tezos.NewClient(urls, c.Timeout, c.Retries, c.Debug)
			if err != nil {
				return nil, err
			}
			return tezos.NewTezosService(tezos.NewProvider(client)), nil
		},
	},
	{
		Name: "loader",
		Build: func(ctn di.Container) (interface{}, error) {
			indexer := ctn.Get("tzkt").(tzkt.Service)

			switch config.Get().ViewSource {
			case config.ViewSourceTzkt:
				return tzkt.NewViewLoader(indexer), nil
			case config.ViewSourceRpc, "":
				return tezos.NewBinder(ctn.Get("tezos").(tezos.Service), indexer), nil
			}
			return nil, fmt.Errorf("unknown view source %q", config.Get().ViewSource)
		},
	},
	{
		Name: "view.executor",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewViewExecutor(), nil
		},
	},
	{
		Name: "bigmap.scanner",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewBigmapScanner(ctn.Get("tzkt").(tzkt.Service)), nil
		},
	},
	{
		Name: "stale.filter",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewStaleFilter(
				ctn.Get("tzkt").(tzkt.Service),
				ctn.Get("cache.balances").(*cache.Cache),
				config.Get().Fanout,
			), nil
		},
	},
	{
		Name: "discovery",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewCollectionDiscovery(
				ctn.Get("network").(network.Network),
				ctn.Get("bigmap.scanner").(marketplace.BigmapScanner),
				ctn.Get("tzkt").(tzkt.Service),
				ctn.Get("cache.verdicts").(*cache.Cache),
			), nil
		},
	},
	{
		Name: "aggregator",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewListingAggregator(
				ctn.Get("network").(network.Network),
				ctn.Get("loader").(contract.Loader),
				ctn.Get("view.executor").(marketplace.ViewExecutor),
				ctn.Get("bigmap.scanner").(marketplace.BigmapScanner),
				ctn.Get("stale.filter").(marketplace.StaleFilter),
				ctn.Get("discovery").(marketplace.CollectionDiscovery),
				factory.NewListingFactory(),
				factory.NewOfferFactory(),
				marketplace.AggregatorConfig{
					Viewer:     config.Get().Viewer,
					Fanout:     config.Get().Fanout,
					StaleCheck: config.Get().StaleCheck,
					Classify:   config.Get().Classify,
				},
			), nil
		},
	},
	{
		Name: "call.builder",
		Build: func(ctn di.Container) (interface{}, error) {
			return marketplace.NewCallBuilder(
				ctn.Get("network").(network.Network),
				ctn.Get("loader").(contract.Loader),
				ctn.Get("stale.filter").(marketplace.StaleFilter),
			), nil
		},
	},
	{
		Name: "elastic",
		Build: func(ctn di.Container) (interface{}, error) {
			return elastic_search.New()
		},
	},
}

type Container struct {
	di.Container
}

func NewContainer() (*Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}

	if err = builder.Add(Definitions...); err != nil {
		return nil, err
	}

	return &Container{builder.Build()}, nil
}

func (c *Container) GetNetwork() network.Network {
	return c.Get("network").(network.Network)
}

func (c *Container) GetTzkt() tzkt.Service {
	return c.Get("tzkt").(tzkt.Service)
}

func (c *Container) GetAggregator() marketplace.ListingAggregator {
	return c.Get("aggregator").(marketplace.ListingAggregator)
}

func (c *Container) GetDiscovery() marketplace.CollectionDiscovery {
	return c.Get("discovery").(marketplace.CollectionDiscovery)
}

func (c *Container) GetCallBuilder() marketplace.CallBuilder {
	return c.Get("call.builder").(marketplace.CallBuilder)
}

// GetElastic fails when the cluster is unreachable, so it is only asked for by
// the commands that store snapshots.
func (c *Container) GetElastic() (elastic_search.Index, error) {
	obj, err := c.SafeGet("elastic")
	if err != nil {
		return nil, err
	}
	return obj.(elastic_search.Index), nil
}
