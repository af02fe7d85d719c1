package network

import (
	"strings"

	"go.uber.org/zap"
)

const (
	Mainnet  = "mainnet"
	Ghostnet = "ghostnet"
)

type Network struct {
	Key          string   `mapstructure:"key" json:"key"`
	Marketplaces []string `mapstructure:"marketplaces" json:"marketplaces"`
	Tzkt         string   `mapstructure:"tzkt" json:"tzkt"`
	Rpc          []string `mapstructure:"rpc" json:"rpc"`
}

func (n Network) Known() bool {
	return len(n.Marketplaces) > 0
}

// Marketplace returns the preferred marketplace address, or "" for an unknown network.
func (n Network) Marketplace() string {
	if len(n.Marketplaces) == 0 {
		return ""
	}
	return n.Marketplaces[0]
}

var defaults = map[string]Network{
	Ghostnet: {
		Key:          Ghostnet,
		Marketplaces: []string{"KT1HmDjRUJSx4uUoFVZyDWVXY5WjDofEgH2G"},
		Tzkt:         "https://api.ghostnet.tzkt.io",
		Rpc: []string{
			"https://ghostnet.tezos.ecadinfra.com",
			"https://rpc.ghostnet.teztnets.com",
			"https://rpc.tzkt.io/ghostnet",
		},
	},
	Mainnet: {
		Key:          Mainnet,
		Marketplaces: []string{"KT1Pg8KjHptWXJgN79vCnuWnYUZF3gz9hUhu"},
		Tzkt:         "https://api.tzkt.io",
		Rpc: []string{
			"https://prod.tcinfra.net/rpc/mainnet",
			"https://mainnet.tezos.ecadinfra.com",
		},
	},
}

type Resolver interface {
	Resolve(key string) Network
}

type resolver struct {
	networks map[string]Network
	pinned   string
}

// NewResolver builds a resolver over the built-in table. Overrides replace the
// non-empty fields of a built-in entry or add a new network. A pinned address is
// put in front of the marketplace list of every known network.
func NewResolver(overrides map[string]Network, pinned string) Resolver {
	networks := make(map[string]Network, len(defaults)+len(overrides))
	for k, n := range defaults {
		networks[k] = n
	}

	for k, o := range overrides {
		key := NormalizeKey(k)
		n := networks[key]
		n.Key = key
		if len(o.Marketplaces) > 0 {
			n.Marketplaces = o.Marketplaces
		}
		if o.Tzkt != "" {
			n.Tzkt = o.Tzkt
		}
		if len(o.Rpc) > 0 {
			n.Rpc = o.Rpc
		}
		networks[key] = n
		zap.L().With(zap.String("network", key)).Debug("Network: Override applied")
	}

	return resolver{networks: networks, pinned: strings.TrimSpace(pinned)}
}

func (r resolver) Resolve(key string) Network {
	key = NormalizeKey(key)

	n, ok := r.networks[key]
	if !ok {
		return Network{Key: key, Marketplaces: []string{}}
	}

	marketplaces := make([]string, 0, len(n.Marketplaces)+1)
	if r.pinned != "" {
		marketplaces = append(marketplaces, r.pinned)
	}
	for _, m := range n.Marketplaces {
		if !containsFold(marketplaces, m) {
			marketplaces = append(marketplaces, m)
		}
	}

	return Network{
		Key:          key,
		Marketplaces: marketplaces,
		Tzkt:         NormalizeTzktBase(n.Tzkt),
		Rpc:          append([]string{}, n.Rpc...),
	}
}

// NormalizeKey lowercases a network key. Any key mentioning mainnet is mainnet.
func NormalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if strings.Contains(key, Mainnet) {
		return Mainnet
	}
	return key
}

// NormalizeTzktBase makes sure an indexer base url ends with exactly one /v1.
func NormalizeTzktBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return ""
	}
	for {
		trimmed := strings.TrimRight(base, "/")
		if strings.HasSuffix(trimmed, "/v1") {
			base = strings.TrimSuffix(trimmed, "/v1")
			continue
		}
		base = trimmed
		break
	}
	return base + "/v1"
}

func containsFold(list []string, s string) bool {
	for _, l := range list {
		if strings.EqualFold(l, s) {
			return true
		}
	}
	return false
}
