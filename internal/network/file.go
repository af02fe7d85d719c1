package network

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadOverrides reads a network table from a yaml/json/toml file:
//
//	networks:
//	  ghostnet:
//	    marketplaces: [KT1...]
//	    tzkt: https://api.ghostnet.tzkt.io
//	    rpc: [https://rpc.ghostnet.teztnets.com]
//
// An empty path yields no overrides.
func LoadOverrides(path string) (map[string]Network, error) {
	if path == "" {
		return nil, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("network: reading %s: %w", path, err)
	}

	networks := map[string]Network{}
	if err := v.UnmarshalKey("networks", &networks); err != nil {
		return nil, fmt.Errorf("network: decoding %s: %w", path, err)
	}

	return networks, nil
}
