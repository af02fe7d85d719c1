package elastic_search

import (
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
)

type Indices string

var (
	ListingIndex Indices = "listing"
)

// Get returns the full index name for a network
func (i Indices) Get(network string) string {
	return fmt.Sprintf("%s.%s.%s", network, config.Get().ElasticSearch.Index, string(i))
}

func All() []Indices {
	return []Indices{
		ListingIndex,
	}
}
