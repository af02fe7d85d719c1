package factory

import (
	"regexp"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

var (
	zeroContractVersion = regexp.MustCompile(`(?i)ZeroContract`)
	tzip12Interface     = regexp.MustCompile(`(?i)TZIP-?0*12\b`)
	tzip16Interface     = regexp.MustCompile(`(?i)TZIP-?0*16\b`)
)

// IsMarketplaceCollection tells from its metadata whether a contract is an NFT
// collection the marketplace trades: a ZeroContract version, or an FA2 token with
// TZIP-16 metadata.
func IsMarketplaceCollection(md entity.ContractMetadata) bool {
	if md == nil {
		return false
	}
	if zeroContractVersion.MatchString(md.Version()) {
		return true
	}

	return hasInterface(md, tzip12Interface) && hasInterface(md, tzip16Interface)
}

func hasInterface(md entity.ContractMetadata, re *regexp.Regexp) bool {
	for _, i := range md.Interfaces() {
		if re.MatchString(i) {
			return true
		}
	}
	return false
}
