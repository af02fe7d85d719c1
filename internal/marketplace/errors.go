package marketplace

import (
	"errors"
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
)

var (
	ErrStaleListing       = errors.New("listing appears stale")
	ErrListingNotFound    = errors.New("listing not found")
	ErrBalanceCheckFailed = errors.New("balance check failed")
	ErrUnknownMarketplace = errors.New("no marketplace configured for network")
)

// StaleListingError is returned when the seller no longer holds enough tokens to
// honour the listing.
type StaleListingError struct {
	Listing entity.Listing
	Balance uint64
	Needed  uint64
}

func (e *StaleListingError) Error() string {
	return fmt.Sprintf("%s: seller %s holds %d of %s #%d, needs %d",
		ErrStaleListing, e.Listing.Seller, e.Balance, e.Listing.Contract, e.Listing.TokenId, e.Needed)
}

func (e *StaleListingError) Unwrap() error {
	return ErrStaleListing
}

// NoViableEncodingError is returned once every argument encoding for an
// entrypoint was rejected. Err is the last rejection.
type NoViableEncodingError struct {
	Entrypoint string
	Err        error
}

func (e *NoViableEncodingError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("no viable encoding for entrypoint %s", e.Entrypoint)
	}
	return fmt.Sprintf("no viable encoding for entrypoint %s: %s", e.Entrypoint, e.Err)
}

func (e *NoViableEncodingError) Unwrap() error {
	return e.Err
}
