package marketplace

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZilDuck/zerosum-market-resolver/internal/contract"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/factory"
	"github.com/ZilDuck/zerosum-market-resolver/internal/network"
	"github.com/ZilDuck/zerosum-market-resolver/pkg/tez"
	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid request")

type ListRequest struct {
	Collection     string         `json:"collection"`
	TokenId        uint64         `json:"tokenId"`
	Amount         uint64         `json:"amount"`
	PriceMutez     uint64         `json:"priceMutez"`
	Seller         string         `json:"seller"`
	SaleSplits     []entity.Split `json:"saleSplits"`
	RoyaltySplits  []entity.Split `json:"royaltySplits"`
	StartDelay     uint64         `json:"startDelay"`
	OfflineBalance bool           `json:"offlineBalance"`
}

type BuyRequest struct {
	Collection string `json:"collection"`
	TokenId    uint64 `json:"tokenId"`
	Seller     string `json:"seller"`
	Nonce      uint64 `json:"nonce"`
	Amount     uint64 `json:"amount"`
	PriceMutez uint64 `json:"priceMutez"`
	// Preflight checks the seller balance before building the call.
	Preflight bool `json:"preflight"`
}

type CancelListingRequest struct {
	Collection string `json:"collection"`
	TokenId    uint64 `json:"tokenId"`
	Nonce      uint64 `json:"nonce"`
}

type MakeOfferRequest struct {
	Collection string `json:"collection"`
	TokenId    uint64 `json:"tokenId"`
	Amount     uint64 `json:"amount"`
	PriceMutez uint64 `json:"priceMutez"`
}

type AcceptOfferRequest struct {
	Collection string `json:"collection"`
	TokenId    uint64 `json:"tokenId"`
	Amount     uint64 `json:"amount"`
	Nonce      uint64 `json:"nonce"`
	Offeror    string `json:"offeror"`
}

type WithdrawOfferRequest struct {
	Collection string `json:"collection"`
	TokenId    uint64 `json:"tokenId"`
}

// CallBuilder turns marketplace operations into wallet-ready transfer params,
// coping with the argument conventions of every deployed marketplace version.
type CallBuilder interface {
	List(ctx context.Context, req ListRequest) (*entity.TransferParams, error)
	Buy(ctx context.Context, req BuyRequest) (*entity.TransferParams, error)
	CancelListing(ctx context.Context, req CancelListingRequest) (*entity.TransferParams, error)
	MakeOffer(ctx context.Context, req MakeOfferRequest) (*entity.TransferParams, error)
	AcceptOffer(ctx context.Context, req AcceptOfferRequest) (*entity.TransferParams, error)
	WithdrawOffer(ctx context.Context, req WithdrawOfferRequest) (*entity.TransferParams, error)
}

type callBuilder struct {
	network network.Network
	loader  contract.Loader
	stale   StaleFilter
}

// NewCallBuilder builds a call builder. stale may be nil, buy preflight is then
// unavailable.
func NewCallBuilder(n network.Network, loader contract.Loader, stale StaleFilter) CallBuilder {
	return callBuilder{n, loader, stale}
}

// encoding is one way of calling an entrypoint.
type encoding func(obj contract.ObjectMethod, pos contract.PositionalMethod) (*contract.Invocation, error)

func object(args entity.Params) encoding {
	return func(obj contract.ObjectMethod, _ contract.PositionalMethod) (*contract.Invocation, error) {
		if obj == nil {
			return nil, fmt.Errorf("object binding: %w", contract.ErrEntrypointNotFound)
		}
		return obj(args)
	}
}

func positional(values []interface{}) encoding {
	return func(_ contract.ObjectMethod, pos contract.PositionalMethod) (*contract.Invocation, error) {
		if pos == nil {
			return nil, fmt.Errorf("positional binding: %w", contract.ErrEntrypointNotFound)
		}
		return pos(values...)
	}
}

func (b callBuilder) List(ctx context.Context, req ListRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	args := entity.Params{
		"amount":         amount,
		"nft_contract":   req.Collection,
		"price":          req.PriceMutez,
		"royalty_splits": splitsOrEmpty(req.RoyaltySplits),
		"sale_splits":    entity.CompleteSaleSplits(req.Seller, splitsOrEmpty(req.SaleSplits)),
		"start_delay":    req.StartDelay,
		"token_id":       req.TokenId,
	}
	shape := factory.ListTokenShape

	var encodings []encoding
	if req.OfflineBalance {
		withFlag := args.Without()
		withFlag[factory.OfflineBalanceArg] = true
		encodings = []encoding{
			object(withFlag),
			object(args),
			positional(shape.Args(withFlag)),
			positional(shape.Args(args)),
			positional(shape.Transposed(args)),
		}
	} else {
		encodings = []encoding{
			object(args),
			positional(shape.Args(args)),
			positional(shape.Transposed(args)),
		}
	}

	return b.build(ctx, shape, 0, encodings...)
}

func (b callBuilder) Buy(ctx context.Context, req BuyRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}
	if !tez.IsAddress(req.Seller) {
		return nil, fmt.Errorf("seller %q: %w", req.Seller, ErrInvalidRequest)
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	if req.Preflight && b.stale != nil {
		listing := entity.Listing{Contract: req.Collection, TokenId: req.TokenId, Nonce: req.Nonce, Seller: req.Seller, Amount: amount}
		if err := b.stale.Preflight(ctx, listing); err != nil {
			return nil, err
		}
	}

	args := entity.Params{
		"amount":       amount,
		"nft_contract": req.Collection,
		"nonce":        req.Nonce,
		"seller":       req.Seller,
		"token_id":     req.TokenId,
	}
	shape := factory.BuyShape

	return b.build(ctx, shape, req.PriceMutez, object(args), positional(shape.Args(args)))
}

func (b callBuilder) CancelListing(ctx context.Context, req CancelListingRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}

	args := entity.Params{
		"listing_nonce": req.Nonce,
		"nft_contract":  req.Collection,
		"token_id":      req.TokenId,
	}
	shape := factory.CancelListingShape

	return b.build(ctx, shape, 0, object(args), positional(shape.Args(args)))
}

func (b callBuilder) MakeOffer(ctx context.Context, req MakeOfferRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	args := entity.Params{
		"amount":       amount,
		"nft_contract": req.Collection,
		"price":        req.PriceMutez,
		"token_id":     req.TokenId,
	}
	shape := factory.MakeOfferShape

	return b.build(ctx, shape, 0, object(args), positional(shape.Args(args)))
}

func (b callBuilder) AcceptOffer(ctx context.Context, req AcceptOfferRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}
	if !tez.IsAddress(req.Offeror) {
		return nil, fmt.Errorf("offeror %q: %w", req.Offeror, ErrInvalidRequest)
	}
	amount := req.Amount
	if amount == 0 {
		amount = 1
	}

	args := entity.Params{
		"amount":        amount,
		"listing_nonce": req.Nonce,
		"nft_contract":  req.Collection,
		"offeror":       req.Offeror,
		"token_id":      req.TokenId,
	}
	shape := factory.AcceptOfferShape

	return b.build(ctx, shape, 0, object(args), positional(shape.Args(args)))
}

func (b callBuilder) WithdrawOffer(ctx context.Context, req WithdrawOfferRequest) (*entity.TransferParams, error) {
	if err := validCollection(req.Collection); err != nil {
		return nil, err
	}

	args := entity.Params{
		"nft_contract": req.Collection,
		"token_id":     req.TokenId,
	}
	shape := factory.WithdrawOfferShape

	return b.build(ctx, shape, 0, object(args), positional(shape.Args(args)))
}

// build binds the marketplace, finds the entrypoint and returns the first
// encoding the binding accepts.
func (b callBuilder) build(ctx context.Context, shape factory.EntrypointShape, amountMutez uint64, encodings ...encoding) (*entity.TransferParams, error) {
	address := b.network.Marketplace()
	if address == "" {
		return nil, fmt.Errorf("%s: %w", b.network.Key, ErrUnknownMarketplace)
	}

	h, err := b.loader.At(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("bind marketplace %s: %w", address, err)
	}

	obj, pos := resolveMethods(h, shape)
	if obj == nil && pos == nil {
		return nil, &NoViableEncodingError{Entrypoint: string(shape.Name), Err: contract.ErrEntrypointNotFound}
	}

	var last error
	for i, enc := range encodings {
		inv, err := attempt(enc, obj, pos)
		if err != nil {
			zap.L().With(zap.String("entrypoint", string(shape.Name)), zap.Int("encoding", i), zap.Error(err)).Debug("Call: Encoding rejected")
			last = err
			continue
		}

		params := inv.TransferParams(amountMutez)
		zap.L().With(zap.String("entrypoint", inv.Entrypoint), zap.Int("encoding", i)).Info("Call: Built transfer params")
		return &params, nil
	}

	return nil, &NoViableEncodingError{Entrypoint: string(shape.Name), Err: last}
}

func attempt(enc encoding, obj contract.ObjectMethod, pos contract.PositionalMethod) (inv *contract.Invocation, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("encoding panicked: %v", r)
		}
	}()

	inv, err = enc(obj, pos)
	if err == nil && inv == nil {
		err = contract.ErrShapeMismatch
	}
	return inv, err
}

// resolveMethods looks the entrypoint up under its canonical name on both
// bindings, and by keyword when neither binding has it.
func resolveMethods(h contract.Handle, shape factory.EntrypointShape) (contract.ObjectMethod, contract.PositionalMethod) {
	objects := h.ObjectMethods()
	positionals := h.PositionalMethods()

	name := string(shape.Name)
	obj, okObj := objects[name]
	pos, okPos := positionals[name]
	if okObj || okPos {
		return obj, pos
	}

	if alias, ok := shape.Match(objectNames(objects)); ok {
		obj = objects[alias]
		zap.L().With(zap.String("entrypoint", name), zap.String("alias", alias)).Debug("Call: Entrypoint aliased")
	}
	if alias, ok := shape.Match(positionalNames(positionals)); ok {
		pos = positionals[alias]
	}
	return obj, pos
}

func objectNames(m map[string]contract.ObjectMethod) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	return names
}

func positionalNames(m map[string]contract.PositionalMethod) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	return names
}

func validCollection(collection string) error {
	if !tez.IsContract(collection) {
		return fmt.Errorf("collection %q: %w", collection, ErrInvalidRequest)
	}
	return nil
}

func splitsOrEmpty(splits []entity.Split) []entity.Split {
	if splits == nil {
		return []entity.Split{}
	}
	return splits
}
