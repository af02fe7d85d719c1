package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ZilDuck/zerosum-market-resolver/internal/config"
	"github.com/ZilDuck/zerosum-market-resolver/internal/config/di"
	"github.com/ZilDuck/zerosum-market-resolver/internal/dev"
	"github.com/ZilDuck/zerosum-market-resolver/internal/entity"
	"github.com/ZilDuck/zerosum-market-resolver/internal/marketplace"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	container  *di.Container
	aggregator marketplace.ListingAggregator
	calls      marketplace.CallBuilder
)

var (
	contractFlag = &cli.StringFlag{Name: "contract", Usage: "collection (KT1) address", Required: true}
	tokenFlag    = &cli.Uint64Flag{Name: "token", Usage: "token id"}
	nonceFlag    = &cli.Uint64Flag{Name: "nonce", Usage: "listing or offer nonce"}
	amountFlag   = &cli.Uint64Flag{Name: "amount", Usage: "edition count"}
	priceFlag    = &cli.Uint64Flag{Name: "price", Usage: "price in mutez"}
)

func main() {
	config.Init()

	var err error
	if container, err = di.NewContainer(); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	aggregator = container.GetAggregator()
	calls = container.GetCallBuilder()

	app := &cli.App{
		Name:  "zerosum",
		Usage: "read and trade on the zerosum NFT marketplace",
		Commands: []*cli.Command{
			{
				Name:   "collections",
				Usage:  "List the collections with marketplace activity",
				Action: collections,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "classify", Usage: "keep only TZIP-12/16 collections"},
				},
			},
			{
				Name:   "listings",
				Usage:  "List active listings of a collection, or of a token when --token is set",
				Action: listings,
				Flags:  []cli.Flag{contractFlag, tokenFlag},
			},
			{
				Name:   "lowest",
				Usage:  "Show the cheapest listing of a token, or of every token of a collection",
				Action: lowest,
				Flags: []cli.Flag{
					contractFlag,
					tokenFlag,
					&cli.BoolFlag{Name: "stale", Usage: "skip listings whose seller no longer holds the token"},
				},
			},
			{
				Name:   "offers",
				Usage:  "List open offers of a collection, or of a token when --token is set",
				Action: offers,
				Flags: []cli.Flag{
					contractFlag,
					tokenFlag,
					&cli.BoolFlag{Name: "actionable", Usage: "keep offers a listing seller could accept"},
				},
			},
			{
				Name:   "seller",
				Usage:  "List the active listings of a seller",
				Action: seller,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "address", Usage: "seller (tz) address", Required: true},
				},
			},
			{
				Name:   "details",
				Usage:  "Show one listing",
				Action: details,
				Flags:  []cli.Flag{contractFlag, tokenFlag, nonceFlag},
			},
			{
				Name:   "count",
				Usage:  "Count the tokens of a collection with an active listing",
				Action: count,
				Flags:  []cli.Flag{contractFlag},
			},
			{
				Name:        "build",
				Usage:       "Build the transfer params of a marketplace call",
				Subcommands: buildCommands(),
			},
			{
				Name:   "snapshot",
				Usage:  "Aggregate listings and store them in elastic search",
				Action: snapshot,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "contract", Usage: "collections to aggregate, all discovered ones when omitted"},
					&cli.BoolFlag{Name: "mappings", Usage: "install index mappings first"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to run CLI")
	}
}

func collections(c *cli.Context) error {
	discovery := container.GetDiscovery()

	found := discovery.Discover(c.Context)
	if c.Bool("classify") {
		found = discovery.Classify(c.Context, found)
	}

	return dev.Write(os.Stdout, found)
}

func listings(c *cli.Context) error {
	if c.IsSet("token") {
		return dev.Write(os.Stdout, aggregator.ListingsForToken(c.Context, c.String("contract"), c.Uint64("token")))
	}
	return dev.Write(os.Stdout, aggregator.ListingsForCollection(c.Context, c.String("contract")))
}

func lowest(c *cli.Context) error {
	if !c.IsSet("token") {
		return dev.Write(os.Stdout, marketplace.LowestPerToken(aggregator.ListingsForCollection(c.Context, c.String("contract"))))
	}

	l := aggregator.LowestListing(c.Context, c.String("contract"), c.Uint64("token"), c.Bool("stale"))
	if l == nil {
		return marketplace.ErrListingNotFound
	}
	return dev.Write(os.Stdout, l)
}

func offers(c *cli.Context) error {
	contract := c.String("contract")

	var found []entity.Offer
	var listed []entity.Listing
	if c.IsSet("token") {
		found = aggregator.OffersForToken(c.Context, contract, c.Uint64("token"))
		if c.Bool("actionable") {
			listed = aggregator.ListingsForToken(c.Context, contract, c.Uint64("token"))
		}
	} else {
		found = aggregator.OffersForCollection(c.Context, contract)
		if c.Bool("actionable") {
			listed = aggregator.ListingsForCollection(c.Context, contract)
		}
	}

	if c.Bool("actionable") {
		found = marketplace.ActionableOffers(found, listed)
	}
	return dev.Write(os.Stdout, found)
}

func seller(c *cli.Context) error {
	return dev.Write(os.Stdout, aggregator.ListingsForSeller(c.Context, c.String("address")))
}

func details(c *cli.Context) error {
	l, err := aggregator.ListingDetails(c.Context, c.String("contract"), c.Uint64("token"), c.Uint64("nonce"))
	if err != nil {
		return err
	}
	return dev.Write(os.Stdout, l)
}

func count(c *cli.Context) error {
	_, err := fmt.Fprintln(os.Stdout, aggregator.CountActiveTokens(c.Context, c.String("contract")))
	return err
}

func snapshot(c *cli.Context) error {
	elastic, err := container.GetElastic()
	if err != nil {
		return err
	}

	if c.Bool("mappings") {
		if err := elastic.InstallMappings(c.Context, container.GetNetwork().Key); err != nil {
			return err
		}
	}

	s, err := aggregator.Aggregate(c.Context, c.StringSlice("contract"))
	if err != nil {
		return err
	}

	stored, err := elastic.StoreSnapshot(c.Context, s)
	zap.L().With(
		zap.String("network", s.Network),
		zap.Int("collections", len(s.Collections)),
		zap.Int("listings", len(s.Listings)),
		zap.Int("stored", stored),
	).Info("Snapshot stored")

	return err
}

func buildCommands() []*cli.Command {
	splitsFlag := func(name string) cli.Flag {
		return &cli.StringFlag{Name: name, Usage: `JSON splits, e.g. [{"address":"tz1..","percent":1000}]`}
	}

	return []*cli.Command{
		{
			Name:  "list",
			Usage: "List a token for sale",
			Flags: []cli.Flag{
				contractFlag, tokenFlag, amountFlag, priceFlag,
				&cli.StringFlag{Name: "seller", Usage: "seller address, receives the unassigned sale share"},
				splitsFlag("sale-splits"),
				splitsFlag("royalty-splits"),
				&cli.Uint64Flag{Name: "start-delay", Usage: "seconds before the listing opens"},
				&cli.BoolFlag{Name: "offline-balance", Usage: "set the offline balance flag on marketplaces supporting it"},
			},
			Action: func(c *cli.Context) error {
				saleSplits, err := parseSplits(c.String("sale-splits"))
				if err != nil {
					return err
				}
				royaltySplits, err := parseSplits(c.String("royalty-splits"))
				if err != nil {
					return err
				}

				return writeParams(calls.List(c.Context, marketplace.ListRequest{
					Collection:     c.String("contract"),
					TokenId:        c.Uint64("token"),
					Amount:         c.Uint64("amount"),
					PriceMutez:     c.Uint64("price"),
					Seller:         c.String("seller"),
					SaleSplits:     saleSplits,
					RoyaltySplits:  royaltySplits,
					StartDelay:     c.Uint64("start-delay"),
					OfflineBalance: c.Bool("offline-balance"),
				}))
			},
		},
		{
			Name:  "buy",
			Usage: "Buy from a listing",
			Flags: []cli.Flag{
				contractFlag, tokenFlag, nonceFlag, amountFlag, priceFlag,
				&cli.StringFlag{Name: "seller", Usage: "listing seller", Required: true},
				&cli.BoolFlag{Name: "preflight", Usage: "check the seller still holds the token"},
			},
			Action: func(c *cli.Context) error {
				return writeParams(calls.Buy(c.Context, marketplace.BuyRequest{
					Collection: c.String("contract"),
					TokenId:    c.Uint64("token"),
					Seller:     c.String("seller"),
					Nonce:      c.Uint64("nonce"),
					Amount:     c.Uint64("amount"),
					PriceMutez: c.Uint64("price"),
					Preflight:  c.Bool("preflight"),
				}))
			},
		},
		{
			Name:  "cancel",
			Usage: "Cancel a listing",
			Flags: []cli.Flag{contractFlag, tokenFlag, nonceFlag},
			Action: func(c *cli.Context) error {
				return writeParams(calls.CancelListing(c.Context, marketplace.CancelListingRequest{
					Collection: c.String("contract"),
					TokenId:    c.Uint64("token"),
					Nonce:      c.Uint64("nonce"),
				}))
			},
		},
		{
			Name:  "offer",
			Usage: "Make an offer on a token",
			Flags: []cli.Flag{contractFlag, tokenFlag, amountFlag, priceFlag},
			Action: func(c *cli.Context) error {
				return writeParams(calls.MakeOffer(c.Context, marketplace.MakeOfferRequest{
					Collection: c.String("contract"),
					TokenId:    c.Uint64("token"),
					Amount:     c.Uint64("amount"),
					PriceMutez: c.Uint64("price"),
				}))
			},
		},
		{
			Name:  "accept",
			Usage: "Accept an offer",
			Flags: []cli.Flag{
				contractFlag, tokenFlag, amountFlag, nonceFlag,
				&cli.StringFlag{Name: "offeror", Usage: "offer maker", Required: true},
			},
			Action: func(c *cli.Context) error {
				return writeParams(calls.AcceptOffer(c.Context, marketplace.AcceptOfferRequest{
					Collection: c.String("contract"),
					TokenId:    c.Uint64("token"),
					Amount:     c.Uint64("amount"),
					Nonce:      c.Uint64("nonce"),
					Offeror:    c.String("offeror"),
				}))
			},
		},
		{
			Name:  "withdraw",
			Usage: "Withdraw your offer on a token",
			Flags: []cli.Flag{contractFlag, tokenFlag},
			Action: func(c *cli.Context) error {
				return writeParams(calls.WithdrawOffer(c.Context, marketplace.WithdrawOfferRequest{
					Collection: c.String("contract"),
					TokenId:    c.Uint64("token"),
				}))
			},
		},
	}
}

func parseSplits(raw string) ([]entity.Split, error) {
	if raw == "" {
		return nil, nil
	}

	var splits []entity.Split
	if err := json.Unmarshal([]byte(raw), &splits); err != nil {
		return nil, fmt.Errorf("%w: splits: %s", marketplace.ErrInvalidRequest, err.Error())
	}
	return splits, nil
}

func writeParams(params *entity.TransferParams, err error) error {
	if err != nil {
		return err
	}
	return dev.Write(os.Stdout, params)
}
