package main

import (
	"os"

	"github.com/ZilDuck/solana-card-market/internal/config"
	"github.com/ZilDuck/solana-card-market/internal/config/di"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var container *di.Container

func main() {
	config.Init("marketctl")

	var err error
	container, err = di.NewContainer()
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer container.Delete()

	app := &cli.App{
		Name:  "marketctl",
		Usage: "trade cards on the marketplace program",
		Commands: []*cli.Command{
			{
				Name:   "init-marketplace",
				Usage:  "create the marketplace owned by the configured keypair",
				Action: initMarketplace,
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "fee", Value: uint(config.Get().FeeBps), Usage: "fee in basis points"},
				},
			},
			{
				Name:   "catalog",
				Usage:  "show every live listing",
				Action: showCatalog,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "rarity", Usage: "Common, Uncommon, Rare, Epic or Legendary"},
					&cli.StringSliceFlag{Name: "collection", Usage: "Alpha, Beta, Gamma or Delta"},
					&cli.StringSliceFlag{Name: "status", Usage: "Active or Sold"},
				},
			},
			{
				Name:   "collection",
				Usage:  "show the cards owned or listed by the configured keypair",
				Action: showCollection,
			},
			{
				Name:   "list",
				Usage:  "list a card for sale",
				Action: list,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "price", Required: true, Usage: "price in SOL, e.g. 2.5"},
				},
			},
			{
				Name:   "delist",
				Usage:  "take an active listing off sale",
				Action: delist,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listing", Required: true},
				},
			},
			{
				Name:   "list-many",
				Usage:  "list several cards at one price, one transaction each, stopping at the first failure",
				Action: listMany,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "mint", Required: true},
					&cli.StringFlag{Name: "price", Required: true},
				},
			},
			{
				Name:   "delist-many",
				Usage:  "delist several cards, stopping at the first failure",
				Action: delistMany,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "mint", Required: true},
				},
			},
			{
				Name:   "purchase",
				Usage:  "buy a listing into escrow",
				Action: purchase,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listing", Required: true},
					&cli.StringFlag{Name: "email"},
					&cli.StringFlag{Name: "handle"},
				},
			},
			{
				Name:   "release",
				Usage:  "release escrow to the buyer after shipping",
				Action: release,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listing", Required: true},
				},
			},
			{
				Name:   "refund",
				Usage:  "refund the buyer of a sold listing (seller or marketplace authority)",
				Action: refund,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "listing", Required: true},
				},
			},
			{
				Name:   "orders",
				Usage:  "show order records of the configured keypair",
				Action: showOrders,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "role", Usage: "buyer or seller"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Fatal("marketctl failed")
	}
}
