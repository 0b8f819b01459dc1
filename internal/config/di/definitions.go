package di

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/catalog"
	"github.com/ZilDuck/solana-card-market/internal/collection"
	"github.com/ZilDuck/solana-card-market/internal/config"
	"github.com/ZilDuck/solana-card-market/internal/event"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/ZilDuck/solana-card-market/internal/market"
	"github.com/ZilDuck/solana-card-market/internal/metadata"
	"github.com/ZilDuck/solana-card-market/internal/orders"
	"github.com/ZilDuck/solana-card-market/internal/session"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/patrickmn/go-cache"
	"github.com/sarulabs/di/v2"
	"golang.org/x/time/rate"
)

var ErrOrdersDisabled = errors.New("ORDERS_URL is not set")

var Definitions = []di.Def{
	{
		Name: "rpc",
		Build: func(ctn di.Container) (interface{}, error) {
			return rpc.New(config.Get().Solana.RpcUrl), nil
		},
		Close: func(obj interface{}) error {
			return obj.(*rpc.Client).Close()
		},
	},
	{
		Name: "deriver",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Solana
			programId, err := solana.PublicKeyFromBase58(cfg.ProgramId)
			if err != nil {
				return nil, fmt.Errorf("SOLANA_PROGRAM_ID: %w", err)
			}
			metadataProgramId, err := solana.PublicKeyFromBase58(cfg.MetadataProgramId)
			if err != nil {
				return nil, fmt.Errorf("SOLANA_METADATA_PROGRAM_ID: %w", err)
			}
			return address.NewDeriver(programId, metadataProgramId), nil
		},
	},
	{
		Name: "authority",
		Build: func(ctn di.Container) (interface{}, error) {
			authority, err := solana.PublicKeyFromBase58(config.Get().Solana.Authority)
			if err != nil {
				return nil, fmt.Errorf("SOLANA_AUTHORITY: %w", err)
			}
			return authority, nil
		},
	},
	{
		Name: "program",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Solana
			return ledger.NewProgram(
				ctn.Get("rpc").(*rpc.Client),
				ctn.Get("deriver").(address.Deriver),
				rpc.CommitmentType(cfg.Commitment),
				cfg.ConfirmRetries,
				cfg.ConfirmInterval,
			), nil
		},
	},
	{
		Name: "wallet",
		Build: func(ctn di.Container) (interface{}, error) {
			return ledger.NewKeypairWallet(config.Get().Solana.KeypairPath)
		},
	},
	{
		Name: "cache",
		Build: func(ctn di.Container) (interface{}, error) {
			ttl := config.Get().Metadata.CacheTtl
			return cache.New(ttl, 2*ttl), nil
		},
	},
	{
		Name: "metadata.client",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Metadata
			client := retryablehttp.NewClient()
			client.Logger = nil
			client.RetryMax = cfg.Retries
			client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
			return client, nil
		},
	},
	{
		Name: "metadata.resolver",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Metadata
			limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Concurrency)
			return metadata.NewResolver(
				ctn.Get("program").(ledger.Program),
				ctn.Get("metadata.client").(*retryablehttp.Client),
				ctn.Get("cache").(*cache.Cache),
				limiter,
				metadata.Options{
					IpfsHosts:        cfg.IpfsHosts,
					Concurrency:      cfg.Concurrency,
					PlaceholderImage: cfg.PlaceholderImage,
				},
			), nil
		},
	},
	{
		Name: "orders.client",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Orders
			if cfg.Url == "" {
				return nil, ErrOrdersDisabled
			}
			client := retryablehttp.NewClient()
			client.Logger = nil
			client.RetryMax = 2
			client.HTTPClient = &http.Client{Timeout: cfg.Timeout}
			return orders.NewClient(cfg.Url, client), nil
		},
	},
	{
		Name: "orders.store",
		Build: func(ctn di.Container) (interface{}, error) {
			db, err := orders.OpenSqlite(config.Get().Orders.DbPath)
			if err != nil {
				return nil, err
			}
			return orders.NewStore(db)
		},
	},
	{
		Name: "listing.manager",
		Build: func(ctn di.Container) (interface{}, error) {
			return market.NewListingManager(
				ctn.Get("program").(ledger.Program),
				ctn.Get("deriver").(address.Deriver),
				ctn.Get("authority").(solana.PublicKey),
			), nil
		},
	},
	{
		Name: "escrow.orchestrator",
		Build: func(ctn di.Container) (interface{}, error) {
			var writer market.OrderWriter
			if client, err := ctn.SafeGet("orders.client"); err == nil {
				writer = client.(orders.Client)
			}
			return market.NewEscrowOrchestrator(
				ctn.Get("program").(ledger.Program),
				ctn.Get("deriver").(address.Deriver),
				writer,
				ctn.Get("authority").(solana.PublicKey),
			), nil
		},
	},
	{
		Name: "catalog.syncer",
		Build: func(ctn di.Container) (interface{}, error) {
			return catalog.NewSyncer(
				ctn.Get("program").(ledger.Program),
				ctn.Get("deriver").(address.Deriver),
				ctn.Get("metadata.resolver").(metadata.Resolver),
				config.Get().Metadata.Concurrency,
			), nil
		},
	},
	{
		Name: "collection.syncer",
		Build: func(ctn di.Container) (interface{}, error) {
			cfg := config.Get().Sync
			return collection.NewSyncer(
				ctn.Get("program").(ledger.Program),
				ctn.Get("deriver").(address.Deriver),
				ctn.Get("metadata.resolver").(metadata.Resolver),
				ctn.Get("listing.manager").(market.ListingManager),
				collection.RetryPolicy{Attempts: cfg.Attempts, Backoff: cfg.Backoff},
			), nil
		},
	},
	{
		Name: "events",
		Build: func(ctn di.Container) (interface{}, error) {
			return event.NewManager(), nil
		},
		Close: func(obj interface{}) error {
			obj.(*event.Manager).Close()
			return nil
		},
	},
	{
		Name: "session",
		Build: func(ctn di.Container) (interface{}, error) {
			var lister session.OrderLister
			if client, err := ctn.SafeGet("orders.client"); err == nil {
				lister = client.(orders.Client)
			}
			return session.New(
				ctn.Get("wallet").(ledger.Wallet),
				session.NewStore(),
				session.Deps{
					Listings:   ctn.Get("listing.manager").(market.ListingManager),
					Escrows:    ctn.Get("escrow.orchestrator").(market.EscrowOrchestrator),
					Catalog:    ctn.Get("catalog.syncer").(catalog.Syncer),
					Collection: ctn.Get("collection.syncer").(collection.Syncer),
					Orders:     lister,
					Events:     ctn.Get("events").(*event.Manager),
				},
			), nil
		},
	},
}

// Container exposes typed getters over the definitions.
type Container struct {
	di.Container
}

func NewContainer() (*Container, error) {
	builder, err := di.NewBuilder()
	if err != nil {
		return nil, err
	}
	if err := builder.Add(Definitions...); err != nil {
		return nil, err
	}

	return &Container{builder.Build()}, nil
}

func (c *Container) GetProgram() ledger.Program {
	return c.Get("program").(ledger.Program)
}

func (c *Container) GetDeriver() address.Deriver {
	return c.Get("deriver").(address.Deriver)
}

func (c *Container) GetWallet() ledger.Wallet {
	return c.Get("wallet").(ledger.Wallet)
}

func (c *Container) GetOrderStore() orders.Store {
	return c.Get("orders.store").(orders.Store)
}

func (c *Container) GetSession() *session.Session {
	return c.Get("session").(*session.Session)
}
