package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ZilDuck/solana-card-market/internal/catalog"
	"github.com/ZilDuck/solana-card-market/internal/collection"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/failure"
	"github.com/ZilDuck/solana-card-market/internal/market"
	"github.com/ZilDuck/solana-card-market/internal/session"
	"github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func synced(c *cli.Context) (*session.Session, error) {
	sess := container.GetSession()
	if err := sess.Sync(c.Context); err != nil {
		return nil, explain(err)
	}
	return sess, nil
}

func initMarketplace(c *cli.Context) error {
	sig, err := market.InitializeMarketplace(c.Context, container.GetProgram(), container.GetDeriver(), container.GetWallet(), uint16(c.Uint("fee")))
	if err != nil {
		return explain(failure.Classify(err))
	}
	fmt.Println("marketplace initialized:", sig)
	return nil
}

func showCatalog(c *cli.Context) error {
	sess, err := synced(c)
	if err != nil {
		return err
	}

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	sess.Store().SetFilter(filter)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LISTING\tNAME\tPRICE (SOL)\tSTATUS\tRARITY\tCOLLECTION\tSLUG")
	for _, card := range sess.Store().Cards() {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			card.Listing.Address, card.Metadata.Name, card.Listing.PriceSol(), card.Listing.Status,
			card.Rarity, card.Collection, card.Slug())
	}
	return w.Flush()
}

func showCollection(c *cli.Context) error {
	sess, err := synced(c)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MINT\tNAME\tSTATUS\tLISTING")
	for _, item := range sess.Store().Collection().Items {
		listing := "-"
		if item.Listing != nil {
			listing = item.Listing.Address.String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.Mint, item.Metadata.Name, item.Status, listing)
	}
	return w.Flush()
}

func list(c *cli.Context) error {
	mint, err := solana.PublicKeyFromBase58(c.String("mint"))
	if err != nil {
		return fmt.Errorf("invalid mint: %w", err)
	}
	price, err := entity.ParseSol(c.String("price"))
	if err != nil {
		return err
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	res, err := sess.List(c.Context, mint, price)
	if err != nil {
		return explain(err)
	}
	fmt.Println("listed:", res.Listing, res.Signature)
	return nil
}

func delist(c *cli.Context) error {
	listing, err := solana.PublicKeyFromBase58(c.String("listing"))
	if err != nil {
		return fmt.Errorf("invalid listing: %w", err)
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	sig, err := sess.Delist(c.Context, listing)
	if err != nil {
		return explain(err)
	}
	fmt.Println("delisted:", sig)
	return nil
}

func listMany(c *cli.Context) error {
	mints, err := parseKeys(c.StringSlice("mint"))
	if err != nil {
		return err
	}
	price, err := entity.ParseSol(c.String("price"))
	if err != nil {
		return err
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	sigs, err := sess.ListMany(c.Context, mints, price)
	for i, sig := range sigs {
		fmt.Println("listed:", mints[i], sig)
	}
	return explain(err)
}

func delistMany(c *cli.Context) error {
	mints, err := parseKeys(c.StringSlice("mint"))
	if err != nil {
		return err
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	sigs, err := sess.DelistMany(c.Context, mints)
	for i, sig := range sigs {
		fmt.Println("delisted:", mints[i], sig)
	}
	return explain(err)
}

func purchase(c *cli.Context) error {
	listing, err := solana.PublicKeyFromBase58(c.String("listing"))
	if err != nil {
		return fmt.Errorf("invalid listing: %w", err)
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	res, err := sess.Purchase(c.Context, listing, entity.Contact{Email: c.String("email"), Handle: c.String("handle")})
	if err != nil {
		return explain(err)
	}
	fmt.Println("purchased into escrow:", res.Escrow, res.Signature)
	if res.OrderErr != nil {
		fmt.Println("warning: the purchase is confirmed but the order record was not saved:", res.OrderErr)
	}
	return nil
}

func release(c *cli.Context) error {
	listing, err := solana.PublicKeyFromBase58(c.String("listing"))
	if err != nil {
		return fmt.Errorf("invalid listing: %w", err)
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	res, err := sess.Release(c.Context, listing)
	if err != nil {
		return explain(err)
	}
	fmt.Println("escrow released to", res.Buyer, res.Signature)
	if res.OrderErr != nil {
		fmt.Println("warning: the release is confirmed but the order record was not updated:", res.OrderErr)
	}
	return nil
}

func refund(c *cli.Context) error {
	listing, err := solana.PublicKeyFromBase58(c.String("listing"))
	if err != nil {
		return fmt.Errorf("invalid listing: %w", err)
	}
	sess, err := synced(c)
	if err != nil {
		return err
	}

	res, err := sess.Refund(c.Context, listing)
	if err != nil {
		return explain(err)
	}
	fmt.Println("refunded", entity.FromLamports(res.Amount), "SOL to", res.Buyer, res.Signature)
	return nil
}

func showOrders(c *cli.Context) error {
	orders, err := container.GetSession().Orders(c.Context, entity.OrderRole(c.String("role")))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "LISTING\tBUYER\tSELLER\tPRICE (SOL)\tSTATUS")
	for _, o := range orders {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.ListingAddress, o.BuyerWallet, o.SellerWallet, entity.FromLamports(o.Price), o.Status)
	}
	return w.Flush()
}

// explain adds the retry advice of a classified failure.
func explain(err error) error {
	if err == nil {
		return nil
	}

	var batchErr *collection.BatchError
	if errors.As(err, &batchErr) {
		return fmt.Errorf("%w (%d committed, sync before continuing)", err, len(batchErr.Committed))
	}

	var f *failure.Failure
	if !errors.As(err, &f) {
		return err
	}
	return fmt.Errorf("%w (%s)", err, f.Retry)
}

func parseKeys(values []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, len(values))
	for i, v := range values {
		key, err := solana.PublicKeyFromBase58(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", v, err)
		}
		keys[i] = key
	}
	return keys, nil
}

func parseFilter(c *cli.Context) (catalog.Filter, error) {
	var f catalog.Filter

	rarities := []entity.Rarity{entity.RarityCommon, entity.RarityUncommon, entity.RarityRare, entity.RarityEpic, entity.RarityLegendary}
	for _, name := range c.StringSlice("rarity") {
		found := false
		for _, r := range rarities {
			if strings.EqualFold(string(r), name) {
				f.Rarities = append(f.Rarities, r)
				found = true
			}
		}
		if !found {
			return f, fmt.Errorf("unknown rarity %q", name)
		}
	}

	for _, name := range c.StringSlice("collection") {
		found := false
		for i := 0; i < entity.CollectionCount; i++ {
			if strings.EqualFold(entity.Collection(i).String(), name) {
				f.Collections = append(f.Collections, entity.Collection(i))
				found = true
			}
		}
		if !found {
			return f, fmt.Errorf("unknown collection %q", name)
		}
	}

	for _, s := range c.StringSlice("status") {
		status, err := entity.ParseListingStatus(s)
		if err != nil {
			return f, err
		}
		f.Statuses = append(f.Statuses, status)
	}

	return f, nil
}
