package ledgertest

import (
	"context"
	"sort"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

func (l *Ledger) read() func() {
	l.mu.Lock()
	l.reads++
	return l.mu.Unlock
}

func (l *Ledger) Marketplace(_ context.Context, addr solana.PublicKey) (*entity.Marketplace, error) {
	defer l.read()()
	m, ok := l.marketplaces[addr]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &m, nil
}

func (l *Ledger) UserAccount(_ context.Context, addr solana.PublicKey) (*entity.UserAccount, error) {
	defer l.read()()
	u, ok := l.users[addr]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &u, nil
}

func (l *Ledger) Listing(_ context.Context, addr solana.PublicKey) (*entity.Listing, error) {
	defer l.read()()
	listing, ok := l.listings[addr]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &listing, nil
}

func (l *Ledger) Escrow(_ context.Context, addr solana.PublicKey) (*entity.Escrow, error) {
	defer l.read()()
	e, ok := l.escrows[addr]
	if !ok {
		return nil, ledger.ErrAccountNotFound
	}
	return &e, nil
}

func (l *Ledger) Listings(_ context.Context) ([]entity.Listing, error) {
	defer l.read()()
	listings := make([]entity.Listing, 0, len(l.listings))
	for _, listing := range l.listings {
		listings = append(listings, listing)
	}
	sort.Slice(listings, func(i, j int) bool {
		return listings[i].Address.String() < listings[j].Address.String()
	})
	return listings, nil
}

func (l *Ledger) AccountExists(_ context.Context, addr solana.PublicKey) (bool, error) {
	defer l.read()()
	if l.tokenAccts[addr] {
		return true, nil
	}
	if _, ok := l.listings[addr]; ok {
		return true, nil
	}
	if _, ok := l.escrows[addr]; ok {
		return true, nil
	}
	if _, ok := l.users[addr]; ok {
		return true, nil
	}
	_, ok := l.marketplaces[addr]
	return ok, nil
}

func (l *Ledger) Holdings(_ context.Context, owner solana.PublicKey) ([]entity.Holding, error) {
	defer l.read()()
	holdings := make([]entity.Holding, 0)
	for k, amount := range l.tokens {
		if k.owner.Equals(owner) && amount > 0 {
			holdings = append(holdings, entity.Holding{
				Mint:         k.mint,
				TokenAccount: l.deriver.TokenAccount(owner, k.mint),
				Amount:       amount,
			})
		}
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].Mint.String() < holdings[j].Mint.String()
	})
	return holdings, nil
}

func (l *Ledger) MetadataUri(_ context.Context, mint solana.PublicKey) (string, error) {
	defer l.read()()
	uri, ok := l.metadataUris[mint]
	if !ok {
		return "", ledger.ErrMetadataUnavailable
	}
	return uri, nil
}
