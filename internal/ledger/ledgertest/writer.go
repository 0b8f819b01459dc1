package ledgertest

import (
	"context"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
)

func (l *Ledger) InitializeMarketplace(ctx context.Context, w ledger.Wallet, a ledger.InitializeAccounts, feeBps uint16) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpInitialize)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	authority := w.PublicKey()
	marketplace := l.deriver.Marketplace(authority)
	if err := firstErr(
		expect(a.Authority, authority),
		expect(a.Marketplace, marketplace),
		expect(a.Treasury, l.deriver.Treasury(marketplace)),
	); err != nil {
		return solana.Signature{}, err
	}
	if _, ok := l.marketplaces[marketplace]; ok {
		return solana.Signature{}, programErr(ledger.CodeAccountInUse)
	}

	l.marketplaces[marketplace] = entity.Marketplace{
		Address:   marketplace,
		Authority: authority,
		Treasury:  a.Treasury,
		FeeBps:    feeBps,
	}

	return signature(OpInitialize, l.calls[OpInitialize]), nil
}

func (l *Ledger) RegisterUser(ctx context.Context, w ledger.Wallet, a ledger.RegisterAccounts) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpRegister)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	wallet := w.PublicKey()
	userAddr := l.deriver.UserAccount(wallet)
	if err := firstErr(expect(a.Wallet, wallet), expect(a.UserAccount, userAddr)); err != nil {
		return solana.Signature{}, err
	}
	if _, ok := l.users[userAddr]; ok {
		return solana.Signature{}, programErr(ledger.CodeAccountInUse)
	}

	l.users[userAddr] = entity.UserAccount{Address: userAddr, Wallet: wallet}

	return signature(OpRegister, l.calls[OpRegister]), nil
}

func (l *Ledger) List(ctx context.Context, w ledger.Wallet, a ledger.ListAccounts, price uint64) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpList)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	owner := w.PublicKey()
	listingAddr := l.deriver.Listing(a.Marketplace, a.Mint)
	userAddr := l.deriver.UserAccount(owner)
	if err := firstErr(
		expect(a.Owner, owner),
		expect(a.Listing, listingAddr),
		expect(a.Vault, l.deriver.Vault(listingAddr, a.Mint)),
		expect(a.OwnerTokenAccount, l.deriver.TokenAccount(owner, a.Mint)),
		expect(a.UserAccount, userAddr),
	); err != nil {
		return solana.Signature{}, err
	}
	if _, ok := l.marketplaces[a.Marketplace]; !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	user, ok := l.users[userAddr]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	if price == 0 {
		return solana.Signature{}, programErr(ledger.CodeInvalidPrice)
	}
	if existing, ok := l.listings[listingAddr]; ok {
		_, escrowed := l.escrows[l.deriver.Escrow(listingAddr)]
		if existing.Status == entity.ListingActive || escrowed {
			return solana.Signature{}, programErr(ledger.CodeAccountInUse)
		}
	}
	if l.tokens[tokenKey{owner, a.Mint}] == 0 {
		return solana.Signature{}, ErrNoAsset
	}

	l.tokens[tokenKey{owner, a.Mint}]--
	l.tokens[tokenKey{listingAddr, a.Mint}] = 1
	l.tokenAccts[a.Vault] = true
	l.listings[listingAddr] = entity.Listing{
		Address:   listingAddr,
		Owner:     owner,
		NftMint:   a.Mint,
		Price:     price,
		Status:    entity.ListingActive,
		CreatedAt: l.now().UTC(),
	}
	user.Listed++
	l.users[userAddr] = user

	return signature(OpList, l.calls[OpList]), nil
}

func (l *Ledger) Delist(ctx context.Context, w ledger.Wallet, a ledger.DelistAccounts) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpDelist)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	owner := w.PublicKey()
	listingAddr := l.deriver.Listing(a.Marketplace, a.Mint)
	if err := firstErr(
		expect(a.Owner, owner),
		expect(a.Listing, listingAddr),
		expect(a.Vault, l.deriver.Vault(listingAddr, a.Mint)),
		expect(a.OwnerTokenAccount, l.deriver.TokenAccount(owner, a.Mint)),
	); err != nil {
		return solana.Signature{}, err
	}
	listing, ok := l.listings[listingAddr]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	if listing.Status != entity.ListingActive {
		return solana.Signature{}, programErr(ledger.CodeListingNotActive)
	}
	if !listing.Owner.Equals(owner) {
		return solana.Signature{}, programErr(ledger.CodeUnauthorized)
	}

	delete(l.tokens, tokenKey{listingAddr, a.Mint})
	delete(l.tokenAccts, a.Vault)
	l.tokens[tokenKey{owner, a.Mint}]++
	l.tokenAccts[a.OwnerTokenAccount] = true
	delete(l.listings, listingAddr)

	return signature(OpDelist, l.calls[OpDelist]), nil
}

func (l *Ledger) Purchase(ctx context.Context, w ledger.Wallet, a ledger.PurchaseAccounts) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpPurchase)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	buyer := w.PublicKey()
	buyerAddr := l.deriver.UserAccount(buyer)
	if err := firstErr(
		expect(a.Buyer, buyer),
		expect(a.Escrow, l.deriver.Escrow(a.Listing)),
		expect(a.UserAccount, buyerAddr),
	); err != nil {
		return solana.Signature{}, err
	}
	listing, ok := l.listings[a.Listing]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	buyerAccount, ok := l.users[buyerAddr]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	// compare-and-set on the status field
	if listing.Status != entity.ListingActive {
		return solana.Signature{}, programErr(ledger.CodeListingNotActive)
	}
	if listing.Owner.Equals(buyer) {
		return solana.Signature{}, programErr(ledger.CodeSelfPurchase)
	}
	if _, ok := l.escrows[a.Escrow]; ok {
		return solana.Signature{}, programErr(ledger.CodeAccountInUse)
	}
	if l.lamports[buyer] < listing.Price {
		return solana.Signature{}, ErrInsufficientLamports
	}

	l.lamports[buyer] -= listing.Price
	listing.Status = entity.ListingSold
	l.listings[a.Listing] = listing
	l.escrows[a.Escrow] = entity.Escrow{
		Address:   a.Escrow,
		Listing:   a.Listing,
		Buyer:     buyer,
		Amount:    listing.Price,
		CreatedAt: l.now().UTC(),
	}
	buyerAccount.Bought++
	l.users[buyerAddr] = buyerAccount
	sellerAddr := l.deriver.UserAccount(listing.Owner)
	if seller, ok := l.users[sellerAddr]; ok {
		seller.Sold++
		l.users[sellerAddr] = seller
	}

	return signature(OpPurchase, l.calls[OpPurchase]), nil
}

func (l *Ledger) ReleaseEscrow(ctx context.Context, w ledger.Wallet, a ledger.ReleaseAccounts) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpRelease)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	seller := w.PublicKey()
	if err := firstErr(
		expect(a.Seller, seller),
		expect(a.Escrow, l.deriver.Escrow(a.Listing)),
		expect(a.Vault, l.deriver.Vault(a.Listing, a.Mint)),
		expect(a.BuyerTokenAccount, l.deriver.TokenAccount(a.Buyer, a.Mint)),
	); err != nil {
		return solana.Signature{}, err
	}
	escrow, ok := l.escrows[a.Escrow]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	listing, ok := l.listings[a.Listing]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	if !listing.Owner.Equals(seller) {
		return solana.Signature{}, programErr(ledger.CodeUnauthorized)
	}
	if !escrow.Buyer.Equals(a.Buyer) {
		return solana.Signature{}, programErr(ledger.CodeEscrowMismatch)
	}
	if a.CreateBuyerTokenAccount {
		if l.tokenAccts[a.BuyerTokenAccount] {
			return solana.Signature{}, programErr(ledger.CodeAccountInUse)
		}
		l.tokenAccts[a.BuyerTokenAccount] = true
	}
	if !l.tokenAccts[a.BuyerTokenAccount] {
		return solana.Signature{}, ErrBuyerTokenAccount
	}

	fee := uint64(0)
	if m, ok := l.marketplaces[a.Marketplace]; ok {
		fee = escrow.Amount * uint64(m.FeeBps) / 10_000
		l.lamports[m.Treasury] += fee
	}
	l.lamports[seller] += escrow.Amount - fee

	delete(l.tokens, tokenKey{a.Listing, a.Mint})
	delete(l.tokenAccts, a.Vault)
	l.tokens[tokenKey{a.Buyer, a.Mint}]++
	delete(l.escrows, a.Escrow)
	// the listing keeps its Sold status until it is settled and removed

	return signature(OpRelease, l.calls[OpRelease]), nil
}

func (l *Ledger) Refund(ctx context.Context, w ledger.Wallet, a ledger.RefundAccounts) (solana.Signature, error) {
	if err := signWith(ctx, w); err != nil {
		return solana.Signature{}, err
	}
	unlock, err := l.begin(OpRefund)
	if err != nil {
		return solana.Signature{}, err
	}
	defer unlock()

	caller := w.PublicKey()
	if err := firstErr(expect(a.Caller, caller), expect(a.Escrow, l.deriver.Escrow(a.Listing))); err != nil {
		return solana.Signature{}, err
	}
	escrow, ok := l.escrows[a.Escrow]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	listing, ok := l.listings[a.Listing]
	if !ok {
		return solana.Signature{}, programErr(ledger.CodeAccountNotInitialized)
	}
	authorized := listing.Owner.Equals(caller)
	if m, ok := l.marketplaces[a.Marketplace]; ok && m.Authority.Equals(caller) {
		authorized = true
	}
	if !authorized {
		return solana.Signature{}, programErr(ledger.CodeUnauthorized)
	}

	l.lamports[escrow.Buyer] += escrow.Amount
	delete(l.escrows, a.Escrow)
	listing.Status = entity.ListingActive
	l.listings[a.Listing] = listing

	buyerAddr := l.deriver.UserAccount(escrow.Buyer)
	if buyer, ok := l.users[buyerAddr]; ok && buyer.Bought > 0 {
		buyer.Bought--
		l.users[buyerAddr] = buyer
	}
	sellerAddr := l.deriver.UserAccount(listing.Owner)
	if seller, ok := l.users[sellerAddr]; ok && seller.Sold > 0 {
		seller.Sold--
		l.users[sellerAddr] = seller
	}

	return signature(OpRefund, l.calls[OpRefund]), nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
