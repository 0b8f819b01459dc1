package ledger

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const discriminatorSize = 8

func accountDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("account:" + name))
	return sum[:discriminatorSize]
}

var (
	marketplaceDiscriminator = accountDiscriminator("Marketplace")
	userAccountDiscriminator = accountDiscriminator("UserAccount")
	listingDiscriminator     = accountDiscriminator("Listing")
	escrowDiscriminator      = accountDiscriminator("Escrow")
)

type marketplaceAccount struct {
	Authority solana.PublicKey
	Treasury  solana.PublicKey
	FeeBps    uint16
	Bump      uint8
}

type userAccountData struct {
	Wallet solana.PublicKey
	Listed uint64
	Sold   uint64
	Bought uint64
	Bump   uint8
}

type listingAccount struct {
	Owner     solana.PublicKey
	NftMint   solana.PublicKey
	Price     uint64
	Status    uint8
	CreatedAt int64
	Bump      uint8
}

type escrowAccount struct {
	Listing   solana.PublicKey
	Buyer     solana.PublicKey
	Amount    uint64
	CreatedAt int64
	Bump      uint8
}

// metaplexMetadata is the prefix of a token metadata account we need.
type metaplexMetadata struct {
	Key             uint8
	UpdateAuthority solana.PublicKey
	Mint            solana.PublicKey
	Name            string
	Symbol          string
	Uri             string
}

func decodeAccount(data []byte, discriminator []byte, into interface{}) error {
	if len(data) < discriminatorSize || !bytes.Equal(data[:discriminatorSize], discriminator) {
		return ErrAccountMismatch
	}

	if err := bin.NewBorshDecoder(data[discriminatorSize:]).Decode(into); err != nil {
		return fmt.Errorf("failed to decode account: %w", err)
	}

	return nil
}

func decodeMarketplace(addr solana.PublicKey, data []byte) (*entity.Marketplace, error) {
	var raw marketplaceAccount
	if err := decodeAccount(data, marketplaceDiscriminator, &raw); err != nil {
		return nil, err
	}

	return &entity.Marketplace{
		Address:   addr,
		Authority: raw.Authority,
		Treasury:  raw.Treasury,
		FeeBps:    raw.FeeBps,
	}, nil
}

func decodeUserAccount(addr solana.PublicKey, data []byte) (*entity.UserAccount, error) {
	var raw userAccountData
	if err := decodeAccount(data, userAccountDiscriminator, &raw); err != nil {
		return nil, err
	}

	return &entity.UserAccount{
		Address: addr,
		Wallet:  raw.Wallet,
		Listed:  raw.Listed,
		Sold:    raw.Sold,
		Bought:  raw.Bought,
	}, nil
}

func decodeListing(addr solana.PublicKey, data []byte) (*entity.Listing, error) {
	var raw listingAccount
	if err := decodeAccount(data, listingDiscriminator, &raw); err != nil {
		return nil, err
	}

	status := entity.ListingStatus(raw.Status)
	if status > entity.ListingUnlisted {
		return nil, fmt.Errorf("%w: %d", entity.ErrUnknownStatus, raw.Status)
	}

	return &entity.Listing{
		Address:   addr,
		Owner:     raw.Owner,
		NftMint:   raw.NftMint,
		Price:     raw.Price,
		Status:    status,
		CreatedAt: time.Unix(raw.CreatedAt, 0).UTC(),
	}, nil
}

func decodeEscrow(addr solana.PublicKey, data []byte) (*entity.Escrow, error) {
	var raw escrowAccount
	if err := decodeAccount(data, escrowDiscriminator, &raw); err != nil {
		return nil, err
	}

	return &entity.Escrow{
		Address:   addr,
		Listing:   raw.Listing,
		Buyer:     raw.Buyer,
		Amount:    raw.Amount,
		CreatedAt: time.Unix(raw.CreatedAt, 0).UTC(),
	}, nil
}

func decodeMetadataUri(data []byte) (string, error) {
	var md metaplexMetadata
	if err := bin.NewBorshDecoder(data).Decode(&md); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMetadataUnavailable, err)
	}

	uri := strings.TrimRight(md.Uri, "\x00")
	if uri == "" {
		return "", ErrMetadataUnavailable
	}

	return uri, nil
}

// SPL token account layout: mint(32) owner(32) amount(u64) ...
const tokenAccountMinSize = 72

func decodeHolding(tokenAccount solana.PublicKey, data []byte) (entity.Holding, bool) {
	if len(data) < tokenAccountMinSize {
		return entity.Holding{}, false
	}

	dec := bin.NewBinDecoder(data[64:72])
	amount, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return entity.Holding{}, false
	}

	return entity.Holding{
		Mint:         solana.PublicKeyFromBytes(data[0:32]),
		TokenAccount: tokenAccount,
		Amount:       amount,
	}, true
}
