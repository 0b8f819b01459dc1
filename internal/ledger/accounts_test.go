package ledger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(b byte) solana.PublicKey {
	return solana.PublicKeyFromBytes(bytes.Repeat([]byte{b}, 32))
}

func encodeAccount(t *testing.T, discriminator []byte, v interface{}) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(v))
	return buf.Bytes()
}

func TestDecodeListing(t *testing.T) {
	data := encodeAccount(t, listingDiscriminator, listingAccount{
		Owner:     key(1),
		NftMint:   key(2),
		Price:     2_000_000_000,
		Status:    uint8(entity.ListingSold),
		CreatedAt: 1_700_000_000,
		Bump:      254,
	})

	listing, err := decodeListing(key(3), data)
	require.NoError(t, err)
	assert.Equal(t, key(3), listing.Address)
	assert.Equal(t, key(1), listing.Owner)
	assert.Equal(t, key(2), listing.NftMint)
	assert.Equal(t, uint64(2_000_000_000), listing.Price)
	assert.Equal(t, entity.ListingSold, listing.Status)
	assert.Equal(t, int64(1_700_000_000), listing.CreatedAt.Unix())
}

func TestDecodeRejectsOtherRecordKinds(t *testing.T) {
	data := encodeAccount(t, escrowDiscriminator, escrowAccount{Listing: key(1), Buyer: key(2)})

	_, err := decodeListing(key(3), data)
	assert.ErrorIs(t, err, ErrAccountMismatch)

	escrow, err := decodeEscrow(key(3), data)
	require.NoError(t, err)
	assert.Equal(t, key(2), escrow.Buyer)
}

func TestDecodeListingRejectsUnknownStatus(t *testing.T) {
	data := encodeAccount(t, listingDiscriminator, listingAccount{Status: 9})

	_, err := decodeListing(key(3), data)
	assert.ErrorIs(t, err, entity.ErrUnknownStatus)
}

func TestDecodeMetadataUriTrimsPadding(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, bin.NewBorshEncoder(buf).Encode(metaplexMetadata{
		Key:  4,
		Mint: key(2),
		Name: "Fire Drake\x00\x00",
		Uri:  "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG\x00\x00\x00",
	}))

	uri, err := decodeMetadataUri(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", uri)
}

func TestDecodeHolding(t *testing.T) {
	data := make([]byte, 165)
	copy(data[0:32], key(5).Bytes())
	copy(data[32:64], key(6).Bytes())
	data[64] = 1

	holding, ok := decodeHolding(key(7), data)
	require.True(t, ok)
	assert.Equal(t, key(5), holding.Mint)
	assert.Equal(t, uint64(1), holding.Amount)

	_, ok = decodeHolding(key(7), data[:40])
	assert.False(t, ok)
}

func TestDecodeProgramError(t *testing.T) {
	err := decodeProgramError(errors.New("Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1770"))

	var pe *ProgramError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeListingNotActive, pe.Code)
	assert.Equal(t, "ListingNotActive", pe.Name)

	plain := errors.New("connection refused")
	assert.Same(t, plain, decodeProgramError(plain))
}

func TestInstructionData(t *testing.T) {
	data, err := instructionData("list", uint64(5))
	require.NoError(t, err)
	require.Len(t, data, discriminatorSize+8)
	assert.Equal(t, instructionDiscriminator("list"), data[:discriminatorSize])
	assert.Equal(t, byte(5), data[discriminatorSize])
}

func TestReleasePrependsBuyerTokenAccount(t *testing.T) {
	b := instructionBuilder{key(9)}
	accounts := ReleaseAccounts{Seller: key(1), Buyer: key(2), Mint: key(3)}

	instrs, err := b.releaseEscrow(accounts)
	require.NoError(t, err)
	assert.Len(t, instrs, 1)

	accounts.CreateBuyerTokenAccount = true
	instrs, err = b.releaseEscrow(accounts)
	require.NoError(t, err)
	require.Len(t, instrs, 2)
	assert.Equal(t, solana.SPLAssociatedTokenAccountProgramID, instrs[0].ProgramID())
	assert.Equal(t, key(9), instrs[1].ProgramID())
}
