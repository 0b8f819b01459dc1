package address

import (
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

var (
	marketplaceSeed = []byte("marketplace")
	treasurySeed    = []byte("treasury")
	userAccountSeed = []byte("user_account")
	escrowSeed      = []byte("escrow")
	metadataSeed    = []byte("metadata")
)

// Derive returns the program address for the given seeds. Every address owned by the
// marketplace program or the metadata program is computed here and nowhere else.
//
// FindProgramAddress only fails when no bump in [0,255] yields an off-curve point, or when a
// seed exceeds 32 bytes. Neither can happen for the seed schemas below, so the error is
// treated as a programming fault.
func Derive(seeds [][]byte, program solana.PublicKey) solana.PublicKey {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("program", program.String())).Panic("Address: derivation failed")
	}

	return addr
}

// Deriver binds the seed schemas to the marketplace and metadata programs.
type Deriver struct {
	Program         solana.PublicKey
	MetadataProgram solana.PublicKey
}

func NewDeriver(program, metadataProgram solana.PublicKey) Deriver {
	return Deriver{Program: program, MetadataProgram: metadataProgram}
}

func (d Deriver) Marketplace(authority solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{marketplaceSeed, authority.Bytes()}, d.Program)
}

func (d Deriver) Treasury(marketplace solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{treasurySeed, marketplace.Bytes()}, d.Program)
}

func (d Deriver) UserAccount(wallet solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{userAccountSeed, wallet.Bytes()}, d.Program)
}

func (d Deriver) Listing(marketplace, mint solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{marketplace.Bytes(), mint.Bytes()}, d.Program)
}

func (d Deriver) Escrow(listing solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{escrowSeed, listing.Bytes()}, d.Program)
}

func (d Deriver) AssetMetadata(mint solana.PublicKey) solana.PublicKey {
	return Derive([][]byte{metadataSeed, d.MetadataProgram.Bytes(), mint.Bytes()}, d.MetadataProgram)
}

// TokenAccount is the associated token account of owner for mint.
func (d Deriver) TokenAccount(owner, mint solana.PublicKey) solana.PublicKey {
	return Derive(
		[][]byte{owner.Bytes(), solana.TokenProgramID.Bytes(), mint.Bytes()},
		solana.SPLAssociatedTokenAccountProgramID,
	)
}

// Vault holds the asset while it is listed or escrowed. It is owned by the listing.
func (d Deriver) Vault(listing, mint solana.PublicKey) solana.PublicKey {
	return d.TokenAccount(listing, mint)
}
