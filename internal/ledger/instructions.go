package ledger

import (
	"bytes"
	"crypto/sha256"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

func instructionDiscriminator(name string) []byte {
	sum := sha256.Sum256([]byte("global:" + name))
	return sum[:discriminatorSize]
}

func instructionData(name string, args ...interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(instructionDiscriminator(name))

	enc := bin.NewBorshEncoder(buf)
	for _, arg := range args {
		if err := enc.Encode(arg); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

func writable(pk solana.PublicKey) *solana.AccountMeta { return solana.NewAccountMeta(pk, true, false) }
func readonly(pk solana.PublicKey) *solana.AccountMeta { return solana.NewAccountMeta(pk, false, false) }
func signer(pk solana.PublicKey) *solana.AccountMeta   { return solana.NewAccountMeta(pk, true, true) }

type instructionBuilder struct {
	programId solana.PublicKey
}

func (b instructionBuilder) build(name string, accounts solana.AccountMetaSlice, args ...interface{}) (solana.Instruction, error) {
	data, err := instructionData(name, args...)
	if err != nil {
		return nil, err
	}

	return solana.NewInstruction(b.programId, accounts, data), nil
}

func (b instructionBuilder) initializeMarketplace(a InitializeAccounts, feeBps uint16) (solana.Instruction, error) {
	return b.build("initialize_marketplace", solana.AccountMetaSlice{
		signer(a.Authority),
		writable(a.Marketplace),
		writable(a.Treasury),
		readonly(solana.SystemProgramID),
	}, feeBps)
}

func (b instructionBuilder) registerUser(a RegisterAccounts) (solana.Instruction, error) {
	return b.build("register_user", solana.AccountMetaSlice{
		signer(a.Wallet),
		writable(a.UserAccount),
		readonly(solana.SystemProgramID),
	})
}

func (b instructionBuilder) list(a ListAccounts, price uint64) (solana.Instruction, error) {
	return b.build("list", solana.AccountMetaSlice{
		signer(a.Owner),
		readonly(a.Marketplace),
		writable(a.Listing),
		writable(a.Vault),
		writable(a.OwnerTokenAccount),
		readonly(a.Mint),
		writable(a.UserAccount),
		readonly(solana.TokenProgramID),
		readonly(solana.SPLAssociatedTokenAccountProgramID),
		readonly(solana.SystemProgramID),
		readonly(solana.SysVarRentPubkey),
	}, price)
}

func (b instructionBuilder) delist(a DelistAccounts) (solana.Instruction, error) {
	return b.build("delist", solana.AccountMetaSlice{
		signer(a.Owner),
		readonly(a.Marketplace),
		writable(a.Listing),
		writable(a.Vault),
		writable(a.OwnerTokenAccount),
		readonly(a.Mint),
		readonly(solana.TokenProgramID),
	})
}

func (b instructionBuilder) purchase(a PurchaseAccounts) (solana.Instruction, error) {
	return b.build("purchase", solana.AccountMetaSlice{
		signer(a.Buyer),
		readonly(a.Seller),
		readonly(a.Marketplace),
		writable(a.Listing),
		writable(a.Escrow),
		writable(a.UserAccount),
		readonly(solana.SystemProgramID),
	})
}

// releaseEscrow optionally prepends the buyer's token account creation so both land atomically.
func (b instructionBuilder) releaseEscrow(a ReleaseAccounts) ([]solana.Instruction, error) {
	instrs := make([]solana.Instruction, 0, 2)
	if a.CreateBuyerTokenAccount {
		instrs = append(instrs, associatedtokenaccount.NewCreateInstruction(a.Seller, a.Buyer, a.Mint).Build())
	}

	ix, err := b.build("release_escrow", solana.AccountMetaSlice{
		signer(a.Seller),
		writable(a.Buyer),
		readonly(a.Marketplace),
		writable(a.Treasury),
		writable(a.Listing),
		writable(a.Escrow),
		writable(a.Vault),
		writable(a.BuyerTokenAccount),
		readonly(a.Mint),
		writable(a.SellerAccount),
		writable(a.BuyerAccount),
		readonly(solana.TokenProgramID),
		readonly(solana.SystemProgramID),
	})
	if err != nil {
		return nil, err
	}

	return append(instrs, ix), nil
}

func (b instructionBuilder) refund(a RefundAccounts) (solana.Instruction, error) {
	return b.build("refund", solana.AccountMetaSlice{
		signer(a.Caller),
		writable(a.Buyer),
		readonly(a.Seller),
		readonly(a.Marketplace),
		writable(a.Listing),
		writable(a.Escrow),
		readonly(solana.SystemProgramID),
	})
}
