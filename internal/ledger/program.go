package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

type program struct {
	client          *rpc.Client
	programId       solana.PublicKey
	deriver         address.Deriver
	instructions    instructionBuilder
	commitment      rpc.CommitmentType
	confirmRetries  int
	confirmInterval time.Duration
}

func NewProgram(
	client *rpc.Client,
	deriver address.Deriver,
	commitment rpc.CommitmentType,
	confirmRetries int,
	confirmInterval time.Duration,
) Program {
	return program{
		client:          client,
		programId:       deriver.Program,
		deriver:         deriver,
		instructions:    instructionBuilder{deriver.Program},
		commitment:      commitment,
		confirmRetries:  confirmRetries,
		confirmInterval: confirmInterval,
	}
}

func (p program) getAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	resp, err := p.client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: p.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && (resp == nil || resp.Value == nil)) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	return resp.Value.Data.GetBinary(), nil
}

func (p program) Marketplace(ctx context.Context, addr solana.PublicKey) (*entity.Marketplace, error) {
	data, err := p.getAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decodeMarketplace(addr, data)
}

func (p program) UserAccount(ctx context.Context, addr solana.PublicKey) (*entity.UserAccount, error) {
	data, err := p.getAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decodeUserAccount(addr, data)
}

func (p program) Listing(ctx context.Context, addr solana.PublicKey) (*entity.Listing, error) {
	data, err := p.getAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decodeListing(addr, data)
}

func (p program) Escrow(ctx context.Context, addr solana.PublicKey) (*entity.Escrow, error) {
	data, err := p.getAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return decodeEscrow(addr, data)
}

func (p program) Listings(ctx context.Context) ([]entity.Listing, error) {
	accounts, err := p.client.GetProgramAccountsWithOpts(ctx, p.programId, &rpc.GetProgramAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: p.commitment,
		Filters: []rpc.RPCFilter{
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: 0, Bytes: solana.Base58(listingDiscriminator)}},
		},
	})
	if err != nil {
		return nil, err
	}

	listings := make([]entity.Listing, 0, len(accounts))
	for _, acc := range accounts {
		if acc == nil || acc.Account == nil {
			continue
		}
		listing, err := decodeListing(acc.Pubkey, acc.Account.Data.GetBinary())
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("address", acc.Pubkey.String())).Warn("Ledger: Skipping undecodable listing")
			continue
		}
		listings = append(listings, *listing)
	}

	return listings, nil
}

func (p program) AccountExists(ctx context.Context, addr solana.PublicKey) (bool, error) {
	_, err := p.getAccountData(ctx, addr)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}

	return err == nil, err
}

func (p program) Holdings(ctx context.Context, owner solana.PublicKey) ([]entity.Holding, error) {
	resp, err := p.client.GetTokenAccountsByOwner(ctx, owner, &rpc.GetTokenAccountsConfig{
		ProgramId: solana.TokenProgramID.ToPointer(),
	}, &rpc.GetTokenAccountsOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: p.commitment,
	})
	if err != nil {
		return nil, err
	}

	holdings := make([]entity.Holding, 0, len(resp.Value))
	for _, acc := range resp.Value {
		if acc == nil {
			continue
		}
		if holding, ok := decodeHolding(acc.Pubkey, acc.Account.Data.GetBinary()); ok && holding.Amount > 0 {
			holdings = append(holdings, holding)
		}
	}

	return holdings, nil
}

func (p program) MetadataUri(ctx context.Context, mint solana.PublicKey) (string, error) {
	data, err := p.getAccountData(ctx, p.deriver.AssetMetadata(mint))
	if errors.Is(err, ErrAccountNotFound) {
		return "", ErrMetadataUnavailable
	}
	if err != nil {
		return "", err
	}

	return decodeMetadataUri(data)
}

func (p program) InitializeMarketplace(ctx context.Context, w Wallet, accounts InitializeAccounts, feeBps uint16) (solana.Signature, error) {
	ix, err := p.instructions.initializeMarketplace(accounts, feeBps)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "initialize_marketplace", w, ix)
}

func (p program) RegisterUser(ctx context.Context, w Wallet, accounts RegisterAccounts) (solana.Signature, error) {
	ix, err := p.instructions.registerUser(accounts)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "register_user", w, ix)
}

func (p program) List(ctx context.Context, w Wallet, accounts ListAccounts, price uint64) (solana.Signature, error) {
	ix, err := p.instructions.list(accounts, price)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "list", w, ix)
}

func (p program) Delist(ctx context.Context, w Wallet, accounts DelistAccounts) (solana.Signature, error) {
	ix, err := p.instructions.delist(accounts)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "delist", w, ix)
}

func (p program) Purchase(ctx context.Context, w Wallet, accounts PurchaseAccounts) (solana.Signature, error) {
	ix, err := p.instructions.purchase(accounts)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "purchase", w, ix)
}

func (p program) ReleaseEscrow(ctx context.Context, w Wallet, accounts ReleaseAccounts) (solana.Signature, error) {
	instrs, err := p.instructions.releaseEscrow(accounts)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "release_escrow", w, instrs...)
}

func (p program) Refund(ctx context.Context, w Wallet, accounts RefundAccounts) (solana.Signature, error) {
	ix, err := p.instructions.refund(accounts)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.submit(ctx, "refund", w, ix)
}

// submit builds, signs, sends and confirms one transaction.
func (p program) submit(ctx context.Context, name string, w Wallet, instrs ...solana.Instruction) (solana.Signature, error) {
	bh, err := p.client.GetLatestBlockhash(ctx, p.commitment)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instrs, bh.Value.Blockhash, solana.TransactionPayer(w.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build %s transaction: %w", name, err)
	}

	if err := w.SignTransaction(ctx, tx); err != nil {
		return solana.Signature{}, err
	}

	sig, err := p.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: p.commitment,
	})
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("instruction", name)).Warn("Ledger: Send failed")
		return solana.Signature{}, decodeProgramError(err)
	}

	zap.L().With(zap.String("instruction", name), zap.String("signature", sig.String())).Debug("Ledger: Transaction sent")

	return sig, p.confirm(ctx, sig)
}

func (p program) confirm(ctx context.Context, sig solana.Signature) error {
	for attempt := 0; attempt < p.confirmRetries; attempt++ {
		statuses, err := p.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && statuses != nil && len(statuses.Value) == 1 && statuses.Value[0] != nil {
			status := statuses.Value[0]
			if status.Err != nil {
				return transactionError(sig, status.Err)
			}
			if status.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				status.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.confirmInterval):
		}
	}

	return fmt.Errorf("%w: %s", ErrConfirmationTimeout, sig)
}
