package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZilDuck/solana-card-market/internal/address"
	"github.com/ZilDuck/solana-card-market/internal/ledger"
	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"
)

// ensureUser registers the wallet's user account unless it already exists. A registration
// that loses a race to another client counts as success.
func ensureUser(ctx context.Context, program ledger.Program, deriver address.Deriver, w ledger.Wallet) (solana.PublicKey, error) {
	wallet := w.PublicKey()
	userAddr := deriver.UserAccount(wallet)

	exists, err := program.AccountExists(ctx, userAddr)
	if err != nil {
		return userAddr, fmt.Errorf("check user account: %w", err)
	}
	if exists {
		return userAddr, nil
	}

	zap.L().With(zap.String("wallet", wallet.String())).Info("Market: Registering user account")

	_, err = program.RegisterUser(ctx, w, ledger.RegisterAccounts{Wallet: wallet, UserAccount: userAddr})
	if err != nil {
		var pe *ledger.ProgramError
		if errors.As(err, &pe) && pe.Code == ledger.CodeAccountInUse {
			return userAddr, nil
		}
		return userAddr, err
	}

	return userAddr, nil
}

// InitializeMarketplace creates the marketplace owned by the signing wallet.
func InitializeMarketplace(ctx context.Context, program ledger.Writer, deriver address.Deriver, w ledger.Wallet, feeBps uint16) (solana.Signature, error) {
	if feeBps > 10_000 {
		return solana.Signature{}, precondition(ErrInvalidFee, fmt.Sprintf("%d", feeBps))
	}

	authority := w.PublicKey()
	marketplace := deriver.Marketplace(authority)

	return program.InitializeMarketplace(ctx, w, ledger.InitializeAccounts{
		Authority:   authority,
		Marketplace: marketplace,
		Treasury:    deriver.Treasury(marketplace),
	}, feeBps)
}
