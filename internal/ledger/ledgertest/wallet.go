package ledgertest

import (
	"context"
	"crypto/sha256"

	"github.com/gagliardetto/solana-go"
)

// Wallet is a deterministic test wallet. Set Reject to simulate the user declining to sign.
type Wallet struct {
	Key    solana.PublicKey
	Reject error
}

func NewWallet(name string) *Wallet {
	sum := sha256.Sum256([]byte("wallet:" + name))
	return &Wallet{Key: solana.PublicKeyFromBytes(sum[:])}
}

func (w *Wallet) PublicKey() solana.PublicKey {
	return w.Key
}

func (w *Wallet) SignTransaction(ctx context.Context, _ *solana.Transaction) error {
	return w.sign(ctx)
}

func (w *Wallet) sign(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.Reject
}

// Key derives a deterministic public key for mints and other fixtures.
func Key(name string) solana.PublicKey {
	sum := sha256.Sum256([]byte("key:" + name))
	return solana.PublicKeyFromBytes(sum[:])
}
