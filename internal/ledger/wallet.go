package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Wallet signs transactions for one public key. Key custody lives behind this interface.
type Wallet interface {
	PublicKey() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}

type keypairWallet struct {
	key solana.PrivateKey
}

// NewKeypairWallet loads a solana-keygen JSON keypair file. A leading "~/" is the home
// directory.
func NewKeypairWallet(path string) (Wallet, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, path[2:])
	}

	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair %s: %w", path, err)
	}

	return keypairWallet{key}, nil
}

func (w keypairWallet) PublicKey() solana.PublicKey {
	return w.key.PublicKey()
}

func (w keypairWallet) SignTransaction(_ context.Context, tx *solana.Transaction) error {
	pub := w.key.PublicKey()
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk.Equals(pub) {
			return &w.key
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionNotSigned, err)
	}

	return nil
}
