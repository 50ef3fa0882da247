// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet holds the buyback authority keypair.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
	ATACache   map[string]solana.PublicKey // cache for associated token account addresses
}

// NewWallet creates a wallet from a base58-encoded private key.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	publicKey := privateKey.PublicKey()
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  publicKey,
		ATACache:   make(map[string]solana.PublicKey),
	}, nil
}

// SignTransaction signs the transaction with the wallet's private key.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// GetATA returns the associated token account address for the given mint.
// Computed addresses are cached.
func (w *Wallet) GetATA(mint solana.PublicKey) (solana.PublicKey, error) {
	mintStr := mint.String()
	if ata, ok := w.ATACache[mintStr]; ok {
		return ata, nil
	}
	ata, _, err := solana.FindAssociatedTokenAddress(w.PublicKey, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	w.ATACache[mintStr] = ata
	return ata, nil
}

// String returns the wallet's public key.
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
