// Package wallet is the signing boundary. It owns the only place where raw
// wallet or RPC error text is turned into typed outcome errors.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Approver is asked before every signature. Returning false declines the
// request and Sign reports domain.ErrUserCancelled.
type Approver func(ctx context.Context, message []byte) (bool, error)

// KeypairWallet signs with a local ed25519 keypair.
type KeypairWallet struct {
	key     solana.PrivateKey
	approve Approver
}

var _ domain.Wallet = (*KeypairWallet)(nil)

// NewKeypairWallet wraps key. approve may be nil to sign without prompting.
func NewKeypairWallet(key solana.PrivateKey, approve Approver) (*KeypairWallet, error) {
	if len(key) != 64 {
		return nil, fmt.Errorf("wallet: %w: keypair must be 64 bytes", domain.ErrWalletNotReady)
	}
	return &KeypairWallet{key: key, approve: approve}, nil
}

// PublicKey returns the base58 wallet address.
func (w *KeypairWallet) PublicKey() string { return w.key.PublicKey().String() }

// Sign returns the ed25519 signature of message.
func (w *KeypairWallet) Sign(ctx context.Context, message []byte) ([]byte, error) {
	if w.approve != nil {
		ok, err := w.approve(ctx, message)
		if err != nil {
			return nil, ClassifyError(err)
		}
		if !ok {
			return nil, fmt.Errorf("wallet: %w", domain.ErrUserCancelled)
		}
	}
	sig, err := w.key.Sign(message)
	if err != nil {
		return nil, &domain.TransactionFailedError{Reason: domain.ErrSigningFailed.Error(), Err: err}
	}
	return sig[:], nil
}

// rejectionMarkers are substrings wallet adapters use for a declined prompt.
var rejectionMarkers = []string{"user rejected", "user denied", "request rejected"}

// ClassifyError converts an error raised below the wallet boundary into either
// domain.ErrUserCancelled or *domain.TransactionFailedError. Errors that are
// already typed pass through unchanged.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrUserCancelled) {
		return err
	}
	var failed *domain.TransactionFailedError
	if errors.As(err, &failed) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", domain.ErrUserCancelled, err)
	}
	msg := strings.ToLower(err.Error())
	for _, m := range rejectionMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %v", domain.ErrUserCancelled, err)
		}
	}
	return &domain.TransactionFailedError{Reason: err.Error(), Err: err}
}
