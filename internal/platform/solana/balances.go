// Package solana reads wallet token balances over JSON-RPC.
package solana

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// nativeDecimals is the precision of lamports.
const nativeDecimals = 9

// rpcClient is the subset of *rpc.Client the balance reader calls.
type rpcClient interface {
	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
}

// BalanceReader implements domain.BalanceReader. Native SOL is read from the
// owner account, SPL tokens from the owner's associated token accounts.
type BalanceReader struct {
	client     rpcClient
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

var _ domain.BalanceReader = (*BalanceReader)(nil)

// NewBalanceReader connects to rpcURL.
func NewBalanceReader(rpcURL string, logger *slog.Logger) *BalanceReader {
	return newBalanceReader(rpc.New(rpcURL), logger)
}

func newBalanceReader(client rpcClient, logger *slog.Logger) *BalanceReader {
	return &BalanceReader{client: client, commitment: rpc.CommitmentConfirmed, logger: logger}
}

// WalletBalances returns one balance per entry of mints (symbol -> mint). A
// missing associated token account is reported as a zero balance.
func (r *BalanceReader) WalletBalances(ctx context.Context, owner string, mints map[string]string) ([]domain.WalletBalance, error) {
	ownerKey, err := solana.PublicKeyFromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("solana: owner %q: %w", owner, err)
	}

	symbols := make([]string, 0, len(mints))
	for sym := range mints {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := make([]domain.WalletBalance, 0, len(symbols))
	for _, sym := range symbols {
		mint, err := solana.PublicKeyFromBase58(mints[sym])
		if err != nil {
			return nil, fmt.Errorf("solana: mint for %s: %w", sym, err)
		}
		amount, err := r.balance(ctx, ownerKey, mint)
		if err != nil {
			return nil, fmt.Errorf("solana: balance %s: %w", sym, err)
		}
		out = append(out, domain.WalletBalance{Symbol: sym, Mint: mint.String(), Amount: amount})
	}
	return out, nil
}

func (r *BalanceReader) balance(ctx context.Context, owner, mint solana.PublicKey) (domain.TokenAmount, error) {
	if mint.Equals(solana.SolMint) {
		res, err := r.client.GetBalance(ctx, owner, r.commitment)
		if err != nil {
			return domain.TokenAmount{}, err
		}
		return domain.TokenAmountFromUint64(res.Value, nativeDecimals), nil
	}

	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return domain.TokenAmount{}, fmt.Errorf("derive token account: %w", err)
	}
	res, err := r.client.GetTokenAccountBalance(ctx, ata, r.commitment)
	if err != nil {
		if isMissingAccount(err) {
			r.logger.DebugContext(ctx, "solana: no token account", slog.String("mint", mint.String()))
			return domain.ZeroAmount(0), nil
		}
		return domain.TokenAmount{}, err
	}
	if res == nil || res.Value == nil {
		return domain.ZeroAmount(0), nil
	}
	lamports, ok := new(big.Int).SetString(res.Value.Amount, 10)
	if !ok {
		return domain.TokenAmount{}, fmt.Errorf("parse token amount %q", res.Value.Amount)
	}
	return domain.NewTokenAmount(lamports, int32(res.Value.Decimals)), nil
}

func isMissingAccount(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not find account") || strings.Contains(msg, "invalid param")
}
