// Package paper is an in-memory margin protocol. It backs monitor mode, the
// offline CLI commands and tests, and signs every action through a real
// domain.Wallet so rejection and failure paths behave like the chain.
package paper

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/marginterm/internal/domain"
	"github.com/alanyoungcy/marginterm/internal/platform/wallet"
	"github.com/alanyoungcy/marginterm/internal/risk"
	"github.com/alanyoungcy/marginterm/internal/swap"
)

// SDK implements domain.MarginSDK in memory.
type SDK struct {
	mu         sync.Mutex
	signer     domain.Wallet
	thresholds risk.Thresholds

	pools     map[string]domain.Pool
	accounts  map[string]*domain.MarginAccount
	markets   []domain.Market
	books     map[string]domain.OrderbookSnapshot
	orders    map[string][]domain.OpenOrder
	swapPools []domain.SwapPool

	failNext error
}

var _ domain.MarginSDK = (*SDK)(nil)

// New creates a paper SDK from seed. signer may be nil, in which case
// transaction ids are random signatures.
func New(signer domain.Wallet, thresholds risk.Thresholds, seed Seed) *SDK {
	s := &SDK{
		signer:     signer,
		thresholds: thresholds,
		pools:      make(map[string]domain.Pool, len(seed.Pools)),
		accounts:   make(map[string]*domain.MarginAccount),
		markets:    slices.Clone(seed.Markets),
		books:      make(map[string]domain.OrderbookSnapshot, len(seed.Books)),
		orders:     make(map[string][]domain.OpenOrder),
		swapPools:  slices.Clone(seed.SwapPools),
	}
	for _, p := range seed.Pools {
		s.pools[p.Symbol] = p
	}
	for _, b := range seed.Books {
		s.books[b.Market] = b
	}
	return s
}

// FailNext makes the next action return err, classified at the wallet
// boundary as if the chain or wallet had raised it.
func (s *SDK) FailNext(err error) {
	s.mu.Lock()
	s.failNext = err
	s.mu.Unlock()
}

// Fund credits a deposit directly, bypassing signing. It is used to seed
// demo accounts.
func (s *SDK) Fund(account, symbol string, amount domain.TokenAmount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[account]
	if !ok {
		return fmt.Errorf("paper: fund %s: %w", account, domain.ErrAccountNotFound)
	}
	if _, ok := s.pools[symbol]; !ok {
		return fmt.Errorf("paper: fund %s: %w", symbol, domain.ErrPoolNotFound)
	}
	s.adjust(acct, symbol, amount, domain.ZeroAmount(amount.Decimals()))
	return nil
}

// Loaders.

func (s *SDK) LoadPools(_ context.Context) ([]domain.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	out := make([]domain.Pool, 0, len(s.pools))
	for _, sym := range slices.Sorted(maps.Keys(s.pools)) {
		p := s.pools[sym]
		p.Utilization = utilization(p)
		p.BorrowAPY = 0.02 + 0.25*p.Utilization
		p.DepositAPY = p.BorrowAPY * p.Utilization
		p.UpdatedAt = now
		out = append(out, p)
	}
	return out, nil
}

func utilization(p domain.Pool) float64 {
	total := p.TotalDeposits.Float64()
	if total <= 0 {
		return 0
	}
	return p.TotalBorrows.Float64() / total
}

func (s *SDK) LoadAccounts(_ context.Context, owner string) ([]domain.MarginAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MarginAccount
	for _, a := range s.accounts {
		if a.Owner != owner {
			continue
		}
		cp := *a
		cp.Positions = maps.Clone(a.Positions)
		cp.RiskIndicator = s.thresholds.AccountIndicator(s.pools, cp)
		cp.UpdatedAt = time.Now().UTC()
		out = append(out, cp)
	}
	slices.SortFunc(out, func(a, b domain.MarginAccount) int { return a.Seed - b.Seed })
	return out, nil
}

func (s *SDK) LoadMarkets(_ context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.markets), nil
}

func (s *SDK) LoadOrderbook(_ context.Context, market string) (domain.OrderbookSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	book, ok := s.books[market]
	if !ok {
		return domain.OrderbookSnapshot{}, fmt.Errorf("paper: orderbook %s: %w", market, domain.ErrMarketNotFound)
	}
	book.Bids = slices.Clone(book.Bids)
	book.Asks = slices.Clone(book.Asks)
	book.Timestamp = time.Now().UTC()
	return book, nil
}

func (s *SDK) LoadOpenOrders(_ context.Context, account, market string) ([]domain.OpenOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.orders[orderKey(account, market)]), nil
}

func (s *SDK) LoadSwapPools(_ context.Context) ([]domain.SwapPool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.swapPools), nil
}

// Actions. Each validates against current state, signs, then applies.

func (s *SDK) Deposit(ctx context.Context, account, symbol string, amount domain.TokenAmount) (string, error) {
	return s.apply(ctx, domain.ActionDeposit, account, symbol, amount, func(acct *domain.MarginAccount, p *domain.Pool) error {
		s.adjust(acct, symbol, amount, domain.ZeroAmount(amount.Decimals()))
		p.TotalDeposits = p.TotalDeposits.Add(amount)
		p.VaultLiquidity = p.VaultLiquidity.Add(amount)
		return nil
	})
}

func (s *SDK) Withdraw(ctx context.Context, account, symbol string, amount domain.TokenAmount) (string, error) {
	return s.apply(ctx, domain.ActionWithdraw, account, symbol, amount, func(acct *domain.MarginAccount, p *domain.Pool) error {
		pos := acct.Positions[symbol]
		if amount.Cmp(pos.Deposit) > 0 {
			return failed("insufficient deposit")
		}
		if amount.Cmp(p.VaultLiquidity) > 0 {
			return failed("insufficient pool liquidity")
		}
		s.adjust(acct, symbol, negate(amount), domain.ZeroAmount(amount.Decimals()))
		if s.thresholds.AccountIndicator(s.pools, *acct) >= s.thresholds.Liquidation {
			s.adjust(acct, symbol, amount, domain.ZeroAmount(amount.Decimals()))
			return failed("withdrawal would exceed max risk")
		}
		p.TotalDeposits = p.TotalDeposits.Sub(amount)
		p.VaultLiquidity = p.VaultLiquidity.Sub(amount)
		return nil
	})
}

func (s *SDK) Borrow(ctx context.Context, account, symbol string, amount domain.TokenAmount) (string, error) {
	return s.apply(ctx, domain.ActionBorrow, account, symbol, amount, func(acct *domain.MarginAccount, p *domain.Pool) error {
		if amount.Cmp(p.VaultLiquidity) > 0 {
			return failed("insufficient pool liquidity")
		}
		s.adjust(acct, symbol, amount, amount)
		if s.thresholds.AccountIndicator(s.pools, *acct) >= s.thresholds.Liquidation {
			s.adjust(acct, symbol, negate(amount), negate(amount))
			return failed("borrow would exceed max risk")
		}
		p.TotalDeposits = p.TotalDeposits.Add(amount)
		p.TotalBorrows = p.TotalBorrows.Add(amount)
		return nil
	})
}

func (s *SDK) Repay(ctx context.Context, account, symbol string, amount domain.TokenAmount, fromWallet bool) (string, error) {
	kind := domain.ActionRepay
	if fromWallet {
		kind = domain.ActionRepayFromWallet
	}
	return s.apply(ctx, kind, account, symbol, amount, func(acct *domain.MarginAccount, p *domain.Pool) error {
		pos := acct.Positions[symbol]
		paid := amount.Min(pos.Loan)
		if fromWallet {
			s.adjust(acct, symbol, domain.ZeroAmount(paid.Decimals()), negate(paid))
			p.VaultLiquidity = p.VaultLiquidity.Add(paid)
		} else {
			if paid.Cmp(pos.Deposit) > 0 {
				return failed("insufficient deposit to repay")
			}
			s.adjust(acct, symbol, negate(paid), negate(paid))
			p.TotalDeposits = p.TotalDeposits.Sub(paid)
		}
		p.TotalBorrows = p.TotalBorrows.Sub(paid)
		return nil
	})
}

func (s *SDK) Swap(ctx context.Context, account, poolAddr, from, to string, amount, minOutput domain.TokenAmount) (string, error) {
	return s.apply(ctx, domain.ActionSwap, account, from, amount, func(acct *domain.MarginAccount, _ *domain.Pool) error {
		idx := slices.IndexFunc(s.swapPools, func(p domain.SwapPool) bool { return p.Address == poolAddr })
		if idx < 0 {
			return &domain.TransactionFailedError{Reason: "swap pool not found", Err: domain.ErrPoolNotFound}
		}
		sp := s.swapPools[idx]
		params, ok := swap.ForPool(sp, from, amount, decimal.Zero)
		if !ok || (sp.TokenA != to && sp.TokenB != to) {
			return failed(fmt.Sprintf("pool %s does not pair %s and %s", poolAddr, from, to))
		}
		quote, err := swap.Compute(params)
		if err != nil {
			return failed(err.Error())
		}
		if quote.Output.Cmp(minOutput) < 0 {
			return failed("slippage tolerance exceeded")
		}
		if _, ok := s.pools[to]; !ok {
			return &domain.TransactionFailedError{Reason: "output pool not found", Err: domain.ErrPoolNotFound}
		}

		pos := acct.Positions[from]
		shortfall := floor(amount.Sub(pos.Deposit))
		// The shortfall is borrowed and immediately spent.
		s.adjust(acct, from, negate(amount).Add(shortfall), shortfall)
		s.adjust(acct, to, quote.Output, domain.ZeroAmount(quote.Output.Decimals()))

		if from == sp.TokenA {
			sp.ReserveA = sp.ReserveA.Add(amount)
			sp.ReserveB = sp.ReserveB.Sub(quote.Output)
		} else {
			sp.ReserveB = sp.ReserveB.Add(amount)
			sp.ReserveA = sp.ReserveA.Sub(quote.Output)
		}
		sp.UpdatedAt = time.Now().UTC()
		s.swapPools[idx] = sp
		return nil
	})
}

func (s *SDK) Transfer(ctx context.Context, fromAccount, toAccount, symbol string, amount domain.TokenAmount) (string, error) {
	return s.apply(ctx, domain.ActionTransfer, fromAccount, symbol, amount, func(acct *domain.MarginAccount, _ *domain.Pool) error {
		dst, ok := s.accounts[toAccount]
		if !ok {
			return &domain.TransactionFailedError{Reason: "destination account not found", Err: domain.ErrAccountNotFound}
		}
		if amount.Cmp(acct.Positions[symbol].Deposit) > 0 {
			return failed("insufficient deposit")
		}
		zero := domain.ZeroAmount(amount.Decimals())
		s.adjust(acct, symbol, negate(amount), zero)
		s.adjust(dst, symbol, amount, zero)
		return nil
	})
}

func (s *SDK) PlaceOrder(ctx context.Context, account, market string, order domain.OrderIntent) (string, error) {
	if err := order.Validate(); err != nil {
		return "", &domain.TransactionFailedError{Reason: err.Error(), Err: err}
	}
	return s.submit(ctx, domain.ActionPlaceOrder, map[string]any{"account": account, "market": market, "order": order}, func() error {
		if _, ok := s.accounts[account]; !ok {
			return &domain.TransactionFailedError{Reason: "account not found", Err: domain.ErrAccountNotFound}
		}
		if !slices.ContainsFunc(s.markets, func(m domain.Market) bool { return m.Name == market }) {
			return &domain.TransactionFailedError{Reason: "market not found", Err: domain.ErrMarketNotFound}
		}
		key := orderKey(account, market)
		s.orders[key] = append(s.orders[key], domain.OpenOrder{
			ID:     uuid.NewString(),
			Market: market,
			Side:   order.Side,
			Price:  order.Price.Value.Float64(),
			Size:   order.Amount.Value.Float64(),
		})
		return nil
	})
}

func (s *SDK) CancelOrder(ctx context.Context, account, market, orderID string) (string, error) {
	return s.submit(ctx, domain.ActionCancelOrder, map[string]any{"account": account, "market": market, "order_id": orderID}, func() error {
		key := orderKey(account, market)
		before := len(s.orders[key])
		s.orders[key] = slices.DeleteFunc(s.orders[key], func(o domain.OpenOrder) bool { return o.ID == orderID })
		if len(s.orders[key]) == before {
			return &domain.TransactionFailedError{Reason: "order not found", Err: domain.ErrNotFound}
		}
		return nil
	})
}

func (s *SDK) CreateAccount(ctx context.Context, owner string) (string, error) {
	return s.submit(ctx, domain.ActionCreateAccount, map[string]any{"owner": owner}, func() error {
		seed := 0
		for _, a := range s.accounts {
			if a.Owner == owner && a.Seed >= seed {
				seed = a.Seed + 1
			}
		}
		addr := solana.NewWallet().PublicKey().String()
		s.accounts[addr] = &domain.MarginAccount{
			Address:   addr,
			Owner:     owner,
			Seed:      seed,
			Positions: make(map[string]domain.PoolPosition),
		}
		return nil
	})
}

// apply runs a pool action against account. mutate runs under the lock
// after the signature was obtained.
func (s *SDK) apply(ctx context.Context, kind domain.ActionKind, account, symbol string, amount domain.TokenAmount, mutate func(*domain.MarginAccount, *domain.Pool) error) (string, error) {
	if amount.IsNegative() || amount.IsZero() {
		return "", &domain.TransactionFailedError{Reason: "amount must be positive", Err: domain.ErrInvalidAmount}
	}
	payload := map[string]any{"kind": kind, "account": account, "symbol": symbol, "amount": amount}
	return s.submit(ctx, kind, payload, func() error {
		acct, ok := s.accounts[account]
		if !ok {
			return &domain.TransactionFailedError{Reason: "account not found", Err: domain.ErrAccountNotFound}
		}
		p, ok := s.pools[symbol]
		if !ok {
			return &domain.TransactionFailedError{Reason: "pool not found", Err: domain.ErrPoolNotFound}
		}
		if err := mutate(acct, &p); err != nil {
			return err
		}
		s.pools[symbol] = p
		return nil
	})
}

// submit signs payload and, on success, applies mutate under the lock.
func (s *SDK) submit(ctx context.Context, kind domain.ActionKind, payload any, mutate func() error) (string, error) {
	s.mu.Lock()
	injected := s.failNext
	s.failNext = nil
	s.mu.Unlock()
	if injected != nil {
		return "", wallet.ClassifyError(injected)
	}

	msg, err := json.Marshal(payload)
	if err != nil {
		return "", &domain.TransactionFailedError{Reason: "encode " + string(kind), Err: err}
	}
	txID, err := s.sign(ctx, msg)
	if err != nil {
		return "", wallet.ClassifyError(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := mutate(); err != nil {
		return "", wallet.ClassifyError(err)
	}
	return txID, nil
}

func (s *SDK) sign(ctx context.Context, msg []byte) (string, error) {
	if s.signer == nil {
		var sig solana.Signature
		if _, err := rand.Read(sig[:]); err != nil {
			return "", err
		}
		return sig.String(), nil
	}
	raw, err := s.signer.Sign(ctx, msg)
	if err != nil {
		return "", err
	}
	return solana.SignatureFromBytes(raw).String(), nil
}

// adjust adds deltas to a position, flooring both balances at zero.
func (s *SDK) adjust(acct *domain.MarginAccount, symbol string, deposit, loan domain.TokenAmount) {
	if acct.Positions == nil {
		acct.Positions = make(map[string]domain.PoolPosition)
	}
	decimals := s.pools[symbol].Decimals
	pos, ok := acct.Positions[symbol]
	if !ok {
		pos = domain.PoolPosition{Symbol: symbol, Deposit: domain.ZeroAmount(decimals), Loan: domain.ZeroAmount(decimals)}
	}
	pos.Deposit = floor(pos.Deposit.Add(deposit))
	pos.Loan = floor(pos.Loan.Add(loan))
	acct.Positions[symbol] = pos
}

func floor(a domain.TokenAmount) domain.TokenAmount {
	if a.IsNegative() {
		return domain.ZeroAmount(a.Decimals())
	}
	return a
}

func negate(a domain.TokenAmount) domain.TokenAmount {
	return domain.ZeroAmount(a.Decimals()).Sub(a)
}

func failed(reason string) error {
	return &domain.TransactionFailedError{Reason: reason}
}

func orderKey(account, market string) string { return account + "|" + market }
