package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionKind names a user-initiated blockchain action.
type ActionKind string

const (
	ActionDeposit         ActionKind = "deposit"
	ActionWithdraw        ActionKind = "withdraw"
	ActionBorrow          ActionKind = "borrow"
	ActionRepay           ActionKind = "repay"
	ActionRepayFromWallet ActionKind = "repay_from_wallet"
	ActionSwap            ActionKind = "swap"
	ActionTransfer        ActionKind = "transfer"
	ActionPlaceOrder      ActionKind = "place_order"
	ActionCancelOrder     ActionKind = "cancel_order"
	ActionCreateAccount   ActionKind = "create_account"
)

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionDeposit, ActionWithdraw, ActionBorrow, ActionRepay, ActionRepayFromWallet,
		ActionSwap, ActionTransfer, ActionPlaceOrder, ActionCancelOrder, ActionCreateAccount:
		return true
	}
	return false
}

// TradeKinds are the action kinds that carry a token amount with a maximum.
var TradeKinds = []ActionKind{
	ActionDeposit, ActionWithdraw, ActionBorrow, ActionRepay, ActionRepayFromWallet, ActionSwap,
}

// Outcome is the state of a dispatched action.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSuccess   Outcome = "success"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// Terminal reports whether no further transition is possible.
func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeCancelled || o == OutcomeFailed
}

// ActionRequest carries everything a dispatcher needs to call the SDK.
type ActionRequest struct {
	Kind    ActionKind  `json:"kind"`
	Account string      `json:"account"`
	Symbol  string      `json:"symbol"`
	Amount  TokenAmount `json:"amount"`

	// Swap.
	OutputSymbol string          `json:"output_symbol,omitempty"`
	SwapPool     string          `json:"swap_pool,omitempty"`
	Slippage     *decimal.Decimal `json:"slippage,omitempty"`
	MinOutput    *TokenAmount    `json:"min_output,omitempty"`

	// Transfer.
	ToAccount string `json:"to_account,omitempty"`

	// Orders.
	Market  string       `json:"market,omitempty"`
	Order   *OrderIntent `json:"order,omitempty"`
	OrderID string       `json:"order_id,omitempty"`
}

// ActionRecord is the persisted history of one dispatched action.
type ActionRecord struct {
	ID          string     `json:"id"`
	Wallet      string     `json:"wallet"`
	Kind        ActionKind `json:"kind"`
	Account     string     `json:"account"`
	Symbol      string     `json:"symbol"`
	Amount      string     `json:"amount"`
	Outcome     Outcome    `json:"outcome"`
	TxID        string     `json:"tx_id,omitempty"`
	ExplorerURL string     `json:"explorer_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
