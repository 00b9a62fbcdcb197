package ledger

import (
	"sort"
	"time"
)

type TxType string

const (
	TypeSend     TxType = "send"
	TypeReceive  TxType = "receive"
	TypeTrade    TxType = "trade"
	TypeLPAdd    TxType = "lp_add"
	TypeLPRemove TxType = "lp_remove"
	TypeStake    TxType = "stake"
	TypeUnstake  TxType = "unstake"
	TypeClaim    TxType = "claim"
	TypeBridge   TxType = "bridge"
	TypeApproval TxType = "approval"
	TypeOther    TxType = "other"
)

type PerpTag string

const (
	TagOpenPosition   PerpTag = "open_position"
	TagClosePosition  PerpTag = "close_position"
	TagFundingPayment PerpTag = "funding_payment"
)

// AssetEntry is one extra asset on the send or receive side of a multi-asset transaction.
type AssetEntry struct {
	Quantity   float64  `json:"quantity"`
	Currency   string   `json:"currency"`
	FiatAmount *float64 `json:"fiatAmount,omitempty"`
}

// Transaction is the chain-agnostic ledger event every adapter produces.
type Transaction struct {
	Date               time.Time    `json:"date"`
	Type               TxType       `json:"type"`
	SentQuantity       *float64     `json:"sentQuantity,omitempty"`
	SentCurrency       string       `json:"sentCurrency,omitempty"`
	ReceivedQuantity   *float64     `json:"receivedQuantity,omitempty"`
	ReceivedCurrency   string       `json:"receivedCurrency,omitempty"`
	SentFiatAmount     *float64     `json:"sentFiatAmount,omitempty"`
	ReceivedFiatAmount *float64     `json:"receivedFiatAmount,omitempty"`
	FeeAmount          *float64     `json:"feeAmount,omitempty"`
	FeeCurrency        string       `json:"feeCurrency,omitempty"`
	TxHash             string       `json:"txHash,omitempty"`
	Notes              string       `json:"notes,omitempty"`
	Tag                string       `json:"tag,omitempty"`
	AdditionalSent     []AssetEntry `json:"additionalSent,omitempty"`
	AdditionalReceived []AssetEntry `json:"additionalReceived,omitempty"`
}

// IsMultiAsset reports whether either side spans more than one asset.
func (t Transaction) IsMultiAsset() bool {
	return len(t.AdditionalSent) > 0 || len(t.AdditionalReceived) > 0
}

// PerpTransaction is a derivatives ledger event. Pnl is the only signed field.
type PerpTransaction struct {
	Date         time.Time `json:"date"`
	Asset        string    `json:"asset"`
	Amount       float64   `json:"amount"`
	Fee          *float64  `json:"fee,omitempty"`
	Pnl          float64   `json:"pnl"`
	PaymentToken string    `json:"paymentToken,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	TxHash       string    `json:"txHash,omitempty"`
	Tag          PerpTag   `json:"tag"`
}

// FetchOptions bounds a history fetch. FromDate and ToDate are inclusive.
// Limit overrides the adapter page size and Cursor seeds the first page of every query.
type FetchOptions struct {
	FromDate *time.Time `json:"fromDate,omitempty"`
	ToDate   *time.Time `json:"toDate,omitempty"`
	Cursor   string     `json:"cursor,omitempty"`
	Limit    int        `json:"limit,omitempty"`

	// OnBatch receives classified transactions as pages arrive, before final sorting.
	OnBatch func(batch []Transaction) `json:"-"`
	// OnEstimate receives an upstream estimate of the record count when one is known.
	OnEstimate func(total int) `json:"-"`
}

func (o FetchOptions) InWindow(t time.Time) bool {
	if o.FromDate != nil && t.Before(*o.FromDate) {
		return false
	}
	if o.ToDate != nil && t.After(*o.ToDate) {
		return false
	}
	return true
}

func (o FetchOptions) EmitBatch(batch []Transaction) {
	if o.OnBatch != nil && len(batch) > 0 {
		o.OnBatch(batch)
	}
}

func (o FetchOptions) EmitEstimate(total int) {
	if o.OnEstimate != nil && total > 0 {
		o.OnEstimate(total)
	}
}

func Float(v float64) *float64 {
	return &v
}

func SortTransactions(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.Before(txs[j].Date)
	})
}

func SortPerpTransactions(txs []PerpTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.Before(txs[j].Date)
	})
}
