package solanachain

import (
	"encoding/json"
	"time"

	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/types/ledger"

	"github.com/shopspring/decimal"
)

const (
	nativeSymbol   = "SOL"
	lamportDigits  = 9
	wrappedSOLMint = "So11111111111111111111111111111111111111112"
)

var knownMints = map[string]string{
	wrappedSOLMint: nativeSymbol,
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USDC",
	"Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB": "USDT",
	"mSoLzYCxHdYgdzU16g5QSh3i5K3z3KZK7ytfqcJm7So":  "MSOL",
	"J1toso1uCk3RLmjorhTtrVwY9HJ7X8V9yYac6Y7kGCPn": "JITOSOL",
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263": "BONK",
	"JUPyiwrYJFskUPiHa7hkeR8VUtAeFoSYbKedZNsDvCN":  "JUP",
}

var typeOverrides = map[string]ledger.TxType{
	"STAKE_SOL":          ledger.TypeStake,
	"UNSTAKE_SOL":        ledger.TypeUnstake,
	"CLAIM_REWARDS":      ledger.TypeClaim,
	"HARVEST_REWARD":     ledger.TypeClaim,
	"ADD_LIQUIDITY":      ledger.TypeLPAdd,
	"DEPOSIT":            ledger.TypeLPAdd,
	"WITHDRAW_LIQUIDITY": ledger.TypeLPRemove,
	"APPROVE":            ledger.TypeApproval,
}

type enhancedTx struct {
	Signature        string           `json:"signature"`
	Timestamp        int64            `json:"timestamp"`
	Type             string           `json:"type"`
	Source           string           `json:"source"`
	Description      string           `json:"description"`
	Fee              int64            `json:"fee"`
	FeePayer         string           `json:"feePayer"`
	TransactionError json.RawMessage  `json:"transactionError"`
	NativeTransfers  []nativeTransfer `json:"nativeTransfers"`
	TokenTransfers   []tokenTransfer  `json:"tokenTransfers"`
}

func (r enhancedTx) key() string {
	return r.Signature
}

func (r enhancedTx) at() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

func (r enhancedTx) failed() bool {
	return len(r.TransactionError) > 0 && string(r.TransactionError) != "null"
}

type nativeTransfer struct {
	FromUserAccount string `json:"fromUserAccount"`
	ToUserAccount   string `json:"toUserAccount"`
	Amount          int64  `json:"amount"`
}

type tokenTransfer struct {
	FromUserAccount string          `json:"fromUserAccount"`
	ToUserAccount   string          `json:"toUserAccount"`
	TokenAmount     decimal.Decimal `json:"tokenAmount"`
	Mint            string          `json:"mint"`
}

func lamports(n int64) decimal.Decimal {
	return decimal.New(n, -lamportDigits)
}

func classify(r enhancedTx, address string, mints map[string]string) (ledger.Transaction, bool) {
	if r.failed() || r.Signature == "" {
		return ledger.Transaction{}, false
	}

	tx := ledger.Transaction{Date: r.at(), TxHash: r.Signature, Notes: r.Description}
	if r.FeePayer == address {
		flow.SetFee(&tx, lamports(r.Fee), nativeSymbol)
	}

	l := flow.NewLedger()
	self, moved := false, false
	for _, t := range r.NativeTransfers {
		if t.Amount == 0 {
			continue
		}
		if t.FromUserAccount == address && t.ToUserAccount == address {
			self = true
			continue
		}
		if move(l, t.FromUserAccount, t.ToUserAccount, address, nativeSymbol, lamports(t.Amount)) {
			moved = true
		}
	}
	for _, t := range r.TokenTransfers {
		if t.TokenAmount.IsZero() {
			continue
		}
		symbol, ok := mints[t.Mint]
		if !ok {
			symbol = t.Mint
		}
		if t.FromUserAccount == address && t.ToUserAccount == address {
			self = true
			continue
		}
		if move(l, t.FromUserAccount, t.ToUserAccount, address, symbol, t.TokenAmount) {
			moved = true
		}
	}

	in, out := l.Legs()
	if self && !moved {
		return flow.SelfTransfer(tx), true
	}

	txType := typeOverrides[r.Type]
	if txType == "" {
		txType = flow.Infer(in, out)
	}
	if txType == "" {
		if tx.FeeAmount == nil {
			return ledger.Transaction{}, false
		}
		txType = ledger.TypeOther
	}
	tx.Type = txType
	flow.Apply(&tx, in, out)
	return tx, true
}

func move(l *flow.Ledger, from, to, address, currency string, v decimal.Decimal) bool {
	switch address {
	case to:
		l.In(currency, v)
	case from:
		l.Out(currency, v)
	default:
		return false
	}
	return true
}
