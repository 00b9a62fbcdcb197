// Package flow holds the classification primitives shared by the chain adapters:
// net-flow accounting per currency, direction inference and result finalization.
package flow

import (
	"awakenfetch/pkg/types/ledger"

	"github.com/shopspring/decimal"
)

const SelfTransferTag = "self_transfer"

// Ledger accumulates signed flows per currency for the queried address.
// Positive amounts flow in, negative amounts flow out.
type Ledger struct {
	order []string
	net   map[string]decimal.Decimal
}

func NewLedger() *Ledger {
	return &Ledger{net: make(map[string]decimal.Decimal)}
}

func (l *Ledger) Add(currency string, amount decimal.Decimal) {
	if currency == "" || amount.IsZero() {
		return
	}
	cur, ok := l.net[currency]
	if !ok {
		l.order = append(l.order, currency)
	}
	l.net[currency] = cur.Add(amount)
}

func (l *Ledger) In(currency string, amount decimal.Decimal) {
	l.Add(currency, amount.Abs())
}

func (l *Ledger) Out(currency string, amount decimal.Decimal) {
	l.Add(currency, amount.Abs().Neg())
}

func (l *Ledger) Net(currency string) decimal.Decimal {
	return l.net[currency]
}

func (l *Ledger) Empty() bool {
	for _, v := range l.net {
		if !v.IsZero() {
			return false
		}
	}
	return true
}

// Legs splits the nets into inflow and outflow entries in first-seen order.
// Quantities are magnitudes and currencies that netted to zero are dropped.
func (l *Ledger) Legs() (in, out []ledger.AssetEntry) {
	for _, currency := range l.order {
		v := l.net[currency]
		switch v.Sign() {
		case 1:
			in = append(in, ledger.AssetEntry{Quantity: v.InexactFloat64(), Currency: currency})
		case -1:
			out = append(out, ledger.AssetEntry{Quantity: v.Abs().InexactFloat64(), Currency: currency})
		}
	}
	return in, out
}

// Infer derives the direction from the legs. An empty result means nothing moved.
func Infer(in, out []ledger.AssetEntry) ledger.TxType {
	switch {
	case len(in) > 0 && len(out) > 0:
		return ledger.TypeTrade
	case len(in) > 0:
		return ledger.TypeReceive
	case len(out) > 0:
		return ledger.TypeSend
	default:
		return ""
	}
}

// Apply writes the legs onto tx: the first entry of each side fills the primary
// columns and the rest go to the additional slots.
func Apply(tx *ledger.Transaction, in, out []ledger.AssetEntry) {
	if len(in) > 0 {
		tx.ReceivedQuantity = ledger.Float(in[0].Quantity)
		tx.ReceivedCurrency = in[0].Currency
		tx.AdditionalReceived = append([]ledger.AssetEntry(nil), in[1:]...)
		if len(tx.AdditionalReceived) == 0 {
			tx.AdditionalReceived = nil
		}
	}
	if len(out) > 0 {
		tx.SentQuantity = ledger.Float(out[0].Quantity)
		tx.SentCurrency = out[0].Currency
		tx.AdditionalSent = append([]ledger.AssetEntry(nil), out[1:]...)
		if len(tx.AdditionalSent) == 0 {
			tx.AdditionalSent = nil
		}
	}
}

// SetFee records a fee paid by the queried address. Zero fees are left unset.
func SetFee(tx *ledger.Transaction, amount decimal.Decimal, currency string) {
	if !amount.IsPositive() || currency == "" {
		return
	}
	tx.FeeAmount = ledger.Float(amount.InexactFloat64())
	tx.FeeCurrency = currency
}

// SelfTransfer builds the row for a transfer whose source and destination are the
// queried address. Only the fee is carried.
func SelfTransfer(tx ledger.Transaction) ledger.Transaction {
	tx.Type = ledger.TypeOther
	tx.Tag = SelfTransferTag
	tx.SentQuantity, tx.SentCurrency = nil, ""
	tx.ReceivedQuantity, tx.ReceivedCurrency = nil, ""
	tx.AdditionalSent, tx.AdditionalReceived = nil, nil
	return tx
}

// Finalize drops transactions outside the window and sorts the rest ascending by date.
func Finalize(txs []ledger.Transaction, opts ledger.FetchOptions) []ledger.Transaction {
	out := make([]ledger.Transaction, 0, len(txs))
	for _, tx := range txs {
		if opts.InWindow(tx.Date) {
			out = append(out, tx)
		}
	}
	ledger.SortTransactions(out)
	return out
}

func FinalizePerps(txs []ledger.PerpTransaction, opts ledger.FetchOptions) []ledger.PerpTransaction {
	out := make([]ledger.PerpTransaction, 0, len(txs))
	for _, tx := range txs {
		if opts.InWindow(tx.Date) {
			out = append(out, tx)
		}
	}
	ledger.SortPerpTransactions(out)
	return out
}

// ScaleInteger converts an integer base-unit amount such as wei into a decimal amount.
func ScaleInteger(raw string, exponent int32) (decimal.Decimal, bool) {
	if raw == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Shift(-exponent), true
}
