package hyperliquidchain

import (
	"strconv"
	"strings"
	"time"

	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/types/ledger"

	"github.com/shopspring/decimal"
)

const (
	settlementToken = "USDC"
	zeroHash        = "0x0000000000000000000000000000000000000000000000000000000000000000"
)

type fill struct {
	Coin      string `json:"coin"`
	Px        string `json:"px"`
	Sz        string `json:"sz"`
	Side      string `json:"side"`
	Time      int64  `json:"time"`
	Dir       string `json:"dir"`
	ClosedPnl string `json:"closedPnl"`
	Hash      string `json:"hash"`
	Fee       string `json:"fee"`
	FeeToken  string `json:"feeToken"`
	Tid       int64  `json:"tid"`
}

func (f fill) key() string {
	if f.Tid != 0 {
		return strconv.FormatInt(f.Tid, 10)
	}
	return f.Hash + ":" + f.Coin + ":" + strconv.FormatInt(f.Time, 10) + ":" + f.Sz
}

func (f fill) at() int64 { return f.Time }

func (f fill) spot() bool {
	return f.Dir == "Buy" || f.Dir == "Sell" || strings.HasPrefix(f.Coin, "@") || strings.Contains(f.Coin, "/")
}

type fundingUpdate struct {
	Time  int64  `json:"time"`
	Hash  string `json:"hash"`
	Delta struct {
		Type        string `json:"type"`
		Coin        string `json:"coin"`
		USDC        string `json:"usdc"`
		Szi         string `json:"szi"`
		FundingRate string `json:"fundingRate"`
	} `json:"delta"`
}

func (u fundingUpdate) key() string {
	return u.Hash + ":" + u.Delta.Coin + ":" + strconv.FormatInt(u.Time, 10)
}

func (u fundingUpdate) at() int64 { return u.Time }

type ledgerUpdate struct {
	Time  int64  `json:"time"`
	Hash  string `json:"hash"`
	Delta struct {
		Type            string `json:"type"`
		USDC            string `json:"usdc"`
		Fee             string `json:"fee"`
		User            string `json:"user"`
		Destination     string `json:"destination"`
		Token           string `json:"token"`
		Amount          string `json:"amount"`
		ToPerp          bool   `json:"toPerp"`
		NetWithdrawnUSD string `json:"netWithdrawnUsd"`
	} `json:"delta"`
}

func (u ledgerUpdate) key() string {
	return u.Hash + ":" + u.Delta.Type + ":" + strconv.FormatInt(u.Time, 10)
}

func (u ledgerUpdate) at() int64 { return u.Time }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func cleanHash(h string) string {
	if h == zeroHash {
		return ""
	}
	return h
}

func millis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// perpFill maps a perp fill to an open or close row. Flips and liquidations
// realize P&L and count as closes.
func perpFill(f fill) (ledger.PerpTransaction, bool) {
	if f.spot() {
		return ledger.PerpTransaction{}, false
	}
	size := dec(f.Sz).Abs()
	if size.IsZero() {
		return ledger.PerpTransaction{}, false
	}

	tx := ledger.PerpTransaction{
		Date:   millis(f.Time),
		Asset:  f.Coin,
		Amount: size.InexactFloat64(),
		Notes:  f.Dir,
		TxHash: cleanHash(f.Hash),
		Tag:    ledger.TagClosePosition,
	}
	if fee := dec(f.Fee); fee.IsPositive() {
		tx.Fee = ledger.Float(fee.InexactFloat64())
	}
	if strings.HasPrefix(f.Dir, "Open") {
		tx.Tag = ledger.TagOpenPosition
		return tx, true
	}
	tx.Pnl = dec(f.ClosedPnl).InexactFloat64()
	tx.PaymentToken = settlementToken
	return tx, true
}

func fundingPayment(u fundingUpdate) (ledger.PerpTransaction, bool) {
	if u.Delta.Type != "funding" || u.Delta.Coin == "" {
		return ledger.PerpTransaction{}, false
	}
	return ledger.PerpTransaction{
		Date:         millis(u.Time),
		Asset:        u.Delta.Coin,
		Amount:       dec(u.Delta.Szi).Abs().InexactFloat64(),
		Pnl:          dec(u.Delta.USDC).InexactFloat64(),
		PaymentToken: settlementToken,
		Notes:        "funding rate " + u.Delta.FundingRate,
		TxHash:       cleanHash(u.Hash),
		Tag:          ledger.TagFundingPayment,
	}, true
}

func spotPair(coin string) (base, quote string) {
	if i := strings.IndexByte(coin, '/'); i > 0 {
		return coin[:i], coin[i+1:]
	}
	return coin, settlementToken
}

func spotTrade(f fill) (ledger.Transaction, bool) {
	if !f.spot() {
		return ledger.Transaction{}, false
	}
	size, px := dec(f.Sz).Abs(), dec(f.Px)
	if size.IsZero() {
		return ledger.Transaction{}, false
	}
	base, quote := spotPair(f.Coin)
	notional := size.Mul(px)

	l := flow.NewLedger()
	if f.Side == "B" {
		l.In(base, size)
		l.Out(quote, notional)
	} else {
		l.Out(base, size)
		l.In(quote, notional)
	}

	tx := ledger.Transaction{Date: millis(f.Time), Type: ledger.TypeTrade, TxHash: cleanHash(f.Hash), Notes: f.Dir}
	feeToken := f.FeeToken
	if feeToken == "" {
		feeToken = quote
	}
	flow.SetFee(&tx, dec(f.Fee), feeToken)
	in, out := l.Legs()
	flow.Apply(&tx, in, out)
	return tx, true
}

// ledgerTransaction maps deposits, withdrawals and transfers. Moves between the
// spot and perp accounts of the same user are self transfers.
func ledgerTransaction(u ledgerUpdate, user string) (ledger.Transaction, bool) {
	d := u.Delta
	tx := ledger.Transaction{Date: millis(u.Time), TxHash: cleanHash(u.Hash), Notes: d.Type}
	l := flow.NewLedger()

	switch d.Type {
	case "deposit":
		l.In(settlementToken, dec(d.USDC))
	case "withdraw":
		l.Out(settlementToken, dec(d.USDC))
		flow.SetFee(&tx, dec(d.Fee), settlementToken)
	case "internalTransfer", "spotTransfer":
		currency, amount := settlementToken, dec(d.USDC)
		if d.Type == "spotTransfer" {
			currency, amount = d.Token, dec(d.Amount)
		}
		switch {
		case strings.EqualFold(d.Destination, user) && strings.EqualFold(d.User, user):
			return flow.SelfTransfer(tx), true
		case strings.EqualFold(d.Destination, user):
			l.In(currency, amount)
		default:
			l.Out(currency, amount)
			flow.SetFee(&tx, dec(d.Fee), settlementToken)
		}
	case "accountClassTransfer":
		tx.Notes = "spot to perp"
		if !d.ToPerp {
			tx.Notes = "perp to spot"
		}
		return flow.SelfTransfer(tx), true
	case "vaultDeposit":
		l.Out(settlementToken, dec(d.USDC))
	case "vaultWithdraw":
		l.In(settlementToken, dec(d.NetWithdrawnUSD))
	default:
		return ledger.Transaction{}, false
	}

	in, out := l.Legs()
	tx.Type = flow.Infer(in, out)
	if tx.Type == "" {
		return ledger.Transaction{}, false
	}
	flow.Apply(&tx, in, out)
	return tx, true
}
