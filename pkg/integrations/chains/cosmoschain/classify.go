package cosmoschain

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/types/ledger"

	"github.com/shopspring/decimal"
)

type txSearchResponse struct {
	TxResponses []txResponse `json:"tx_responses"`
	Total       string       `json:"total"`
}

type txResponse struct {
	Height    string  `json:"height"`
	TxHash    string  `json:"txhash"`
	Code      int     `json:"code"`
	Timestamp string  `json:"timestamp"`
	Tx        txBody  `json:"tx"`
	Events    []event `json:"events"`
}

func (r txResponse) key() string {
	return strings.ToUpper(r.TxHash)
}

type txBody struct {
	Body struct {
		Messages []json.RawMessage `json:"messages"`
		Memo     string            `json:"memo"`
	} `json:"body"`
	AuthInfo struct {
		Fee struct {
			Amount []coin `json:"amount"`
			Payer  string `json:"payer"`
		} `json:"fee"`
	} `json:"auth_info"`
}

type coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type event struct {
	Type       string `json:"type"`
	Attributes []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	} `json:"attributes"`
}

func (e event) attr(key string) string {
	for _, a := range e.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

type message struct {
	Type        string `json:"@type"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address"`
	Sender      string `json:"sender"`
	Delegator   string `json:"delegator_address"`
	Granter     string `json:"granter"`
}

func (m message) signer() string {
	switch {
	case m.FromAddress != "":
		return m.FromAddress
	case m.Sender != "":
		return m.Sender
	case m.Delegator != "":
		return m.Delegator
	default:
		return m.Granter
	}
}

var messageTypes = map[string]ledger.TxType{
	"/cosmos.staking.v1beta1.MsgDelegate":                         ledger.TypeStake,
	"/cosmos.staking.v1beta1.MsgUndelegate":                       ledger.TypeUnstake,
	"/cosmos.staking.v1beta1.MsgBeginRedelegate":                  ledger.TypeOther,
	"/cosmos.distribution.v1beta1.MsgWithdrawDelegatorReward":     ledger.TypeClaim,
	"/cosmos.distribution.v1beta1.MsgWithdrawValidatorCommission": ledger.TypeClaim,
	"/ibc.applications.transfer.v1.MsgTransfer":                   ledger.TypeBridge,
	"/cosmos.authz.v1beta1.MsgGrant":                              ledger.TypeApproval,
	"/cosmos.feegrant.v1beta1.MsgGrantAllowance":                  ledger.TypeApproval,
	"/cosmos.gov.v1beta1.MsgVote":                                 ledger.TypeOther,
	"/cosmos.gov.v1.MsgVote":                                      ledger.TypeOther,
	"/osmosis.gamm.v1beta1.MsgJoinPool":                           ledger.TypeLPAdd,
	"/osmosis.gamm.v1beta1.MsgExitPool":                           ledger.TypeLPRemove,
	"/osmosis.concentratedliquidity.v1beta1.MsgCreatePosition":    ledger.TypeLPAdd,
	"/osmosis.concentratedliquidity.v1beta1.MsgWithdrawPosition":  ledger.TypeLPRemove,
	"/osmosis.concentratedliquidity.v1beta1.MsgCollectIncentives": ledger.TypeClaim,
	"/osmosis.lockup.MsgLockTokens":                               ledger.TypeStake,
	"/osmosis.lockup.MsgBeginUnlocking":                           ledger.TypeUnstake,
	"/osmosis.superfluid.MsgSuperfluidDelegate":                   ledger.TypeStake,
	"/osmosis.superfluid.MsgSuperfluidUndelegate":                 ledger.TypeUnstake,
}

var coinPattern = regexp.MustCompile(`^(\d+)([a-zA-Z][a-zA-Z0-9/:._-]*)$`)

func formatCoins(coins []coin) string {
	parts := make([]string, len(coins))
	for i, c := range coins {
		parts[i] = c.Amount + c.Denom
	}
	return strings.Join(parts, ",")
}

// parseCoins splits an amount attribute such as "100uatom,5ibc/27394F..".
func parseCoins(s string) []coin {
	var out []coin
	for _, part := range strings.Split(s, ",") {
		m := coinPattern.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			continue
		}
		out = append(out, coin{Amount: m[1], Denom: m[2]})
	}
	return out
}

func (n Network) resolve(denom string) (string, int32) {
	if d, ok := n.Denoms[denom]; ok {
		return d.Symbol, d.Exponent
	}
	if strings.HasPrefix(denom, "ibc/") || strings.HasPrefix(denom, "factory/") || strings.HasPrefix(denom, "gamm/") {
		return denom, 0
	}
	if strings.HasPrefix(denom, "u") && len(denom) > 1 {
		return strings.ToUpper(denom[1:]), 6
	}
	return strings.ToUpper(denom), 0
}

func (n Network) amount(c coin) (string, decimal.Decimal, bool) {
	symbol, exp := n.resolve(c.Denom)
	v, ok := flow.ScaleInteger(c.Amount, exp)
	return symbol, v, ok
}

func feePayer(r txResponse, msgs []message) string {
	for _, e := range r.Events {
		if e.Type == "tx" {
			if p := e.attr("fee_payer"); p != "" {
				return p
			}
		}
	}
	if p := r.Tx.AuthInfo.Fee.Payer; p != "" {
		return p
	}
	if len(msgs) > 0 {
		return msgs[0].signer()
	}
	return ""
}

// classify builds one transaction for address from an LCD tx response. Failed
// transactions (non-zero code) are dropped.
func classify(r txResponse, address string, n Network) (ledger.Transaction, bool) {
	if r.Code != 0 || r.TxHash == "" {
		return ledger.Transaction{}, false
	}
	date, err := time.Parse(time.RFC3339, r.Timestamp)
	if err != nil {
		return ledger.Transaction{}, false
	}

	msgs := make([]message, 0, len(r.Tx.Body.Messages))
	for _, raw := range r.Tx.Body.Messages {
		var m message
		if err := json.Unmarshal(raw, &m); err == nil {
			msgs = append(msgs, m)
		}
	}

	tx := ledger.Transaction{Date: date.UTC(), TxHash: r.TxHash, Notes: r.Tx.Body.Memo}

	payer := feePayer(r, msgs)
	fee := r.Tx.AuthInfo.Fee.Amount
	if payer == address {
		for _, c := range fee {
			if symbol, v, ok := n.amount(c); ok {
				flow.SetFee(&tx, v, symbol)
			}
		}
	}

	// the fee reaches the fee collector as an ordinary transfer event; it is
	// reported as the fee and kept out of the flows
	feeSeen := len(fee) == 0
	l := flow.NewLedger()
	for _, e := range r.Events {
		if e.Type != "transfer" {
			continue
		}
		sender, recipient, amount := e.attr("sender"), e.attr("recipient"), e.attr("amount")
		if !feeSeen && sender == payer && amount == formatCoins(fee) {
			feeSeen = true
			continue
		}
		for _, c := range parseCoins(amount) {
			symbol, v, ok := n.amount(c)
			if !ok {
				continue
			}
			if recipient == address {
				l.In(symbol, v)
			}
			if sender == address {
				l.Out(symbol, v)
			}
		}
	}

	in, out := l.Legs()

	if isSelfSend(msgs, address) && len(in) == 0 && len(out) == 0 {
		return flow.SelfTransfer(tx), true
	}

	txType := overrideType(msgs)
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
	if tx.Notes == "" && len(msgs) > 0 {
		tx.Notes = shortType(msgs[0].Type)
	}
	flow.Apply(&tx, in, out)
	return tx, true
}

func overrideType(msgs []message) ledger.TxType {
	for _, m := range msgs {
		if t := messageTypes[m.Type]; t != "" {
			return t
		}
	}
	return ""
}

func isSelfSend(msgs []message, address string) bool {
	if len(msgs) == 0 {
		return false
	}
	for _, m := range msgs {
		if m.Type != "/cosmos.bank.v1beta1.MsgSend" || m.FromAddress != address || m.ToAddress != address {
			return false
		}
	}
	return true
}

func shortType(t string) string {
	if i := strings.LastIndexByte(t, '.'); i >= 0 {
		return t[i+1:]
	}
	return t
}
