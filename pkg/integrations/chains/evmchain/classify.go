package evmchain

import (
	"strconv"
	"strings"
	"time"

	"awakenfetch/pkg/integrations/chains/flow"
	"awakenfetch/pkg/types/ledger"

	"github.com/shopspring/decimal"
)

const (
	actionNormal   = "txlist"
	actionInternal = "txlistinternal"
	actionToken    = "tokentx"

	nativeDecimals = 18
)

// record is the union of the three Etherscan account actions.
type record struct {
	Kind            string `json:"-"`
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	GasPrice        string `json:"gasPrice"`
	GasUsed         string `json:"gasUsed"`
	IsError         string `json:"isError"`
	ReceiptStatus   string `json:"txreceipt_status"`
	MethodID        string `json:"methodId"`
	FunctionName    string `json:"functionName"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
	TokenDecimal    string `json:"tokenDecimal"`
	LogIndex        string `json:"logIndex"`
	TraceID         string `json:"traceId"`
}

func (r record) key() string {
	switch r.Kind {
	case actionToken:
		return r.Kind + ":" + r.Hash + ":" + r.LogIndex + ":" + r.ContractAddress + ":" + r.From + ":" + r.To + ":" + r.Value
	case actionInternal:
		return r.Kind + ":" + r.Hash + ":" + r.TraceID + ":" + r.From + ":" + r.To + ":" + r.Value
	default:
		return r.Kind + ":" + r.Hash
	}
}

func (r record) failed() bool {
	return r.IsError == "1" || r.ReceiptStatus == "0"
}

func (r record) at() time.Time {
	secs, _ := strconv.ParseInt(r.TimeStamp, 10, 64)
	return time.Unix(secs, 0).UTC()
}

type group struct {
	hash     string
	normal   *record
	internal []record
	tokens   []record
}

// groupByHash keeps the first-seen order of hashes.
func groupByHash(records []record) []*group {
	byHash := make(map[string]*group)
	var order []*group
	for i := range records {
		r := records[i]
		hash := strings.ToLower(r.Hash)
		g, ok := byHash[hash]
		if !ok {
			g = &group{hash: r.Hash}
			byHash[hash] = g
			order = append(order, g)
		}
		switch r.Kind {
		case actionNormal:
			g.normal = &r
		case actionInternal:
			g.internal = append(g.internal, r)
		case actionToken:
			g.tokens = append(g.tokens, r)
		}
	}
	return order
}

var (
	approvalSelectors = map[string]bool{
		"0x095ea7b3": true, // approve(address,uint256)
		"0xa22cb465": true, // setApprovalForAll(address,bool)
	}
	lpAddSelectors = map[string]bool{
		"0xe8e33700": true, // addLiquidity
		"0xf305d719": true, // addLiquidityETH
	}
	lpRemoveSelectors = map[string]bool{
		"0xbaa2abde": true, // removeLiquidity
		"0x02751cec": true, // removeLiquidityETH
		"0xaf2979eb": true, // removeLiquidityETHSupportingFeeOnTransferTokens
		"0x2195995c": true, // removeLiquidityWithPermit
		"0xded9382a": true, // removeLiquidityETHWithPermit
	}
)

func methodType(r *record) ledger.TxType {
	if r == nil {
		return ""
	}
	selector := strings.ToLower(r.MethodID)
	name := strings.ToLower(r.FunctionName)
	switch {
	case approvalSelectors[selector], strings.HasPrefix(name, "approve("), strings.HasPrefix(name, "setapprovalforall("):
		return ledger.TypeApproval
	case lpAddSelectors[selector], strings.HasPrefix(name, "addliquidity"):
		return ledger.TypeLPAdd
	case lpRemoveSelectors[selector], strings.HasPrefix(name, "removeliquidity"):
		return ledger.TypeLPRemove
	default:
		return ""
	}
}

func methodName(r *record) string {
	if r == nil || r.FunctionName == "" {
		return ""
	}
	if i := strings.IndexByte(r.FunctionName, '('); i > 0 {
		return r.FunctionName[:i]
	}
	return r.FunctionName
}

// classify turns one hash group into a transaction for addr, which must be lowercase.
func classify(g *group, addr, ticker string) (ledger.Transaction, bool) {
	if g.normal != nil && g.normal.failed() {
		return ledger.Transaction{}, false
	}

	var date time.Time
	switch {
	case g.normal != nil:
		date = g.normal.at()
	case len(g.tokens) > 0:
		date = g.tokens[0].at()
	case len(g.internal) > 0:
		date = g.internal[0].at()
	}

	l := flow.NewLedger()
	selfTransfer := false
	if n := g.normal; n != nil {
		from, to := strings.ToLower(n.From), strings.ToLower(n.To)
		if v, ok := flow.ScaleInteger(n.Value, nativeDecimals); ok && !v.IsZero() {
			if from == addr && to == addr {
				selfTransfer = true
			} else {
				move(l, from, to, addr, ticker, v)
			}
		}
	}
	for _, r := range g.internal {
		if r.failed() {
			continue
		}
		if v, ok := flow.ScaleInteger(r.Value, nativeDecimals); ok {
			move(l, strings.ToLower(r.From), strings.ToLower(r.To), addr, ticker, v)
		}
	}
	for _, r := range g.tokens {
		decimals, err := strconv.Atoi(r.TokenDecimal)
		if err != nil {
			decimals = 0
		}
		symbol := r.TokenSymbol
		if symbol == "" {
			symbol = r.ContractAddress
		}
		if v, ok := flow.ScaleInteger(r.Value, int32(decimals)); ok {
			move(l, strings.ToLower(r.From), strings.ToLower(r.To), addr, symbol, v)
		}
	}

	tx := ledger.Transaction{Date: date, TxHash: g.hash, Notes: methodName(g.normal)}
	if n := g.normal; n != nil && strings.ToLower(n.From) == addr {
		flow.SetFee(&tx, gasFee(n), ticker)
	}

	in, out := l.Legs()
	if selfTransfer && len(in) == 0 && len(out) == 0 {
		return flow.SelfTransfer(tx), true
	}

	txType := methodType(g.normal)
	if txType == "" {
		txType = flow.Infer(in, out)
	}
	if txType == "" {
		// a contract call that moved nothing is still kept when the address paid gas
		if tx.FeeAmount == nil {
			return ledger.Transaction{}, false
		}
		txType = ledger.TypeOther
	}
	tx.Type = txType
	flow.Apply(&tx, in, out)
	return tx, true
}

func move(l *flow.Ledger, from, to, addr, currency string, v decimal.Decimal) {
	if to == addr {
		l.In(currency, v)
	}
	if from == addr {
		l.Out(currency, v)
	}
}

func gasFee(r *record) decimal.Decimal {
	price, ok := flow.ScaleInteger(r.GasPrice, 0)
	if !ok {
		return decimal.Zero
	}
	used, ok := flow.ScaleInteger(r.GasUsed, 0)
	if !ok {
		return decimal.Zero
	}
	return price.Mul(used).Shift(-nativeDecimals)
}
