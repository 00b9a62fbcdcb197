package csvexport

import "awakenfetch/pkg/types/ledger"

var perpsHeader = []string{"Date", "Asset", "Amount", "Fee", "P&L", "Payment Token", "Notes", "Transaction Hash", "Tag"}

// RenderPerps renders the fixed nine column perpetuals CSV. Only P&L keeps its sign.
func RenderPerps(txs []ledger.PerpTransaction) string {
	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{
			FormatDate(tx.Date),
			tx.Asset,
			FormatQuantity(tx.Amount),
			formatOptional(tx.Fee),
			FormatSigned(tx.Pnl),
			tx.PaymentToken,
			tx.Notes,
			tx.TxHash,
			string(tx.Tag),
		})
	}
	return render(perpsHeader, rows)
}
