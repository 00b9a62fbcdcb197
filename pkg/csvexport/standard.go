package csvexport

import (
	"strconv"

	"awakenfetch/pkg/types/ledger"
)

var standardHeader = []string{
	"Date",
	"Received Quantity", "Received Currency", "Received Fiat Amount",
	"Sent Quantity", "Sent Currency", "Sent Fiat Amount",
	"Fee Amount", "Fee Currency",
	"Transaction Hash", "Notes", "Tag",
}

var trailingHeader = []string{"Fee Amount", "Fee Currency", "Transaction Hash", "Notes", "Tag"}

// RenderStandard renders the ledger CSV. When any row carries additional assets the
// numbered multi-asset header is used, sized to the widest row on either side.
func RenderStandard(txs []ledger.Transaction) string {
	width := assetWidth(txs)
	if width == 0 {
		rows := make([][]string, 0, len(txs))
		for _, tx := range txs {
			rows = append(rows, standardRow(tx))
		}
		return render(standardHeader, rows)
	}

	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, multiAssetRow(tx, width))
	}
	return render(multiAssetHeader(width), rows)
}

// assetWidth returns 0 when no row is multi-asset, else the number of numbered
// groups per side.
func assetWidth(txs []ledger.Transaction) int {
	width := 0
	multi := false
	for _, tx := range txs {
		if tx.IsMultiAsset() {
			multi = true
		}
		width = max(width, 1+len(tx.AdditionalReceived), 1+len(tx.AdditionalSent))
	}
	if !multi {
		return 0
	}
	return width
}

func standardRow(tx ledger.Transaction) []string {
	return []string{
		FormatDate(tx.Date),
		formatOptional(tx.ReceivedQuantity), tx.ReceivedCurrency, formatOptional(tx.ReceivedFiatAmount),
		formatOptional(tx.SentQuantity), tx.SentCurrency, formatOptional(tx.SentFiatAmount),
		formatOptional(tx.FeeAmount), tx.FeeCurrency,
		tx.TxHash, tx.Notes, tx.Tag,
	}
}

func multiAssetHeader(width int) []string {
	header := make([]string, 0, 1+6*width+len(trailingHeader))
	header = append(header, "Date")
	for i := 1; i <= width; i++ {
		n := strconv.Itoa(i)
		header = append(header, "Received Quantity "+n, "Received Currency "+n, "Received Fiat Amount "+n)
	}
	for i := 1; i <= width; i++ {
		n := strconv.Itoa(i)
		header = append(header, "Sent Quantity "+n, "Sent Currency "+n, "Sent Fiat Amount "+n)
	}
	return append(header, trailingHeader...)
}

func multiAssetRow(tx ledger.Transaction, width int) []string {
	row := make([]string, 0, 1+6*width+len(trailingHeader))
	row = append(row, FormatDate(tx.Date))
	row = appendGroups(row, tx.ReceivedQuantity, tx.ReceivedCurrency, tx.ReceivedFiatAmount, tx.AdditionalReceived, width)
	row = appendGroups(row, tx.SentQuantity, tx.SentCurrency, tx.SentFiatAmount, tx.AdditionalSent, width)
	return append(row, formatOptional(tx.FeeAmount), tx.FeeCurrency, tx.TxHash, tx.Notes, tx.Tag)
}

func appendGroups(row []string, qty *float64, currency string, fiat *float64, extra []ledger.AssetEntry, width int) []string {
	row = append(row, formatOptional(qty), currency, formatOptional(fiat))
	for i := 1; i < width; i++ {
		if i-1 < len(extra) {
			e := extra[i-1]
			row = append(row, FormatQuantity(e.Quantity), e.Currency, formatOptional(e.FiatAmount))
			continue
		}
		row = append(row, "", "", "")
	}
	return row
}
