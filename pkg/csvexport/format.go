// Package csvexport renders canonical transactions into the Awaken tax import CSV.
package csvexport

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout       = "01/02/2006 15:04:05"
	maxFractionDigit = 8
)

// FormatQuantity renders the magnitude of v as a plain decimal truncated to 8
// fractional digits. NaN and infinities render empty.
func FormatQuantity(v float64) string {
	return FormatSigned(math.Abs(v))
}

// FormatSigned is FormatQuantity keeping the sign, used for P&L.
func FormatSigned(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	d := decimal.NewFromFloat(v).Truncate(maxFractionDigit)
	if d.IsZero() {
		return "0"
	}
	return d.String()
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatQuantity(*v)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Escape quotes a field holding a comma, double quote or line break.
func Escape(field string) string {
	if !strings.ContainsAny(field, ",\"\n\r") {
		return field
	}
	return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
}

func joinRow(sb *strings.Builder, fields []string) {
	for i, f := range fields {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(Escape(f))
	}
}

func render(header []string, rows [][]string) string {
	var sb strings.Builder
	joinRow(&sb, header)
	for _, row := range rows {
		sb.WriteByte('\n')
		joinRow(&sb, row)
	}
	return sb.String()
}

// Filename is the download name for a standard export.
func Filename(chainID, address string, now time.Time) string {
	return "awakenfetch_" + chainID + "_" + addressPrefix(address) + "_" + now.UTC().Format("20060102") + ".csv"
}

func PerpsFilename(chainID, address string, now time.Time) string {
	return "awakenfetch_" + chainID + "_perps_" + addressPrefix(address) + "_" + now.UTC().Format("20060102") + ".csv"
}

func addressPrefix(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:8]
}
