package csvexport

import (
	"math"
	"strings"
	"testing"
	"time"

	"awakenfetch/pkg/types/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const standardHeaderLine = "Date,Received Quantity,Received Currency,Received Fiat Amount,Sent Quantity,Sent Currency,Sent Fiat Amount,Fee Amount,Fee Currency,Transaction Hash,Notes,Tag"

func TestFormatQuantity(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{in: 9.999, want: "9.999"},
		{in: 1e-8, want: "0.00000001"},
		{in: 1e12, want: "1000000000000"},
		{in: 0.123456789, want: "0.12345678"},
		{in: 0.1, want: "0.1"},
		{in: 1.10000000, want: "1.1"},
		{in: -2.5, want: "2.5"},
		{in: math.Copysign(0, -1), want: "0"},
		{in: 1e-9, want: "0"},
		{in: math.NaN(), want: ""},
		{in: math.Inf(1), want: ""},
		{in: math.Inf(-1), want: ""},
	}
	for _, tt := range tests {
		got := FormatQuantity(tt.in)
		assert.Equal(t, tt.want, got, "input %v", tt.in)
		assert.NotContains(t, got, "e")
		assert.False(t, strings.HasPrefix(got, "-"))
	}
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "-12.5", FormatSigned(-12.5))
	assert.Equal(t, "3.14159265", FormatSigned(3.141592653589))
	assert.Equal(t, "0", FormatSigned(math.Copysign(0, -1)))
	assert.Equal(t, "", FormatSigned(math.NaN()))
}

func TestFormatDate_AlwaysUTC(t *testing.T) {
	tz := time.FixedZone("UTC+9", 9*3600)
	local := time.Date(2025, 1, 15, 23, 30, 5, 0, tz)
	assert.Equal(t, "01/15/2025 14:30:05", FormatDate(local))
	assert.Equal(t, "03/04/2024 01:02:03", FormatDate(time.Date(2024, 3, 4, 1, 2, 3, 0, time.UTC)))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "plain", Escape("plain"))
	assert.Equal(t, `"a,b"`, Escape("a,b"))
	assert.Equal(t, `"say ""hi"""`, Escape(`say "hi"`))
	assert.Equal(t, "\"line\nbreak\"", Escape("line\nbreak"))
}

func TestRenderStandard_Empty(t *testing.T) {
	assert.Equal(t, standardHeaderLine, RenderStandard(nil))
	assert.Equal(t, standardHeaderLine, RenderStandard([]ledger.Transaction{}))
}

func TestRenderStandard_SendRow(t *testing.T) {
	txs := []ledger.Transaction{{
		Date:         time.Date(2025, 1, 15, 14, 30, 0, 0, time.UTC),
		Type:         ledger.TypeSend,
		SentQuantity: ledger.Float(9.999),
		SentCurrency: "USDC",
		FeeAmount:    ledger.Float(0.001),
		FeeCurrency:  "ETH",
		TxHash:       "0xabc123",
	}}

	got := RenderStandard(txs)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, standardHeaderLine, lines[0])
	assert.Equal(t, "01/15/2025 14:30:00,,,,9.999,USDC,,0.001,ETH,0xabc123,,", lines[1])
}

func TestRenderStandard_NegativeQuantitiesAsMagnitude(t *testing.T) {
	txs := []ledger.Transaction{{
		Date:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		ReceivedQuantity: ledger.Float(-4),
		ReceivedCurrency: "ATOM",
	}}
	lines := strings.Split(RenderStandard(txs), "\n")
	assert.Equal(t, "01/01/2025 00:00:00,4,ATOM,,,,,,,,,", lines[1])
}

func TestRenderStandard_MultiAssetFieldCounts(t *testing.T) {
	date := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	txs := []ledger.Transaction{
		{
			Date:             date,
			Type:             ledger.TypeLPAdd,
			SentQuantity:     ledger.Float(1),
			SentCurrency:     "ETH",
			ReceivedQuantity: ledger.Float(2),
			ReceivedCurrency: "LP",
			AdditionalSent: []ledger.AssetEntry{
				{Quantity: 3000, Currency: "USDC"},
				{Quantity: 5, Currency: "DAI", FiatAmount: ledger.Float(5)},
			},
		},
		{
			Date:             date,
			Type:             ledger.TypeReceive,
			ReceivedQuantity: ledger.Float(1),
			ReceivedCurrency: "ETH",
			Notes:            "plain",
		},
		{
			Date:             date,
			Type:             ledger.TypeLPRemove,
			ReceivedQuantity: ledger.Float(1),
			ReceivedCurrency: "ETH",
			AdditionalReceived: []ledger.AssetEntry{
				{Quantity: 10, Currency: "USDC"},
			},
		},
	}

	out := RenderStandard(txs)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)

	header := strings.Split(lines[0], ",")
	assert.Len(t, header, 1+3*3+3*3+5)
	assert.Equal(t, "Received Quantity 1", header[1])
	assert.Equal(t, "Received Fiat Amount 3", header[9])
	assert.Equal(t, "Sent Quantity 1", header[10])
	assert.Equal(t, "Fee Amount", header[19])
	assert.Equal(t, "Tag", header[len(header)-1])

	for _, line := range lines[1:] {
		assert.Len(t, strings.Split(line, ","), len(header))
	}

	first := strings.Split(lines[1], ",")
	assert.Equal(t, "2", first[1])
	assert.Equal(t, "LP", first[2])
	assert.Equal(t, "", first[4])
	assert.Equal(t, "1", first[10])
	assert.Equal(t, "ETH", first[11])
	assert.Equal(t, "3000", first[13])
	assert.Equal(t, "DAI", first[17])
	assert.Equal(t, "5", first[18])
}

func TestRenderStandard_Idempotent(t *testing.T) {
	txs := []ledger.Transaction{
		{Date: time.Unix(1700000000, 0), ReceivedQuantity: ledger.Float(0.5), ReceivedCurrency: "SOL", Notes: `memo, "quoted"`},
		{Date: time.Unix(1700000100, 0), SentQuantity: ledger.Float(1), SentCurrency: "SOL", AdditionalSent: []ledger.AssetEntry{{Quantity: 1, Currency: "BONK"}}},
	}
	assert.Equal(t, RenderStandard(txs), RenderStandard(txs))
}

func TestRenderStandard_EscapesNotes(t *testing.T) {
	txs := []ledger.Transaction{{
		Date:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Notes: `swap, "fast"`,
	}}
	lines := strings.Split(RenderStandard(txs), "\n")
	assert.Equal(t, `01/01/2025 00:00:00,,,,,,,,,,"swap, ""fast""",`, lines[1])
}

func TestRenderPerps(t *testing.T) {
	date := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	txs := []ledger.PerpTransaction{
		{Date: date, Asset: "BTC", Amount: -0.5, Fee: ledger.Float(-1.25), Pnl: 0, Tag: ledger.TagOpenPosition, TxHash: "0x1"},
		{Date: date, Asset: "BTC", Amount: 0.5, Fee: ledger.Float(1.3), Pnl: -42.123456789, PaymentToken: "USDC", Tag: ledger.TagClosePosition},
		{Date: date, Asset: "ETH", Amount: 2, Pnl: 0.75, PaymentToken: "USDC", Tag: ledger.TagFundingPayment},
	}

	out := RenderPerps(txs)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "Date,Asset,Amount,Fee,P&L,Payment Token,Notes,Transaction Hash,Tag", lines[0])
	assert.Equal(t, "03/10/2025 08:00:00,BTC,0.5,1.25,0,,,0x1,open_position", lines[1])
	assert.Equal(t, "03/10/2025 08:00:00,BTC,0.5,1.3,-42.12345678,USDC,,,close_position", lines[2])
	assert.Equal(t, "03/10/2025 08:00:00,ETH,2,,0.75,USDC,,,funding_payment", lines[3])

	for _, line := range lines[1:] {
		fields := strings.Split(line, ",")
		require.Len(t, fields, 9)
		for i, f := range fields {
			if i == 4 {
				continue
			}
			assert.False(t, strings.HasPrefix(f, "-"), "column %d of %q", i, line)
		}
	}
}

func TestRenderPerps_Empty(t *testing.T) {
	assert.Equal(t, "Date,Asset,Amount,Fee,P&L,Payment Token,Notes,Transaction Hash,Tag", RenderPerps(nil))
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, 6, 7, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "awakenfetch_ethereum_0x1234ab_20250607.csv", Filename("ethereum", "0x1234abcdef", now))
	assert.Equal(t, "awakenfetch_osmosis_osmo_20250607.csv", Filename("osmosis", "osmo", now))
	assert.Equal(t, "awakenfetch_hyperliquid_perps_0xdeadbe_20250607.csv", PerpsFilename("hyperliquid", "0xdeadbeef00", now))
}
