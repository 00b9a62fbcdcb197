package controller

import (
	"fmt"
	"net/http"

	"awakenfetch/internal/models"
	"awakenfetch/pkg/csvexport"
	"awakenfetch/pkg/integrations/httpfetch"
	"awakenfetch/pkg/integrations/stream"
	"awakenfetch/pkg/types/events"
	"awakenfetch/pkg/types/ledger"
	streamtypes "awakenfetch/pkg/types/stream"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const csvContentType = "text/csv; charset=utf-8"

func cacheHeader(ctx *gin.Context, cached bool) {
	if cached {
		ctx.Header("X-Cache", "HIT")
		return
	}
	ctx.Header("X-Cache", "MISS")
}

// ListTransactions returns the whole history as one JSON document.
func (c *Controller) ListTransactions(ctx *gin.Context) {
	opts, ok := fetchOptions(ctx)
	if !ok {
		return
	}
	currency, ok := c.fiatCurrency(ctx)
	if !ok {
		return
	}

	res, err := c.txs.Fetch(ctx.Request.Context(), ctx.Param("chain"), ctx.Param("address"), opts)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}

	txs := c.valued(ctx, currency, res.Transactions)
	if txs == nil {
		txs = []ledger.Transaction{}
	}
	cacheHeader(ctx, res.Cached)
	ctx.JSON(http.StatusOK, streamtypes.ListResponse{Transactions: txs})
}

type ndjsonSink struct {
	w         *stream.Writer
	estimated bool
}

func (s *ndjsonSink) Estimate(total int) {
	if s.estimated || total <= 0 {
		return
	}
	s.estimated = true
	_ = s.w.Write(streamtypes.Meta(total))
}

func (s *ndjsonSink) Batch(txs []ledger.Transaction) error {
	return s.w.Write(streamtypes.Batch(txs))
}

// StreamTransactions writes the history as NDJSON while pages arrive. Lookup and
// validation failures are answered with a JSON error before the stream starts;
// later failures end the stream with an error message.
func (c *Controller) StreamTransactions(ctx *gin.Context) {
	opts, ok := fetchOptions(ctx)
	if !ok {
		return
	}
	chainID, address := ctx.Param("chain"), ctx.Param("address")
	if _, err := c.txs.Adapter(chainID, address); err != nil {
		c.fetchError(ctx, err)
		return
	}

	streamID := uuid.NewString()
	logger := c.logger.With("stream_id", streamID, "chain", chainID, "address", address)

	ctx.Header("Content-Type", streamtypes.ContentType)
	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Header("X-Stream-Id", streamID)
	ctx.Status(http.StatusOK)

	c.metrics.StreamOpened()
	defer c.metrics.StreamClosed()

	sink := &ndjsonSink{w: stream.NewWriter(ctx.Writer)}
	res, err := c.txs.Stream(ctx.Request.Context(), chainID, address, opts, sink)
	if err != nil {
		if ctx.Request.Context().Err() != nil {
			logger.Info("stream client disconnected")
			return
		}
		logger.Warn("stream failed", "error", err)
		_ = sink.w.Write(streamtypes.Failure(streamErrorCode(err), err.Error()))
		return
	}

	if err := sink.w.Write(streamtypes.Done(len(res.Transactions))); err != nil {
		logger.Warn("failed to finish stream", "error", err)
		return
	}
	logger.Debug("stream finished", "count", len(res.Transactions), "cached", res.Cached)
}

func streamErrorCode(err error) string {
	switch {
	case errors.Is(err, httpfetch.ErrRateLimitExceeded):
		return streamtypes.CodeRateLimited
	case errors.Is(err, httpfetch.ErrUpstream), errors.Is(err, httpfetch.ErrDecode):
		return streamtypes.CodeUpstream
	default:
		return ""
	}
}

// ExportTransactionsCSV downloads the history in Awaken's standard CSV layout.
func (c *Controller) ExportTransactionsCSV(ctx *gin.Context) {
	opts, ok := fetchOptions(ctx)
	if !ok {
		return
	}
	currency, ok := c.fiatCurrency(ctx)
	if !ok {
		return
	}
	chainID, address := ctx.Param("chain"), ctx.Param("address")

	adapter, err := c.txs.Adapter(chainID, address)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}
	res, err := c.txs.Fetch(ctx.Request.Context(), chainID, address, opts)
	if err != nil {
		c.fetchError(ctx, err)
		return
	}

	filename := csvexport.Filename(chainID, address, c.exports.Now())
	c.sendCSV(ctx, filename, adapter.ToAwakenCSV(c.valued(ctx, currency, res.Transactions)))
	c.recordExport(events.ExportCompleted{
		Kind:     models.ExportKindStandard,
		ChainID:  chainID,
		Address:  address,
		FromDate: opts.FromDate,
		ToDate:   opts.ToDate,
		Rows:     len(res.Transactions),
		Filename: filename,
	})
}

func (c *Controller) sendCSV(ctx *gin.Context, filename, body string) {
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	ctx.Data(http.StatusOK, csvContentType, []byte(body))
}

// recordExport failures never fail a download that was already written.
func (c *Controller) recordExport(ev events.ExportCompleted) {
	if err := c.exports.Record(ev); err != nil {
		c.logger.Warn("failed to record export", "chain", ev.ChainID, "kind", ev.Kind, "error", err)
	}
}
