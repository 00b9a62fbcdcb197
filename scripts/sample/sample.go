// Command sample pulls one wallet history from a running server through the
// streaming client and writes it as an Awaken CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"awakenfetch/pkg/client"
	"awakenfetch/pkg/csvexport"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	chainID := flag.String("chain", "ethereum", "chain id")
	address := flag.String("address", "", "wallet address")
	from := flag.String("from", "", "window start, YYYY-MM-DD")
	to := flag.String("to", "", "window end, YYYY-MM-DD")
	out := flag.String("out", "", "csv path, defaults to the export filename")
	flag.Parse()

	if *address == "" {
		log.Fatal("-address is required")
	}

	req := client.Request{ChainID: *chainID, Address: *address}
	var err error
	if req.FromDate, err = parseDay(*from, false); err != nil {
		log.Fatal("Invalid -from:", err)
	}
	if req.ToDate, err = parseDay(*to, true); err != nil {
		log.Fatal("Invalid -to:", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	c, err := client.New(
		client.WithBaseURL(*baseURL),
		client.WithLogger(logger),
		client.WithOnUpdate(func(s client.Snapshot) {
			if s.State == client.StateStreaming {
				fmt.Fprintf(os.Stderr, "\rreceived %d of ~%d", s.Count, s.EstimatedTotal)
			}
		}),
	)
	if err != nil {
		log.Fatal("Failed to create client:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := c.Fetch(ctx, req)
	fmt.Fprintln(os.Stderr)
	if err != nil && len(res.Transactions) == 0 {
		log.Fatal("Fetch failed:", err)
	}
	if res.Partial {
		logger.Warn("history is incomplete", "error", err)
	}

	path := *out
	if path == "" {
		path = csvexport.Filename(*chainID, *address, time.Now())
	}
	if err := os.WriteFile(path, []byte(csvexport.RenderStandard(res.Transactions)), 0o644); err != nil {
		log.Fatal("Failed to write csv:", err)
	}
	fmt.Printf("Wrote %d transactions to %s\n", len(res.Transactions), path)
}

func parseDay(value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
