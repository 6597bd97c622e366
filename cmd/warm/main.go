// Command warm fills the price cache for a list of tickers, pacing provider
// calls exactly like the server's worker, and prints each ticker's outcome.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"eodprices/internal/cli"
	"eodprices/internal/config"
	pricepersist "eodprices/internal/persistence/prices"
	"eodprices/internal/pricecache"
	"eodprices/internal/queue"
	"eodprices/internal/svc"
)

func main() {
	configPath := flag.String("f", "etc/eodprices.yaml", "the config file")
	symbols := flag.String("symbols", "", "comma separated tickers")
	listFile := flag.String("list", "", "file with one ticker per line")
	force := flag.Bool("force", false, "refetch tickers that are still fresh")
	flag.Parse()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[warm] load config: %v", err)
	}
	for _, line := range cli.ConfigSummaryLines(cfg) {
		log.Printf("[warm]   - %s", line)
	}

	tickers := parseSymbols(*symbols)
	if *listFile != "" {
		fromFile, err := readList(*listFile)
		if err != nil {
			log.Fatalf("[warm] read list: %v", err)
		}
		tickers = append(tickers, fromFile...)
	}
	tickers = dedupe(tickers)
	if len(tickers) == 0 {
		log.Fatalf("[warm] no tickers given; use -symbols or -list")
	}

	sc, err := svc.Build(*cfg)
	if err != nil {
		log.Fatalf("[warm] build service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	fresh := 0
	for _, ticker := range tickers {
		if *force {
			sc.Prices.Enqueue(ticker)
			continue
		}
		if res := sc.Prices.GetOrFetch(ctx, ticker); res.State == pricecache.StateReady {
			fresh++
		}
	}
	log.Printf("[warm] %d tickers, %d fresh, %d queued, interval %s", len(tickers), fresh, sc.Queue.Len(), sc.Worker.Interval())

	handled, err := sc.Worker.Drain(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[warm] drain stopped: %v", err)
	}
	log.Printf("[warm] processed %d jobs in %s", handled, time.Since(start).Round(time.Millisecond))

	failed := printSummary(os.Stdout, sc.Queue, sc.Store, tickers)
	if failed > 0 {
		os.Exit(1)
	}
}

type latestReader interface {
	GetLatest(ctx context.Context, ticker string) (*pricepersist.Record, error)
}

// printSummary writes one row per ticker and returns how many failed: jobs that
// ended in error and tickers with neither a job nor a stored close.
func printSummary(out io.Writer, jobs *queue.Queue, store latestReader, tickers []string) int {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "TICKER\tSTATUS\tDATE\tCLOSE\tSOURCE")
	failed := 0
	ctx := context.Background()
	for _, ticker := range tickers {
		status := "fresh"
		job, hasJob := jobs.Status(ticker)
		if hasJob {
			status = string(job.Status)
			if job.Status == queue.StatusError {
				failed++
				status += " (" + job.Reason + ")"
			}
		}
		latest, err := store.GetLatest(ctx, ticker)
		if err != nil || latest == nil {
			if !hasJob {
				failed++
				status = "missing"
			}
			fmt.Fprintf(w, "%s\t%s\t-\t-\t-\n", ticker, status)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.4f\t%s\n", ticker, status, latest.Date, latest.Close, latest.Source)
	}
	return failed
}

func parseSymbols(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.ToUpper(strings.TrimSpace(f)); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func readList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	var out []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, parseSymbols(line)...)
	}
	return out, scanner.Err()
}

func dedupe(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
