package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/feral-file/ff-storefront-indexer/internal/adapter"
	"github.com/feral-file/ff-storefront-indexer/internal/bridge"
	"github.com/feral-file/ff-storefront-indexer/internal/domain"
	"github.com/feral-file/ff-storefront-indexer/internal/logger"
)

const defaultNatsURL = "nats://127.0.0.1:4222"

type Config struct {
	NatsURL string
	Source  string
	File    string // Input file, stdin when empty
	Debug   bool
}

// Stats counts what happened to each input line
type Stats struct {
	Published int
	Rejected  int
	Skipped   int
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.NatsURL, "nats-url", defaultNatsURL, "NATS server URL")
	flag.StringVar(&cfg.Source, "source", "", "Feed source name, a single subject token (required)")
	flag.StringVar(&cfg.File, "file", "", "File with one candidate per line (default stdin)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -source <feed> [-file candidates.txt]\n\n", os.Args[0])
		fmt.Fprintln(os.Stderr, "Publishes candidate URLs to the discovery bridge. Each line holds a URL,")
		fmt.Fprintln(os.Stderr, "optionally followed by a JSON object with feed metadata.")
		fmt.Fprintln(os.Stderr)
		flag.PrintDefaults()
	}
	flag.Parse()

	if _, err := bridge.SubjectForSource(cfg.Source); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	if err := logger.Initialize(logger.Config{Debug: cfg.Debug}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(time.Second)

	input := io.Reader(os.Stdin)
	if cfg.File != "" {
		f, err := os.Open(cfg.File)
		if err != nil {
			logger.Fatal("Failed to open input", zap.Error(err), zap.String("file", cfg.File))
		}
		defer func() {
			_ = f.Close()
		}()
		input = f
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	publisher, err := bridge.NewPublisher(bridge.PublisherConfig{
		URL:            cfg.NatsURL,
		MaxReconnects:  3,
		ReconnectWait:  time.Second,
		ConnectionName: "submit-candidates-" + cfg.Source,
	}, adapter.NewNatsJetStream())
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NatsURL))
	}
	defer publisher.Close()

	stats, err := submit(ctx, publisher, cfg.Source, input)
	logger.Info("Submission finished",
		zap.Int("published", stats.Published),
		zap.Int("rejected", stats.Rejected),
		zap.Int("skipped", stats.Skipped),
	)
	if err != nil {
		logger.Error(err)
		logger.Flush(time.Second)
		os.Exit(1)
	}
}

// submit publishes every line of r. Malformed lines are counted and skipped, a
// publish failure stops the run.
func submit(ctx context.Context, publisher bridge.Publisher, source string, r io.Reader) (Stats, error) {
	var stats Stats

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		submission, ok, err := parseLine(scanner.Text(), source)
		if err != nil {
			stats.Rejected++
			logger.Warn("Rejected line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		if !ok {
			stats.Skipped++
			continue
		}

		if err := publisher.Publish(ctx, submission); err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				stats.Rejected++
				logger.Warn("Rejected line", zap.Int("line", lineNo), zap.Error(err))
				continue
			}
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
		stats.Published++
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("failed to read input: %w", err)
	}
	return stats, nil
}

// parseLine splits a line into a URL and optional JSON metadata. Blank lines and
// lines starting with # are skipped.
func parseLine(line string, source string) (bridge.Submission, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return bridge.Submission{}, false, nil
	}

	rawURL, rest := line, ""
	if i := strings.IndexAny(line, " \t"); i >= 0 {
		rawURL, rest = line[:i], line[i+1:]
	}

	submission := bridge.Submission{
		URL:    rawURL,
		Source: source,
	}

	rest = strings.TrimSpace(rest)
	if rest != "" {
		if err := json.Unmarshal([]byte(rest), &submission.Metadata); err != nil {
			return bridge.Submission{}, false, fmt.Errorf("invalid metadata: %w", err)
		}
	}

	return submission, true, nil
}
