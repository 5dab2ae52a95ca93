package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cognicore/ifice/internal/logging"
	"github.com/cognicore/ifice/internal/storeopen"
	"github.com/cognicore/ifice/pkg/ifice"
	"github.com/cognicore/ifice/pkg/ifice/analytics"
	"github.com/cognicore/ifice/pkg/ifice/config"
	"github.com/cognicore/ifice/pkg/ifice/ingest"
)

type options struct {
	taxonomyPath string
	configPath   string
	dbPath       string
	dryRun       bool
	report       bool
}

func main() {
	var (
		taxonomyPath = flag.String("taxonomy", "", "Taxonomy file (default: built-in)")
		configPath   = flag.String("config", "", "Engine config file (default: built-in)")
		dbPath       = flag.String("db", "", "SQLite database for counters and ledger (default: in-memory)")
		inputPath    = flag.String("input", "-", "Registration JSON or JSONL file, - for stdin")
		dryRun       = flag.Bool("dry-run", false, "Classify only; do not allocate sequence numbers")
		report       = flag.Bool("report", false, "Print a coverage report to stderr after the batch")
		logLevel     = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	logger, err := logging.New(*logLevel, "console", "ifice-classify")
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	in := io.Reader(os.Stdin)
	if *inputPath != "-" {
		f, err := os.Open(*inputPath)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		in = f
	}

	opts := options{
		taxonomyPath: *taxonomyPath,
		configPath:   *configPath,
		dbPath:       *dbPath,
		dryRun:       *dryRun,
		report:       *report,
	}
	if err := run(context.Background(), opts, logger, in, os.Stdout, os.Stderr); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger, in io.Reader, out, reportOut io.Writer) error {
	engine, cleanup, err := buildEngine(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	dec := json.NewDecoder(in)
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	analyzer := analytics.NewAnalyzer(engine.Taxonomy())

	for n := 1; ; n++ {
		var reg ingest.RegistrationInput
		if err := dec.Decode(&reg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("record %d: %w", n, err)
		}

		c, err := engine.Classify(ctx, reg)
		if err != nil {
			return fmt.Errorf("record %d (%s): %w", n, reg.Name, err)
		}
		analyzer.Process(c)

		var result any = c
		if !opts.dryRun {
			if result, err = engine.Allocate(ctx, c); err != nil {
				return fmt.Errorf("record %d (%s): %w", n, reg.Name, err)
			}
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}

	if !opts.report {
		return nil
	}
	renc := json.NewEncoder(reportOut)
	renc.SetEscapeHTML(false)
	renc.SetIndent("", "  ")
	return renc.Encode(analyzer.Snapshot())
}

func buildEngine(ctx context.Context, opts options, logger *zap.Logger) (*ifice.Engine, func(), error) {
	loader := config.Loader{
		TaxonomyPath: opts.taxonomyPath,
		EnginePath:   opts.configPath,
	}
	components, err := loader.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	params := storeopen.Params{Kind: storeopen.Memory}
	if opts.dbPath != "" {
		params = storeopen.Params{Kind: storeopen.SQLite, DSN: opts.dbPath}
	}
	st, err := storeopen.Open(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := ifice.NewFromComponents(components, ifice.Options{
		Store:  st,
		Logger: logger,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	cleanup := func() {
		engine.Close()
	}
	return engine, cleanup, nil
}
