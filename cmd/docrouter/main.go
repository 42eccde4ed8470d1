package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/repository"
	"github.com/joseph-ayodele/docrouter/internal/server"
)

// app carries settings shared by every subcommand.
type app struct {
	cfg      *common.Config
	logger   *slog.Logger
	debug    bool
	jsonLog  bool
	noLedger bool
	dsn      string
	outDir   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(&app{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "docrouter",
		Short:         "Route layout-model output through the TXT or OCR extraction pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")
	root.PersistentFlags().BoolVar(&a.jsonLog, "log-json", false, "log as JSON instead of text")
	root.PersistentFlags().BoolVar(&a.noLedger, "no-ledger", false, "do not record runs in the ledger database")
	root.PersistentFlags().StringVar(&a.dsn, "db", "", "ledger DSN (default $DB_URL or sqlite://./docrouter.db)")
	root.PersistentFlags().StringVarP(&a.outDir, "out", "o", "", "output directory (default $OUTPUT_DIR or ./output)")

	root.AddCommand(
		pipeCmd(a),
		classifyCmd(a),
		drawCmd(a),
		dumpCmd(a),
		exportCmd(a),
		batchCmd(a),
		runsCmd(a),
		serveCmd(a),
	)
	return root
}

func (a *app) init() error {
	level := slog.LevelInfo
	if a.debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if a.jsonLog {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, opts))
	} else {
		opts.ReplaceAttr = func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return attr
		}
		a.logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	slog.SetDefault(a.logger)

	a.cfg = common.LoadConfig()
	if a.dsn != "" {
		a.cfg.Database.DSN = a.dsn
	}
	if a.outDir != "" {
		a.cfg.Pipeline.OutputDir = a.outDir
	}
	return a.cfg.Validate()
}

// openLedger returns the run repository and a cleanup func; both are nil-safe
// when --no-ledger is set.
func (a *app) openLedger(ctx context.Context) (repository.RunRepository, func(), error) {
	if a.noLedger {
		return nil, func() {}, nil
	}
	db, err := server.ConnectDB(ctx, a.cfg.Database, a.logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewRunRepository(db, a.logger), func() { server.CloseDB(db, a.logger) }, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
