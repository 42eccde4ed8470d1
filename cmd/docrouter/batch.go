package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/docrouter/internal/async"
	"github.com/joseph-ayodele/docrouter/internal/export"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
)

func batchCmd(a *app) *cobra.Command {
	var flags pipeFlags
	var (
		workers    int
		queueSize  int
		timeout    time.Duration
		skipHidden bool
		exts       []string
		watch      bool
		debounce   time.Duration
		xlsxPath   string
	)

	cmd := &cobra.Command{
		Use:   "batch <dir>",
		Short: "Route every document with model output under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			root := args[0]

			runs, closeLedger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger()
			proc := pipeline.NewProcessor(a.logger, nil, runs, pipeline.ConfigFrom(a.cfg, a.logger))

			var (
				mu     sync.Mutex
				docs   []export.Document
				failed int
			)
			queue := async.NewProcessorQueue(proc, a.logger,
				async.WithWorkers(pick(workers, a.cfg.Pipeline.Workers)),
				async.WithQueueSize(pick(queueSize, a.cfg.Pipeline.QueueSize)),
				async.WithProcessTimeout(pickDuration(timeout, a.cfg.Pipeline.Timeout)),
				async.WithOnDone(func(job async.Job, out *pipeline.Outcome, err error) {
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						failed++
						return
					}
					docs = append(docs, export.Document{Path: out.Path, ParseType: out.ParseType, Records: out.Records})
				}),
			)

			tmpl := flags.request(cmd, "")
			g, gctx := errgroup.WithContext(ctx)
			if watch {
				events, errs, err := ingest.StartWatcher(gctx, ingest.WatchConfig{
					Roots:       []string{root},
					AllowedExts: exts,
					InitialScan: true,
					Debounce:    debounce,
				}, a.logger)
				if err != nil {
					return err
				}
				g.Go(func() error {
					for err := range errs {
						a.logger.Warn("watch error", "error", err)
					}
					return nil
				})
				g.Go(func() error {
					_, err := async.Feed(gctx, queue, events, tmpl, a.logger)
					return err
				})
			} else {
				docPaths, problems, stats, err := ingest.ScanDirectory(ctx, root, exts, skipHidden)
				if err != nil {
					return err
				}
				for _, p := range problems {
					a.logger.Warn("skipped", "path", p.Path, "reason", p.Err)
				}
				a.logger.Info("directory scanned",
					"root", root, "scanned", stats.Scanned, "matched", stats.Matched,
					"skipped", stats.Skipped, "failed", stats.Failed)
				paths := make(chan string)
				g.Go(func() error {
					defer close(paths)
					for _, p := range docPaths {
						select {
						case paths <- p:
						case <-gctx.Done():
							return nil
						}
					}
					return nil
				})
				g.Go(func() error {
					_, err := async.Feed(gctx, queue, paths, tmpl, a.logger)
					return err
				})
			}
			werr := g.Wait()

			queue.Shutdown(context.WithoutCancel(ctx))
			if werr != nil {
				return werr
			}

			mu.Lock()
			defer mu.Unlock()
			a.logger.Info("batch finished", "succeeded", len(docs), "failed", failed)
			if xlsxPath != "" {
				xlsx, err := export.NewService(runs, a.logger).ExportXLSX(ctx, docs, nil)
				if err != nil {
					return err
				}
				if err := os.WriteFile(xlsxPath, xlsx, 0o644); err != nil {
					return err
				}
			}
			return printJSON(cmd, map[string]int{"succeeded": len(docs), "failed": failed})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent documents (default $PIPE_WORKERS)")
	cmd.Flags().IntVar(&queueSize, "queue", 0, "queue capacity (default $PIPE_QUEUE_SIZE)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-document timeout (default $PIPE_TIMEOUT)")
	cmd.Flags().BoolVar(&skipHidden, "skip-hidden", true, "skip dot files and directories")
	cmd.Flags().StringSliceVar(&exts, "ext", nil, "document extensions to include (default: all supported)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching the directory for new documents until interrupted")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "coalesce file events within this window (--watch)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "write a per-page XLSX summary of the batch to this path")
	return cmd
}

func pick(flag, fallback int) int {
	if flag > 0 {
		return flag
	}
	return fallback
}

func pickDuration(flag, fallback time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return fallback
}
