package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/export"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/repository"
)

func exportCmd(a *app) *cobra.Command {
	var includeRuns bool
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "export <output.xlsx> [document...]",
		Short: "Summarise detections per page (and optionally the run ledger) as XLSX",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			loader := ingest.NewLoader(a.logger)
			var docs []export.Document
			for _, path := range args[1:] {
				records, err := loader.LoadRecords(ingest.ModelPathFor(path))
				if err != nil {
					return err
				}
				docs = append(docs, export.Document{Path: path, Records: records})
			}

			var runs repository.RunRepository
			var filter *repository.ListFilter
			if includeRuns {
				r, closeLedger, err := a.openLedger(ctx)
				if err != nil {
					return err
				}
				defer closeLedger()
				runs = r
				filter = &repository.ListFilter{Status: constants.RunStatus(strings.ToUpper(status)), Limit: limit}
			}

			xlsx, err := export.NewService(runs, a.logger).ExportXLSX(ctx, docs, filter)
			if err != nil {
				return err
			}
			return os.WriteFile(args[0], xlsx, 0o644)
		},
	}
	cmd.Flags().BoolVar(&includeRuns, "runs", false, "add a Runs sheet from the ledger")
	cmd.Flags().StringVar(&status, "status", "", "only export runs with this status")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of runs (0 = all)")
	return cmd
}
