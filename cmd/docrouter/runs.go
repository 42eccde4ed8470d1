package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/constants"
	"github.com/joseph-ayodele/docrouter/internal/repository"
	"github.com/joseph-ayodele/docrouter/internal/utils"
)

func runsCmd(a *app) *cobra.Command {
	var filter repository.ListFilter
	var status string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipe runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.noLedger {
				return errors.New("runs needs the ledger; drop --no-ledger")
			}
			runs, closeLedger, err := a.openLedger(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLedger()

			filter.Status = constants.RunStatus(strings.ToUpper(status))
			list, err := runs.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, list)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tMODE\tTYPE\tPAGES\tSTARTED\tDURATION\tDOCUMENT")
			for _, r := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
					r.ID, r.Status, r.Mode, utils.StrOrEmpty(r.ParseType), r.PageCount,
					utils.FormatRFC3339(r.StartedAt), utils.FormatDuration(r.Duration()), r.DocumentPath)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (QUEUED|RUNNING|SUCCEEDED|FAILED)")
	cmd.Flags().StringVar(&filter.ContentHash, "hash", "", "filter by document sha256")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "maximum rows (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
