package main

import (
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/internal/pipeline"
)

// pipeFlags are the request flags shared by pipe and batch.
type pipeFlags struct {
	mode  string
	start int
	end   int
	lang  string
	debug bool
	draw  bool
}

func (f *pipeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.mode, "mode", "auto", "pipe mode: auto|txt|ocr")
	cmd.Flags().IntVar(&f.start, "start", 0, "first page to extract (0-based, inclusive)")
	cmd.Flags().IntVar(&f.end, "end", 0, "page after the last one to extract (exclusive; default: through the last page)")
	cmd.Flags().StringVar(&f.lang, "lang", "", "language hint forwarded unchanged to the extraction result")
	cmd.Flags().BoolVar(&f.debug, "debug-pages", false, "include per-page debug sections in the result")
	cmd.Flags().BoolVar(&f.draw, "draw", false, "also render detections to <stem>_layout.png")
}

// request builds a pipeline request; end and lang only count when set explicitly.
func (f *pipeFlags) request(cmd *cobra.Command, path string) pipeline.Request {
	req := pipeline.Request{
		Path:      path,
		Mode:      f.mode,
		StartPage: f.start,
		Debug:     f.debug,
		Draw:      f.draw,
	}
	if cmd.Flags().Changed("end") {
		end := f.end
		req.EndPage = &end
	}
	if cmd.Flags().Changed("lang") {
		lang := f.lang
		req.Lang = &lang
	}
	return req
}

func pipeCmd(a *app) *cobra.Command {
	var flags pipeFlags
	var model string
	var printResult bool

	cmd := &cobra.Command{
		Use:   "pipe <document>",
		Short: "Route one document and write its middle JSON and model dump",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runs, closeLedger, err := a.openLedger(ctx)
			if err != nil {
				return err
			}
			defer closeLedger()

			proc := pipeline.NewProcessor(a.logger, nil, runs, pipeline.ConfigFrom(a.cfg, a.logger))
			req := flags.request(cmd, args[0])
			req.ModelPath = model
			out, err := proc.Process(ctx, req)
			if err != nil {
				return err
			}

			summary := map[string]any{
				"run_id":      out.RunID,
				"path":        out.Path,
				"parse_type":  out.ParseType,
				"page_count":  out.PageCount,
				"middle_path": out.MiddlePath,
				"model_path":  out.ModelPath,
				"elapsed_ms":  out.Elapsed.Milliseconds(),
			}
			if out.LayoutPath != "" {
				summary["layout_path"] = out.LayoutPath
			}
			if printResult {
				summary["result"] = out.Result.Result()
			}
			return printJSON(cmd, summary)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&model, "model", "", "model output JSON (default: <stem>_model.json next to the document)")
	cmd.Flags().BoolVar(&printResult, "print", false, "include the extraction result in the output")
	return cmd
}
