package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/inference"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
	"github.com/joseph-ayodele/docrouter/internal/storage"
)

// load reads a document and its model output into an inference result.
func (a *app) load(cmd *cobra.Command, path, model string) (*inference.Result, *ingest.Document, error) {
	doc, err := ingest.NewLoader(a.logger).Load(cmd.Context(), path, model)
	if err != nil {
		return nil, nil, err
	}
	cfg := pipeline.ConfigFrom(a.cfg, a.logger)
	return inference.New(doc.Records, doc.Dataset, cfg.Inference, a.logger), doc, nil
}

func classifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <document>...",
		Short: "Print the strategy (txt or ocr) auto mode would pick",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			classifier := pipeline.ConfigFrom(a.cfg, a.logger).Inference.Classifier
			out := make([]map[string]string, 0, len(args))
			for _, path := range args {
				doc, err := ingest.NewLoader(a.logger).Load(cmd.Context(), path, "")
				entry := map[string]string{"path": path}
				if err == nil {
					s, cerr := classifier.Classify(doc.Dataset.DataBits())
					if cerr == nil {
						entry["strategy"] = s.Tag()
					}
					err = cerr
				}
				if err != nil {
					entry["error"] = err.Error()
				}
				out = append(out, entry)
			}
			return printJSON(cmd, out)
		},
	}
}

func drawCmd(a *app) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "draw <document> <output.png>",
		Short: "Render the layout detections over the document pages",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.load(cmd, args[0], model)
			if err != nil {
				return err
			}
			if err := res.DrawModel(cmd.Context(), args[1]); err != nil {
				return err
			}
			a.logger.Info("layout drawn", "output", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model output JSON (default: <stem>_model.json next to the document)")
	return cmd
}

func dumpCmd(a *app) *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "dump <document> <output.json>",
		Short: "Write the validated model output as indented JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, _, err := a.load(cmd, args[0], model)
			if err != nil {
				return err
			}
			dir, name := filepath.Split(args[1])
			if dir == "" {
				dir = "."
			}
			if err := res.DumpModel(storage.NewFileWriter(dir, a.logger), name); err != nil {
				return err
			}
			a.logger.Info("model dumped", "output", args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model output JSON (default: <stem>_model.json next to the document)")
	return cmd
}
