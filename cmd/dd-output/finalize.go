package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corner4world/deepdetect/internal/server"
	"github.com/corner4world/deepdetect/internal/simsearch"
)

func finalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "finalize [file]",
		Short: "Rank predictions and render the output document",
		Long: `Read a finalize request ({"predictions": [...], "output": {...}})
from file or stdin and print the rendered predictions.

With the qdrant index engine, --index and --search work across runs.

Examples:
  dd-output finalize preds.json --best 3
  dd-output finalize preds.json --index --build-index --service faces`,
		Args: cobra.MaximumNArgs(1),
		RunE: runFinalize,
	}
	cmd.Flags().Int("best", 0, "keep the N best categories, -1 keeps all (overrides the request)")
	cmd.Flags().String("service", "", "service owning the similarity index")
	cmd.Flags().Bool("index", false, "add the predictions to the similarity index")
	cmd.Flags().Bool("build-index", false, "build the similarity index after adding")
	cmd.Flags().Bool("search", false, "search the similarity index")
	cmd.Flags().Int("search-nn", 0, "number of neighbours to return")
	cmd.Flags().Bool("pretty", false, "indent the JSON output")
	return cmd
}

func runFinalize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, os.Stderr)

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	var req server.FinalizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("decoding finalize request: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("best") {
		best, _ := flags.GetInt("best")
		req.Output.Best = &best
	}
	if flags.Changed("service") {
		req.Service, _ = flags.GetString("service")
	}
	if flags.Changed("index") {
		req.Output.Index, _ = flags.GetBool("index")
	}
	if flags.Changed("build-index") {
		req.Output.BuildIndex, _ = flags.GetBool("build-index")
	}
	if flags.Changed("search") {
		req.Output.Search, _ = flags.GetBool("search")
	}
	if flags.Changed("search-nn") {
		req.Output.SearchNN, _ = flags.GetInt("search-nn")
	}

	engine, closer, err := simsearch.NewEngine(cfg)
	if err != nil {
		return fmt.Errorf("creating index engine: %w", err)
	}
	defer closer.Close()

	h := server.NewHandler(server.HandlerDeps{Output: cfg.Output, Indexes: engine, Log: log})
	defer h.Close()

	resp, err := h.Finalize(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeOutput(cmd, resp)
}
