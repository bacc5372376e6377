package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/corner4world/deepdetect/internal/measure"
	"github.com/corner4world/deepdetect/internal/output"
	"github.com/corner4world/deepdetect/internal/server"
)

func measureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "measure [file]",
		Short: "Compute measures from a JSON batch or measure request",
		Long: `Read either a single batch or a full measure request
({"measure": [...], "tests": [{"name": ..., "batch": {...}}]}) from file
or stdin and print the resulting measures.

Examples:
  dd-output measure batch.json --measure acc,f1,mcc
  dd-output measure request.json --aggregate`,
		Args: cobra.MaximumNArgs(1),
		RunE: runMeasure,
	}
	cmd.Flags().StringP("measure", "m", "", "comma separated measures (overrides the request)")
	cmd.Flags().String("name", "", "test set name for a single batch")
	cmd.Flags().Bool("aggregate", false, "report the mean over the test sets")
	cmd.Flags().Bool("pretty", false, "indent the JSON output")
	return cmd
}

func runMeasure(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cmd, cfg, os.Stderr)

	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	req, err := decodeMeasureRequest(data)
	if err != nil {
		return err
	}
	if name, _ := cmd.Flags().GetString("name"); name != "" && len(req.Tests) == 1 {
		req.Tests[0].Name = name
	}
	if cmd.Flags().Changed("measure") {
		m, _ := cmd.Flags().GetString("measure")
		req.Measure = measure.ParseRequestString(m).Tokens()
	}
	if cmd.Flags().Changed("aggregate") {
		req.Aggregate, _ = cmd.Flags().GetBool("aggregate")
	}

	h := server.NewHandler(server.HandlerDeps{Output: cfg.Output, Log: log})
	defer h.Close()

	resp, err := h.Measure(cmd.Context(), req)
	if err != nil {
		return err
	}
	return writeOutput(cmd, resp)
}

// decodeMeasureRequest accepts a measure request or a bare batch.
func decodeMeasureRequest(data []byte) (server.MeasureRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return server.MeasureRequest{}, fmt.Errorf("invalid JSON input: %w", err)
	}

	var req server.MeasureRequest
	if _, ok := fields["tests"]; ok {
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("decoding measure request: %w", err)
		}
	} else {
		b, err := measure.DecodeBatch(data)
		if err != nil {
			return req, err
		}
		req.Tests = []server.TestSet{{Batch: b}}
	}

	if len(req.Tests) == 0 {
		return req, fmt.Errorf("no test set in input")
	}
	for i, ts := range req.Tests {
		if ts.Batch == nil {
			return req, fmt.Errorf("test set %d has no batch", i)
		}
	}
	return req, nil
}

func aggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate [file]",
		Short: "Average measure records over test sets",
		Long: `Read a JSON array of measure records, or {"measures": [...]},
and print the per-key mean.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			records, err := decodeRecords(data)
			if err != nil {
				return err
			}
			resp := output.Response{Measures: records}
			output.AggregateMultipleTestsets(&resp)
			return writeOutput(cmd, resp)
		},
	}
	cmd.Flags().Bool("pretty", false, "indent the JSON output")
	return cmd
}

func decodeRecords(data []byte) ([]*measure.Record, error) {
	var records []*measure.Record
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decoding measures: %w", err)
		}
	} else {
		var req server.AggregateRequest
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return nil, fmt.Errorf("decoding measures: %w", err)
		}
		records = req.Measures
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no measures in input")
	}
	return records, nil
}
