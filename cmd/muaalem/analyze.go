package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/muaalem/internal/analysis"
	"github.com/MrWong99/muaalem/internal/app"
	"github.com/MrWong99/muaalem/internal/config"
	"github.com/MrWong99/muaalem/pkg/explain"
)

type analyzeOptions struct {
	vocabulary string
	format     string
	workers    int
}

func newAnalyzeCmd() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [request.json|-]",
		Short: "Analyse one request, or a JSON array of requests, and print the report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runAnalyze(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), path, opts)
		},
	}
	cmd.Flags().StringVar(&opts.vocabulary, "vocab", "", "vocabulary YAML file (default: built-in)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json or text")
	cmd.Flags().IntVar(&opts.workers, "workers", config.DefaultWorkers, "concurrent requests for array input")
	return cmd
}

func runAnalyze(ctx context.Context, stdin io.Reader, out io.Writer, path string, opts analyzeOptions) error {
	if opts.format != "json" && opts.format != "text" {
		return fmt.Errorf("unknown format %q; valid values: json, text", opts.format)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := readInput(stdin, path)
	if err != nil {
		return err
	}
	v, err := app.LoadVocabulary(opts.vocabulary)
	if err != nil {
		return err
	}
	a := analysis.New(v, analysis.WithWorkers(opts.workers))

	var reports []*analysis.Report
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		var reqs []analysis.Request
		if err := decodeStrict(trimmed, &reqs); err != nil {
			return fmt.Errorf("decode requests: %w", err)
		}
		reports, err = a.AnalyzeBatch(ctx, reqs)
		if err != nil {
			return err
		}
	} else {
		var req analysis.Request
		if err := decodeStrict(data, &req); err != nil {
			return fmt.Errorf("decode request: %w", err)
		}
		rep, err := a.Analyze(ctx, req)
		if err != nil {
			return err
		}
		reports = []*analysis.Report{rep}
	}

	if opts.format == "text" {
		return writeText(out, reports)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if len(reports) == 1 {
		return enc.Encode(reports[0])
	}
	return enc.Encode(reports)
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read request: %w", err)
	}
	return data, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeText(w io.Writer, reports []*analysis.Report) error {
	for i, rep := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "report %s: %s\n", rep.ID, rep.Status)
		for _, warn := range rep.Warnings {
			fmt.Fprintf(w, "warning: %s\n", warn)
		}
		if err := explain.RenderText(w, rep.PhonemeDiff, rep.Explanation); err != nil {
			return err
		}
	}
	return nil
}
