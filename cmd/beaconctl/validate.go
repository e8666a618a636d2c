package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"beaconcore/internal/core"
	"beaconcore/internal/validation"
	"beaconcore/pkg/domain"
	"beaconcore/pkg/schema"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	recordType  string
	requestPath string
	format      string
}

type fileOutcome struct {
	File string `json:"file"`
	core.Outcome
}

func newValidateCmd(g *globalOptions) *cobra.Command {
	opts := &validateOptions{}
	cmd := &cobra.Command{
		Use:   "validate --type <record> file...",
		Short: "Validate JSON messages structurally and for consistency",
		Long: `Validate runs each file through the structural and consistency phases
and prints one diagnostic per file. Use "-" to read standard input.

A response can be checked against the request that produced it with
--request, which also enables the echoed-request rules.`,
		Args: minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), g, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.recordType, "type", "t", string(domain.RecordAlleleRequest), "record type: "+recordTypeList())
	cmd.Flags().StringVar(&opts.requestPath, "request", "", "allele request the validated responses answer")
	cmd.Flags().StringVar(&opts.format, "format", "json", "output format: json, text")
	return cmd
}

func runValidate(ctx context.Context, g *globalOptions, opts *validateOptions, files []string) error {
	rt, err := parseRecordType(opts.recordType)
	if err != nil {
		return err
	}
	if opts.format != "json" && opts.format != "text" {
		return usageError{fmt.Errorf("unknown format %q", opts.format)}
	}
	run, err := newRuntime(g)
	if err != nil {
		return err
	}
	defer func() { _ = run.Close(ctx) }()

	var validateOpts []core.ValidateOption
	if opts.requestPath != "" {
		req, err := loadRequest(ctx, run.pipeline, opts.requestPath)
		if err != nil {
			return err
		}
		validateOpts = append(validateOpts, core.WithRequest(req))
	}

	enc := json.NewEncoder(g.stdout)
	enc.SetIndent("", "  ")
	rejected := false
	for _, file := range files {
		raw, err := readRaw(file)
		if err != nil {
			return err
		}
		out, err := run.pipeline.Validate(ctx, rt, raw, validateOpts...)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
		if !out.Valid() {
			rejected = true
		}
		if opts.format == "text" {
			writeText(g.stdout, file, out)
			continue
		}
		if err := enc.Encode(fileOutcome{File: file, Outcome: out}); err != nil {
			return err
		}
	}
	if rejected {
		return errRejected
	}
	return nil
}

func writeText(w io.Writer, file string, out core.Outcome) {
	if out.Valid() {
		fmt.Fprintf(w, "%s: valid %s", file, out.RecordType)
		if n := len(out.Warnings); n > 0 {
			fmt.Fprintf(w, " (%d warnings)", n)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "%s: rejected %s\n", file, out.RecordType)
		for _, p := range out.Err().(*core.RejectionError).Problems() {
			fmt.Fprintf(w, "  error   %s\n", p)
		}
	}
	for _, v := range out.Warnings {
		fmt.Fprintf(w, "  warning %s\n", v)
	}
}

// loadRequest reads and validates the request responses are checked against.
func loadRequest(ctx context.Context, p *core.Pipeline, path string) (domain.BeaconAlleleRequest, error) {
	raw, err := readRaw(path)
	if err != nil {
		return domain.BeaconAlleleRequest{}, err
	}
	out, err := p.Validate(ctx, domain.RecordAlleleRequest, raw)
	if err != nil {
		return domain.BeaconAlleleRequest{}, err
	}
	if !out.Valid() {
		return domain.BeaconAlleleRequest{}, fmt.Errorf("request %s: %w", path, out.Err())
	}
	return out.Record.(domain.BeaconAlleleRequest), nil
}

// readRaw decodes a JSON file, or standard input for "-".
func readRaw(path string) (any, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304: operator supplied input
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	raw, err := validation.DecodeRaw(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return raw, nil
}

func parseRecordType(s string) (domain.RecordType, error) {
	for _, rt := range schema.RecordTypes() {
		if string(rt) == s {
			return rt, nil
		}
	}
	return "", usageError{fmt.Errorf("unknown record type %q (want one of %s)", s, recordTypeList())}
}

func recordTypeList() string {
	types := schema.RecordTypes()
	names := make([]string, len(types))
	for i, rt := range types {
		names[i] = string(rt)
	}
	return strings.Join(names, ", ")
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}
