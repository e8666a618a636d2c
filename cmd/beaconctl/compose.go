package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"beaconcore/internal/core"
	"beaconcore/internal/validation"
	"beaconcore/pkg/domain"

	"github.com/spf13/cobra"
)

// recordedResult is one dataset's answer in a --results file.
type recordedResult struct {
	Exists       bool              `json:"exists"`
	Frequency    *float64          `json:"frequency,omitempty"`
	VariantCount *int64            `json:"variantCount,omitempty"`
	CallCount    *int64            `json:"callCount,omitempty"`
	SampleCount  *int64            `json:"sampleCount,omitempty"`
	Note         *string           `json:"note,omitempty"`
	ExternalURL  *string           `json:"externalUrl,omitempty"`
	Info         map[string]string `json:"info,omitempty"`
}

// recordedQuerier answers from results keyed by dataset id. Datasets without
// a recorded result fail their query.
type recordedQuerier map[string]recordedResult

func (q recordedQuerier) QueryDataset(_ context.Context, ds domain.BeaconDataset, _ domain.BeaconAlleleRequest) (core.DatasetResult, error) {
	r, ok := q[ds.ID]
	if !ok {
		return core.DatasetResult{}, fmt.Errorf("no recorded result for dataset %s", ds.ID)
	}
	return core.DatasetResult{
		Exists:       r.Exists,
		Frequency:    r.Frequency,
		VariantCount: r.VariantCount,
		CallCount:    r.CallCount,
		SampleCount:  r.SampleCount,
		Note:         r.Note,
		ExternalURL:  r.ExternalURL,
		Info:         r.Info,
	}, nil
}

func newComposeCmd(g *globalOptions) *cobra.Command {
	var beaconPath, resultsPath string
	cmd := &cobra.Command{
		Use:   "compose --beacon beacon.json --results results.json request.json",
		Short: "Compose an allele response from recorded per-dataset results",
		Long: `Compose answers request.json on behalf of the beacon described by
--beacon. Per-dataset answers come from --results, a JSON object mapping
dataset ids to {"exists": bool, "frequency": ..., ...}. The composed
response is printed; the exit status is 1 when it carries an error.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			run, err := newRuntime(g)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close(ctx) }()

			beacon, err := loadBeacon(ctx, run.pipeline, beaconPath)
			if err != nil {
				return err
			}
			querier := recordedQuerier{}
			if resultsPath != "" {
				data, err := os.ReadFile(resultsPath) // #nosec G304: operator supplied input
				if err != nil {
					return fmt.Errorf("read %s: %w", resultsPath, err)
				}
				if err := json.Unmarshal(data, &querier); err != nil {
					return fmt.Errorf("%s: %w", resultsPath, err)
				}
			}
			raw, err := readRaw(args[0])
			if err != nil {
				return err
			}

			composer := core.NewComposer(run.pipeline, querier, core.WithWorkers(run.cfg.Composer.Workers))
			defer composer.Close()
			resp, err := composer.Compose(ctx, beacon, raw)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(g.stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Error != nil {
				return errRejected
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&beaconPath, "beacon", "", "Beacon document answering the request")
	cmd.Flags().StringVar(&resultsPath, "results", "", "recorded per-dataset results")
	_ = cmd.MarkFlagRequired("beacon")
	return cmd
}

func newCheckCmd(g *globalOptions) *cobra.Command {
	var beaconPath, requestPath string
	cmd := &cobra.Command{
		Use:   "check --request request.json --beacon beacon.json response.json",
		Short: "Check that an externally built response honours the response contract",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			run, err := newRuntime(g)
			if err != nil {
				return err
			}
			defer func() { _ = run.Close(ctx) }()

			req, err := loadRequest(ctx, run.pipeline, requestPath)
			if err != nil {
				return err
			}
			var (
				beaconID string
				known    []string
			)
			if beaconPath != "" {
				beacon, err := loadBeacon(ctx, run.pipeline, beaconPath)
				if err != nil {
					return err
				}
				beaconID = beacon.ID
				known = beacon.DatasetIDs()
			}
			raw, err := readRaw(args[0])
			if err != nil {
				return err
			}
			rec, err := validation.New().Validate(domain.RecordAlleleResponse, raw)
			var fieldErrs validation.FieldErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					fmt.Fprintf(g.stdout, "error %s %s\n", fe.Kind, fe.Error())
				}
				return errRejected
			}
			if err != nil {
				return err
			}
			resp := rec.(domain.BeaconAlleleResponse)
			res, err := core.CheckComposition(ctx, beaconID, req, resp, known)
			if err != nil {
				return err
			}
			for _, v := range res.Violations {
				fmt.Fprintf(g.stdout, "%s %s\n", v.Severity, v)
			}
			if res.HasBlocking() {
				return errRejected
			}
			fmt.Fprintf(g.stdout, "%s: response honours the contract\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "", "allele request the response answers")
	cmd.Flags().StringVar(&beaconPath, "beacon", "", "Beacon document of the answering beacon")
	_ = cmd.MarkFlagRequired("request")
	return cmd
}

func loadBeacon(ctx context.Context, p *core.Pipeline, path string) (domain.Beacon, error) {
	raw, err := readRaw(path)
	if err != nil {
		return domain.Beacon{}, err
	}
	out, err := p.Validate(ctx, domain.RecordBeacon, raw)
	if err != nil {
		return domain.Beacon{}, err
	}
	if !out.Valid() {
		return domain.Beacon{}, fmt.Errorf("beacon %s: %w", path, out.Err())
	}
	return out.Record.(domain.Beacon), nil
}
