package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"beaconcore/internal/validation"
	"beaconcore/pkg/domain"

	"github.com/alitto/pond/v2"
)

// Error codes carried by BeaconError values the composer produces.
const (
	CodeBadRequest int32 = 400
	CodeNotFound   int32 = 404
	CodeInternal   int32 = 500
)

// RuleResponseComposition names violations reported by CheckComposition.
const RuleResponseComposition = "ResponseComposition"

const defaultComposerWorkers = 8

// DatasetResult is what a query engine reports for one dataset.
type DatasetResult struct {
	Exists       bool
	Frequency    *float64
	VariantCount *int64
	CallCount    *int64
	SampleCount  *int64
	Note         *string
	ExternalURL  *string
	Info         map[string]string
}

// AlleleQuerier answers an allele query against a single dataset. The
// implementation is external to beaconcore.
type AlleleQuerier interface {
	QueryDataset(ctx context.Context, dataset domain.BeaconDataset, req domain.BeaconAlleleRequest) (DatasetResult, error)
}

// AlleleQuerierFunc adapts a function to AlleleQuerier.
type AlleleQuerierFunc func(ctx context.Context, dataset domain.BeaconDataset, req domain.BeaconAlleleRequest) (DatasetResult, error)

// QueryDataset implements AlleleQuerier.
func (f AlleleQuerierFunc) QueryDataset(ctx context.Context, dataset domain.BeaconDataset, req domain.BeaconAlleleRequest) (DatasetResult, error) {
	return f(ctx, dataset, req)
}

// Composer builds BeaconAlleleResponse values from raw requests, delegating
// the per-dataset lookups to an AlleleQuerier and enforcing the response
// contract on the way out.
type Composer struct {
	pipeline *Pipeline
	querier  AlleleQuerier
	pool     pond.Pool
	ownsPool bool
}

// ComposerOption configures a Composer.
type ComposerOption func(*composerConfig)

type composerConfig struct {
	pool    pond.Pool
	workers int
}

// WithPool shares an existing worker pool. The composer will not stop it.
func WithPool(pool pond.Pool) ComposerOption {
	return func(c *composerConfig) { c.pool = pool }
}

// WithWorkers sets the size of the composer's own worker pool.
func WithWorkers(n int) ComposerOption {
	return func(c *composerConfig) {
		if n > 0 {
			c.workers = n
		}
	}
}

// NewComposer constructs a composer. A nil pipeline uses NewPipeline().
func NewComposer(pipeline *Pipeline, querier AlleleQuerier, opts ...ComposerOption) *Composer {
	cfg := composerConfig{workers: defaultComposerWorkers}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if pipeline == nil {
		pipeline = NewPipeline()
	}
	c := &Composer{pipeline: pipeline, querier: querier, pool: cfg.pool}
	if c.pool == nil {
		c.pool = pond.NewPool(cfg.workers)
		c.ownsPool = true
	}
	return c
}

// Close stops the worker pool when the composer created it.
func (c *Composer) Close() {
	if c.ownsPool {
		c.pool.StopAndWait()
	}
}

// Compose answers raw against the datasets of beacon. Invalid requests yield
// a 400 error response listing every problem. The returned error is reserved
// for failures of the validation machinery itself.
func (c *Composer) Compose(ctx context.Context, beacon domain.Beacon, raw any) (domain.BeaconAlleleResponse, error) {
	var resp domain.BeaconAlleleResponse
	err := observed(ctx, c.pipeline.tracer, c.pipeline.metrics, "compose", func(ctx context.Context) error {
		var err error
		resp, err = c.compose(ctx, beacon, raw)
		return err
	})
	return resp, err
}

func (c *Composer) compose(ctx context.Context, beacon domain.Beacon, raw any) (domain.BeaconAlleleResponse, error) {
	logger := c.pipeline.logger.With(slog.String("beacon_id", beacon.ID))

	in, err := c.pipeline.Validate(ctx, domain.RecordAlleleRequest, raw)
	if err != nil {
		return domain.BeaconAlleleResponse{}, err
	}
	if !in.Valid() {
		return errorResponse(beacon.ID, CodeBadRequest, in.Err().Error()), nil
	}
	req := in.Record.(domain.BeaconAlleleRequest)

	targets := targetDatasets(beacon, req)
	results := c.queryAll(ctx, logger, beacon, req, targets)

	resp := domain.BeaconAlleleResponse{BeaconID: beacon.ID, AlleleRequest: &req}
	exists, answered := false, 0
	var failures []string
	codes := make(map[int32]struct{})
	for _, r := range results {
		if r.Error != nil {
			codes[r.Error.ErrorCode] = struct{}{}
			failures = append(failures, fmt.Sprintf("%s: %s", r.DatasetID, messageOf(r.Error)))
			continue
		}
		answered++
		exists = exists || *r.Exists
	}
	if answered == 0 && len(results) > 0 {
		code := CodeInternal
		if len(codes) == 1 {
			for only := range codes {
				code = only
			}
		}
		resp.Error = &domain.BeaconError{
			ErrorCode: code,
			Message:   domain.Ptr(fmt.Sprintf("no dataset could be queried: %s", strings.Join(failures, "; "))),
		}
	} else {
		resp.Exists = &exists
	}
	if req.WantsDatasetResponses() {
		resp.DatasetAlleleResponses = results
	}

	out, err := c.pipeline.ValidateRecord(ctx, resp, WithRequest(req))
	if err != nil {
		return domain.BeaconAlleleResponse{}, err
	}
	if !out.Valid() {
		logger.ErrorContext(ctx, "composed response failed validation", slog.String("error", out.Err().Error()))
		return errorResponse(beacon.ID, CodeInternal, "composed response failed validation"), nil
	}
	return out.Record.(domain.BeaconAlleleResponse), nil
}

// targetDatasets returns the ids to query: the requested ones, deduplicated in
// request order, or every dataset of the beacon when none were named.
func targetDatasets(beacon domain.Beacon, req domain.BeaconAlleleRequest) []string {
	if len(req.DatasetIDs) == 0 {
		ids := make([]string, 0, len(beacon.Datasets))
		for _, ds := range beacon.Datasets {
			ids = append(ids, ds.ID)
		}
		return ids
	}
	seen := make(map[string]struct{}, len(req.DatasetIDs))
	ids := make([]string, 0, len(req.DatasetIDs))
	for _, id := range req.DatasetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (c *Composer) queryAll(ctx context.Context, logger *slog.Logger, beacon domain.Beacon, req domain.BeaconAlleleRequest, targets []string) []domain.BeaconDatasetAlleleResponse {
	results := make([]domain.BeaconDatasetAlleleResponse, len(targets))
	type pending struct {
		index int
		task  pond.Task
	}
	var tasks []pending
	for i, id := range targets {
		ds, ok := beacon.FindDataset(id)
		switch {
		case !ok:
			results[i] = datasetError(id, CodeNotFound, fmt.Sprintf("dataset %s is not served by beacon %s", id, beacon.ID))
		case !strings.EqualFold(ds.AssemblyID, req.AssemblyID):
			results[i] = datasetError(id, CodeBadRequest, fmt.Sprintf("dataset %s uses assembly %s, request asks for %s", id, ds.AssemblyID, req.AssemblyID))
		default:
			tasks = append(tasks, pending{index: i, task: c.pool.Submit(func() {
				results[i] = c.queryOne(ctx, logger, ds, req)
			})})
		}
	}
	for _, p := range tasks {
		if err := p.task.Wait(); err != nil {
			logger.ErrorContext(ctx, "dataset query task failed",
				slog.String("dataset_id", targets[p.index]), slog.String("error", err.Error()))
			results[p.index] = datasetError(targets[p.index], CodeInternal, "dataset query failed")
		}
	}
	return results
}

func (c *Composer) queryOne(ctx context.Context, logger *slog.Logger, ds domain.BeaconDataset, req domain.BeaconAlleleRequest) domain.BeaconDatasetAlleleResponse {
	if c.querier == nil {
		return datasetError(ds.ID, CodeInternal, "no query engine configured")
	}
	if err := ctx.Err(); err != nil {
		return datasetError(ds.ID, CodeInternal, err.Error())
	}
	res, err := c.querier.QueryDataset(ctx, ds, req)
	if err != nil {
		logger.WarnContext(ctx, "dataset query failed",
			slog.String("dataset_id", ds.ID), slog.String("error", err.Error()))
		return datasetError(ds.ID, CodeInternal, err.Error())
	}
	out := domain.BeaconDatasetAlleleResponse{
		DatasetID:    ds.ID,
		Exists:       domain.Ptr(res.Exists),
		Frequency:    res.Frequency,
		VariantCount: res.VariantCount,
		CallCount:    res.CallCount,
		SampleCount:  res.SampleCount,
		Note:         res.Note,
		ExternalURL:  res.ExternalURL,
		Info:         res.Info,
	}
	checked, err := c.pipeline.ValidateRecord(ctx, out)
	if err != nil || !checked.Valid() {
		var reason string
		if err != nil {
			reason = err.Error()
		} else {
			reason = checked.Err().Error()
		}
		logger.WarnContext(ctx, "dataset query returned an invalid result",
			slog.String("dataset_id", ds.ID), slog.String("error", reason))
		return datasetError(ds.ID, CodeInternal, "query engine returned an invalid result")
	}
	return checked.Record.(domain.BeaconDatasetAlleleResponse)
}

func datasetError(id string, code int32, msg string) domain.BeaconDatasetAlleleResponse {
	return domain.BeaconDatasetAlleleResponse{
		DatasetID: id,
		Error:     &domain.BeaconError{ErrorCode: code, Message: domain.Ptr(msg)},
	}
}

func errorResponse(beaconID string, code int32, msg string) domain.BeaconAlleleResponse {
	return domain.BeaconAlleleResponse{
		BeaconID: beaconID,
		Error:    &domain.BeaconError{ErrorCode: code, Message: domain.Ptr(msg)},
	}
}

func messageOf(e *domain.BeaconError) string {
	if e.Message == nil {
		return fmt.Sprintf("error %d", e.ErrorCode)
	}
	return *e.Message
}

// CheckComposition verifies that resp honours the response contract for req
// when the response was built outside this package. beaconID is the id of
// the answering beacon and is not compared when empty. known lists its
// dataset ids and is used when req names no datasets.
func CheckComposition(ctx context.Context, beaconID string, req domain.BeaconAlleleRequest, resp domain.BeaconAlleleResponse, known []string) (domain.Result, error) {
	v := validation.New()
	typed, err := v.ValidateRecord(req)
	if err != nil {
		return domain.Result{}, fmt.Errorf("request: %w", err)
	}
	normalized := typed.(domain.BeaconAlleleRequest)

	res, err := NewExistsXorErrorRule().Evaluate(ctx, domain.Subject{Record: resp})
	if err != nil {
		return domain.Result{}, err
	}
	flag, err := NewDatasetResponsesMatchFlagRule().Evaluate(ctx, domain.Subject{Record: resp, Request: &normalized})
	if err != nil {
		return domain.Result{}, err
	}
	res.Merge(flag)

	violation := func(field, msg string) {
		res.Add(domain.Violation{
			Rule:     RuleResponseComposition,
			Severity: domain.SeverityBlock,
			Message:  msg,
			Record:   domain.RecordAlleleResponse,
			RecordID: resp.BeaconID,
			Field:    field,
		})
	}

	if beaconID != "" && resp.BeaconID != beaconID {
		violation("beaconId", fmt.Sprintf("response names beacon %q, expected %q", resp.BeaconID, beaconID))
	}

	if resp.AlleleRequest != nil {
		echoed, err := v.ValidateRecord(*resp.AlleleRequest)
		var fieldErrs validation.FieldErrors
		switch {
		case errors.As(err, &fieldErrs):
			violation("alleleRequest", fmt.Sprintf("echoed request does not validate: %v", fieldErrs))
		case err != nil:
			return domain.Result{}, fmt.Errorf("echoed request: %w", err)
		case !reflect.DeepEqual(echoed, typed):
			violation("alleleRequest", "echoed request differs from the validated request")
		}
	}

	if !normalized.WantsDatasetResponses() || resp.DatasetAlleleResponses == nil {
		return res, nil
	}
	if resp.Exists != nil {
		aggregated := false
		for _, ds := range resp.DatasetAlleleResponses {
			if ds.Exists != nil && *ds.Exists {
				aggregated = true
				break
			}
		}
		if *resp.Exists != aggregated {
			violation("exists", fmt.Sprintf("exists is %t but the dataset responses aggregate to %t", *resp.Exists, aggregated))
		}
	}
	want := normalized.DatasetIDs
	if len(want) == 0 {
		want = known
	}
	expected := make(map[string]int, len(want))
	for _, id := range want {
		expected[id] = 0
	}
	for i, ds := range resp.DatasetAlleleResponses {
		field := fmt.Sprintf("datasetAlleleResponses[%d]", i)
		n, ok := expected[ds.DatasetID]
		if !ok {
			violation(field, fmt.Sprintf("dataset %s was not queried", ds.DatasetID))
			continue
		}
		if n > 0 {
			violation(field, fmt.Sprintf("dataset %s answered more than once", ds.DatasetID))
		}
		expected[ds.DatasetID] = n + 1
	}
	for _, id := range want {
		if expected[id] == 0 {
			violation("datasetAlleleResponses", fmt.Sprintf("dataset %s has no response", id))
			expected[id] = -1
		}
	}
	return res, nil
}
