package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"beaconcore/pkg/domain"

	"github.com/neilotoole/slogt"
)

func testPipeline(t *testing.T, opts ...PipelineOption) *Pipeline {
	t.Helper()
	return NewPipeline(append([]PipelineOption{WithLogger(slogt.New(t))}, opts...)...)
}

func rawRequest() map[string]any {
	return map[string]any{
		"referenceName":  "1",
		"start":          float64(100),
		"referenceBases": "A",
		"alternateBases": "T",
		"assemblyId":     "GRCh37",
	}
}

func dataset(id string) domain.BeaconDataset {
	return domain.BeaconDataset{
		ID:             id,
		Name:           "Dataset " + id,
		AssemblyID:     "GRCh37",
		CreateDateTime: "2020-01-01T00:00:00Z",
		UpdateDateTime: "2020-06-01T00:00:00Z",
	}
}

func beaconWith(datasets ...domain.BeaconDataset) domain.Beacon {
	return domain.Beacon{
		ID:           "b1",
		Name:         "Test Beacon",
		APIVersion:   "v0.3.0",
		Organization: domain.BeaconOrganization{ID: "org", Name: "Org"},
		Datasets:     datasets,
	}
}

func rawBeacon(datasets ...map[string]any) map[string]any {
	list := make([]any, 0, len(datasets))
	for _, ds := range datasets {
		list = append(list, ds)
	}
	return map[string]any{
		"id":           "b1",
		"name":         "Test Beacon",
		"apiVersion":   "v0.3.0",
		"organization": map[string]any{"id": "org", "name": "Org"},
		"datasets":     list,
	}
}

func rawDataset(id, created, updated string) map[string]any {
	return map[string]any{
		"id":             id,
		"name":           "Dataset " + id,
		"assemblyId":     "GRCh37",
		"createDateTime": created,
		"updateDateTime": updated,
	}
}

func hasViolation(vs []domain.Violation, rule string) bool {
	for _, v := range vs {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetrics struct {
	mu         sync.Mutex
	calls      []metricsCall
	violations []domain.Violation
}

func (c *captureMetrics) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetrics) ObserveViolation(_ context.Context, v domain.Violation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.violations = append(c.violations, v)
}

func (c *captureMetrics) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type stubQuerier struct {
	mu      sync.Mutex
	results map[string]DatasetResult
	errs    map[string]error
	calls   []string
}

func (s *stubQuerier) QueryDataset(_ context.Context, ds domain.BeaconDataset, _ domain.BeaconAlleleRequest) (DatasetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ds.ID)
	if err := s.errs[ds.ID]; err != nil {
		return DatasetResult{}, err
	}
	return s.results[ds.ID], nil
}
