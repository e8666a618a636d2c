package core

import (
	"context"

	"beaconcore/pkg/domain"
)

// NewNonEmptyDatasetListRule returns the rule requiring a Beacon to list at
// least one dataset.
func NewNonEmptyDatasetListRule() domain.Rule {
	return nonEmptyDatasetListRule{}
}

type nonEmptyDatasetListRule struct{}

func (nonEmptyDatasetListRule) Name() string { return RuleNonEmptyDatasetList }

func (nonEmptyDatasetListRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	beacon, ok := subject.Record.(domain.Beacon)
	if !ok || len(beacon.Datasets) > 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     RuleNonEmptyDatasetList,
		Severity: domain.SeverityBlock,
		Message:  "beacon lists no datasets",
		Record:   domain.RecordBeacon,
		RecordID: beacon.ID,
		Field:    "datasets",
	}}}, nil
}
