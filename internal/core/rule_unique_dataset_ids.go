package core

import (
	"context"
	"fmt"

	"beaconcore/pkg/domain"
)

// NewUniqueDatasetIDsRule returns the rule requiring dataset ids to be unique
// within a Beacon.
func NewUniqueDatasetIDsRule() domain.Rule {
	return uniqueDatasetIDsRule{}
}

type uniqueDatasetIDsRule struct{}

func (uniqueDatasetIDsRule) Name() string { return RuleUniqueDatasetIDs }

func (uniqueDatasetIDsRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	beacon, ok := subject.Record.(domain.Beacon)
	if !ok {
		return domain.Result{}, nil
	}
	res := domain.Result{}
	seen := make(map[string]int, len(beacon.Datasets))
	for i, ds := range beacon.Datasets {
		first, dup := seen[ds.ID]
		if !dup {
			seen[ds.ID] = i
			continue
		}
		res.Add(domain.Violation{
			Rule:     RuleUniqueDatasetIDs,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("dataset id %s already used by datasets[%d]", ds.ID, first),
			Record:   domain.RecordBeacon,
			RecordID: beacon.ID,
			Field:    fmt.Sprintf("datasets[%d].id", i),
		})
	}
	return res, nil
}
