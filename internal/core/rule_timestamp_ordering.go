package core

import (
	"context"
	"fmt"

	"beaconcore/pkg/domain"
	"beaconcore/pkg/schema"
)

// NewTimestampOrderingRule returns the rule requiring updateDateTime to not
// precede createDateTime on every dataset, including datasets nested in a
// Beacon. When includeBeacon is set the Beacon's own timestamps are checked
// as well, provided both are present.
func NewTimestampOrderingRule(includeBeacon bool) domain.Rule {
	return timestampOrderingRule{includeBeacon: includeBeacon}
}

type timestampOrderingRule struct {
	includeBeacon bool
}

func (timestampOrderingRule) Name() string { return RuleTimestampOrdering }

func (r timestampOrderingRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	res := domain.Result{}
	switch rec := subject.Record.(type) {
	case domain.BeaconDataset:
		checkOrdering(&res, domain.RecordDataset, rec.ID, "", rec.CreateDateTime, rec.UpdateDateTime)
	case domain.Beacon:
		if r.includeBeacon && rec.CreateDateTime != nil && rec.UpdateDateTime != nil {
			checkOrdering(&res, domain.RecordBeacon, rec.ID, "", *rec.CreateDateTime, *rec.UpdateDateTime)
		}
		for i, ds := range rec.Datasets {
			checkOrdering(&res, domain.RecordDataset, ds.ID, fmt.Sprintf("datasets[%d]", i), ds.CreateDateTime, ds.UpdateDateTime)
		}
	}
	return res, nil
}

func checkOrdering(res *domain.Result, rt domain.RecordType, id, prefix, created, updated string) {
	createdAt, err := schema.ParseDateTime(created)
	if err != nil {
		return
	}
	updatedAt, err := schema.ParseDateTime(updated)
	if err != nil {
		return
	}
	if !updatedAt.Before(createdAt) {
		return
	}
	field := "updateDateTime"
	if prefix != "" {
		field = prefix + "." + field
	}
	res.Add(domain.Violation{
		Rule:     RuleTimestampOrdering,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf("updateDateTime %s precedes createDateTime %s", updated, created),
		Record:   rt,
		RecordID: id,
		Field:    field,
	})
}
