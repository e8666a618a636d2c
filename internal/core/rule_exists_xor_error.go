package core

import (
	"context"
	"fmt"

	"beaconcore/pkg/domain"
)

// NewExistsXorErrorRule returns the rule requiring every response to carry
// exactly one of an existence flag or an error.
func NewExistsXorErrorRule() domain.Rule {
	return existsXorErrorRule{}
}

type existsXorErrorRule struct{}

func (existsXorErrorRule) Name() string { return RuleExistsXorError }

func (existsXorErrorRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	res := domain.Result{}
	switch rec := subject.Record.(type) {
	case domain.BeaconAlleleResponse:
		checkExistsXorError(&res, domain.RecordAlleleResponse, rec.BeaconID, "", rec.Exists != nil, rec.Error != nil)
		for i, ds := range rec.DatasetAlleleResponses {
			field := fmt.Sprintf("datasetAlleleResponses[%d]", i)
			checkExistsXorError(&res, domain.RecordDatasetAlleleResponse, ds.DatasetID, field, ds.Exists != nil, ds.Error != nil)
		}
	case domain.BeaconDatasetAlleleResponse:
		checkExistsXorError(&res, domain.RecordDatasetAlleleResponse, rec.DatasetID, "", rec.Exists != nil, rec.Error != nil)
	}
	return res, nil
}

func checkExistsXorError(res *domain.Result, rt domain.RecordType, id, field string, hasExists, hasError bool) {
	if hasExists != hasError {
		return
	}
	msg := "response carries neither exists nor error"
	if hasExists {
		msg = "response carries both exists and error"
	}
	res.Add(domain.Violation{
		Rule:     RuleExistsXorError,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Record:   rt,
		RecordID: id,
		Field:    field,
	})
}
