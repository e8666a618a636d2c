package core

import (
	"context"

	"beaconcore/pkg/domain"
)

// NewDatasetResponsesMatchFlagRule returns the rule tying the presence of
// per-dataset responses to the request's includeDatasetResponses flag.
//
// The request comes from the subject when the caller supplies it and from the
// echoed alleleRequest otherwise. Responses with neither are not checked.
func NewDatasetResponsesMatchFlagRule() domain.Rule {
	return datasetResponsesMatchFlagRule{}
}

type datasetResponsesMatchFlagRule struct{}

func (datasetResponsesMatchFlagRule) Name() string { return RuleDatasetResponsesMatchFlag }

func (datasetResponsesMatchFlagRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	resp, ok := subject.Record.(domain.BeaconAlleleResponse)
	if !ok {
		return domain.Result{}, nil
	}
	req := subject.Request
	if req == nil {
		req = resp.AlleleRequest
	}
	if req == nil {
		return domain.Result{}, nil
	}

	want := req.WantsDatasetResponses()
	have := resp.DatasetAlleleResponses != nil
	if want == have {
		return domain.Result{}, nil
	}
	msg := "datasetAlleleResponses present although includeDatasetResponses is false"
	if want {
		msg = "datasetAlleleResponses missing although includeDatasetResponses is true"
	}
	return domain.Result{Violations: []domain.Violation{{
		Rule:     RuleDatasetResponsesMatchFlag,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Record:   domain.RecordAlleleResponse,
		RecordID: resp.BeaconID,
		Field:    "datasetAlleleResponses",
	}}}, nil
}
