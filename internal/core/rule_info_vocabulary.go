package core

import (
	"context"
	"fmt"
	"strings"

	"beaconcore/pkg/domain"
)

// NewInfoKeyVocabularyRule returns the rule checking alternateBasesInfo keys
// against the recognised vocabulary. Unknown keys and malformed segments are
// blocking when strict and warnings otherwise.
func NewInfoKeyVocabularyRule(strict bool) domain.Rule {
	return infoKeyVocabularyRule{strict: strict}
}

type infoKeyVocabularyRule struct {
	strict bool
}

func (infoKeyVocabularyRule) Name() string { return RuleInfoKeyVocabulary }

func (r infoKeyVocabularyRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	res := domain.Result{}
	switch rec := subject.Record.(type) {
	case domain.BeaconAlleleRequest:
		r.check(&res, rec, "alternateBasesInfo")
	case domain.BeaconAlleleResponse:
		if rec.AlleleRequest != nil {
			r.check(&res, *rec.AlleleRequest, "alleleRequest.alternateBasesInfo")
		}
	case domain.Beacon:
		for i, sample := range rec.SampleAlleleRequests {
			r.check(&res, sample, fmt.Sprintf("sampleAlleleRequests[%d].alternateBasesInfo", i))
		}
	}
	return res, nil
}

func (r infoKeyVocabularyRule) check(res *domain.Result, req domain.BeaconAlleleRequest, field string) {
	if req.AlternateBasesInfo == nil {
		return
	}
	severity := domain.SeverityWarn
	if r.strict {
		severity = domain.SeverityBlock
	}
	fields, malformed := domain.ParseInfo(*req.AlternateBasesInfo)
	var unknown []string
	for _, f := range fields {
		if !domain.IsInfoKey(f.Key) {
			unknown = append(unknown, f.Key)
		}
	}
	if len(unknown) > 0 {
		res.Add(domain.Violation{
			Rule:     RuleInfoKeyVocabulary,
			Severity: severity,
			Message: fmt.Sprintf("unrecognised INFO keys %s (allowed: %s)",
				strings.Join(unknown, ","), strings.Join(domain.InfoKeys(), ",")),
			Record: domain.RecordAlleleRequest,
			Field:  field,
		})
	}
	if len(malformed) > 0 {
		res.Add(domain.Violation{
			Rule:     RuleInfoKeyVocabulary,
			Severity: severity,
			Message:  fmt.Sprintf("malformed INFO segments %q, expected KEY=VALUE", malformed),
			Record:   domain.RecordAlleleRequest,
			Field:    field,
		})
	}
}
