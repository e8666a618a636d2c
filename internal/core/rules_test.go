package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"beaconcore/pkg/domain"
)

func evaluate(t *testing.T, rule domain.Rule, subject domain.Subject) domain.Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), subject)
	if err != nil {
		t.Fatalf("%s: %v", rule.Name(), err)
	}
	return res
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{
		RuleExistsXorError,
		RuleDatasetResponsesMatchFlag,
		RuleTimestampOrdering,
		RuleNonEmptyDatasetList,
		RuleInfoKeyVocabulary,
		RuleUniqueDatasetIDs,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected rules: %v", got)
	}
}

func TestExistsXorError(t *testing.T) {
	rule := NewExistsXorErrorRule()
	errObj := &domain.BeaconError{ErrorCode: 500, Message: domain.Ptr("x")}

	both := domain.BeaconAlleleResponse{BeaconID: "b1", Exists: domain.Ptr(true), Error: errObj}
	res := evaluate(t, rule, domain.Subject{Record: both})
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityBlock {
		t.Fatalf("expected blocking violation for both, got %+v", res)
	}

	neither := domain.BeaconDatasetAlleleResponse{DatasetID: "d1"}
	res = evaluate(t, rule, domain.Subject{Record: neither})
	if len(res.Violations) != 1 || res.Violations[0].Record != domain.RecordDatasetAlleleResponse {
		t.Fatalf("expected violation for neither, got %+v", res)
	}

	nested := domain.BeaconAlleleResponse{
		BeaconID: "b1",
		Exists:   domain.Ptr(false),
		DatasetAlleleResponses: []domain.BeaconDatasetAlleleResponse{
			{DatasetID: "ok", Exists: domain.Ptr(true)},
			{DatasetID: "bad", Exists: domain.Ptr(true), Error: errObj},
		},
	}
	res = evaluate(t, rule, domain.Subject{Record: nested})
	if len(res.Violations) != 1 || res.Violations[0].Field != "datasetAlleleResponses[1]" || res.Violations[0].RecordID != "bad" {
		t.Fatalf("expected nested violation, got %+v", res)
	}

	res = evaluate(t, rule, domain.Subject{Record: domain.BeaconDatasetAlleleResponse{DatasetID: "d", Error: errObj}})
	if len(res.Violations) != 0 {
		t.Fatalf("error-only response is valid, got %+v", res)
	}
	res = evaluate(t, rule, domain.Subject{Record: beaconWith()})
	if len(res.Violations) != 0 {
		t.Fatalf("rule must ignore non-response records")
	}
}

func TestDatasetResponsesMatchFlag(t *testing.T) {
	rule := NewDatasetResponsesMatchFlagRule()
	withResponses := domain.BeaconAlleleResponse{
		BeaconID:               "b1",
		Exists:                 domain.Ptr(true),
		DatasetAlleleResponses: []domain.BeaconDatasetAlleleResponse{{DatasetID: "d1", Exists: domain.Ptr(true)}},
	}
	without := domain.BeaconAlleleResponse{BeaconID: "b1", Exists: domain.Ptr(true)}
	emptyList := domain.BeaconAlleleResponse{
		BeaconID:               "b1",
		Exists:                 domain.Ptr(true),
		DatasetAlleleResponses: []domain.BeaconDatasetAlleleResponse{},
	}
	wants := domain.BeaconAlleleRequest{IncludeDatasetResponses: domain.Ptr(true)}
	absent := domain.BeaconAlleleRequest{}

	cases := []struct {
		name    string
		subject domain.Subject
		blocked bool
	}{
		{"flag true with responses", domain.Subject{Record: withResponses, Request: &wants}, false},
		{"flag true without responses", domain.Subject{Record: without, Request: &wants}, true},
		{"flag absent with responses", domain.Subject{Record: withResponses, Request: &absent}, true},
		{"flag absent without responses", domain.Subject{Record: without, Request: &absent}, false},
		{"flag absent with empty list", domain.Subject{Record: emptyList, Request: &absent}, true},
		{"flag true with empty list", domain.Subject{Record: emptyList, Request: &wants}, false},
		{"no request known", domain.Subject{Record: withResponses}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := evaluate(t, rule, tc.subject)
			if res.HasBlocking() != tc.blocked {
				t.Fatalf("blocked=%v, want %v: %+v", res.HasBlocking(), tc.blocked, res)
			}
		})
	}

	echoed := withResponses
	echoed.AlleleRequest = &absent
	if res := evaluate(t, rule, domain.Subject{Record: echoed}); !res.HasBlocking() {
		t.Fatalf("expected echoed request to be used when none is supplied")
	}
}

func TestTimestampOrdering(t *testing.T) {
	ds := dataset("d1")
	ds.CreateDateTime = "2020-05-01T00:00:00Z"
	ds.UpdateDateTime = "2019-01-01T00:00:00Z"

	res := evaluate(t, NewTimestampOrderingRule(false), domain.Subject{Record: ds})
	if len(res.Violations) != 1 || res.Violations[0].Rule != RuleTimestampOrdering {
		t.Fatalf("expected ordering violation, got %+v", res)
	}

	equal := dataset("d2")
	equal.UpdateDateTime = equal.CreateDateTime
	if res := evaluate(t, NewTimestampOrderingRule(false), domain.Subject{Record: equal}); len(res.Violations) != 0 {
		t.Fatalf("equal timestamps are ordered, got %+v", res)
	}

	beacon := beaconWith(dataset("ok"), ds)
	beacon.CreateDateTime = domain.Ptr("2021-01-01T00:00:00Z")
	beacon.UpdateDateTime = domain.Ptr("2020-01-01T00:00:00Z")

	res = evaluate(t, NewTimestampOrderingRule(false), domain.Subject{Record: beacon})
	if len(res.Violations) != 1 || res.Violations[0].Field != "datasets[1].updateDateTime" {
		t.Fatalf("expected only nested dataset violation, got %+v", res)
	}
	res = evaluate(t, NewTimestampOrderingRule(true), domain.Subject{Record: beacon})
	if len(res.Violations) != 2 || res.Violations[0].Record != domain.RecordBeacon {
		t.Fatalf("expected beacon-level violation when enabled, got %+v", res)
	}
}

func TestNonEmptyDatasetList(t *testing.T) {
	res := evaluate(t, NewNonEmptyDatasetListRule(), domain.Subject{Record: beaconWith()})
	if !hasViolation(res.Violations, RuleNonEmptyDatasetList) {
		t.Fatalf("expected violation for empty dataset list")
	}
	res = evaluate(t, NewNonEmptyDatasetListRule(), domain.Subject{Record: beaconWith(dataset("d1"))})
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res)
	}
}

func TestInfoKeyVocabulary(t *testing.T) {
	req := domain.BeaconAlleleRequest{AlternateBasesInfo: domain.Ptr("END=1200;FOO=1;SVLEN=-5;;junk")}

	res := evaluate(t, NewInfoKeyVocabularyRule(false), domain.Subject{Record: req})
	if len(res.Violations) != 2 || res.HasBlocking() {
		t.Fatalf("expected two warnings, got %+v", res)
	}
	res = evaluate(t, NewInfoKeyVocabularyRule(true), domain.Subject{Record: req})
	if len(res.Blocking()) != 2 {
		t.Fatalf("expected two blocking violations when strict, got %+v", res)
	}

	clean := domain.BeaconAlleleRequest{AlternateBasesInfo: domain.Ptr("END=1;CIPOS=-1,1;CIEND=-2,2")}
	if res := evaluate(t, NewInfoKeyVocabularyRule(true), domain.Subject{Record: clean}); len(res.Violations) != 0 {
		t.Fatalf("unexpected violations: %+v", res)
	}

	resp := domain.BeaconAlleleResponse{BeaconID: "b1", Exists: domain.Ptr(true), AlleleRequest: &req}
	res = evaluate(t, NewInfoKeyVocabularyRule(false), domain.Subject{Record: resp})
	if len(res.Violations) == 0 || res.Violations[0].Field != "alleleRequest.alternateBasesInfo" {
		t.Fatalf("expected echoed request to be checked, got %+v", res)
	}

	beacon := beaconWith(dataset("d1"))
	beacon.SampleAlleleRequests = []domain.BeaconAlleleRequest{clean, req}
	res = evaluate(t, NewInfoKeyVocabularyRule(false), domain.Subject{Record: beacon})
	if len(res.Violations) != 2 || res.Violations[0].Field != "sampleAlleleRequests[1].alternateBasesInfo" {
		t.Fatalf("expected sample request violations, got %+v", res)
	}
}

func TestUniqueDatasetIDs(t *testing.T) {
	res := evaluate(t, NewUniqueDatasetIDsRule(), domain.Subject{Record: beaconWith(dataset("a"), dataset("b"), dataset("a"))})
	if len(res.Violations) != 1 || res.Violations[0].Field != "datasets[2].id" {
		t.Fatalf("expected duplicate id violation, got %+v", res)
	}
}

type failingRule struct{}

func (failingRule) Name() string { return "failing" }

func (failingRule) Evaluate(context.Context, domain.Subject) (domain.Result, error) {
	return domain.Result{}, errors.New("rule backend unavailable")
}

func TestEngineCollectsEveryRule(t *testing.T) {
	resp := domain.BeaconAlleleResponse{
		BeaconID: "b1",
		Exists:   domain.Ptr(true),
		Error:    &domain.BeaconError{ErrorCode: 500},
		AlleleRequest: &domain.BeaconAlleleRequest{
			AlternateBasesInfo:      domain.Ptr("BOGUS=1"),
			IncludeDatasetResponses: domain.Ptr(true),
		},
	}
	res, err := NewDefaultRulesEngine().Evaluate(context.Background(), domain.Subject{Record: resp})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for _, rule := range []string{RuleExistsXorError, RuleDatasetResponsesMatchFlag, RuleInfoKeyVocabulary} {
		if !hasViolation(res.Violations, rule) {
			t.Fatalf("expected %s in %+v", rule, res.Violations)
		}
	}
}
