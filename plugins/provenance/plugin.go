// Package provenance is a rule plugin asking datasets to say where their
// numbers come from: a version and at least one count.
package provenance

import (
	"context"
	"fmt"

	"beaconcore/internal/core"
	"beaconcore/pkg/domain"
)

// Name identifies the plugin in configuration.
const Name = "provenance"

// RuleName names the rule the plugin contributes.
const RuleName = "DatasetProvenance"

// Plugin implements core.Plugin.
type Plugin struct{}

// New constructs a provenance plugin instance.
func New() Plugin { return Plugin{} }

// Name returns the plugin identifier.
func (Plugin) Name() string { return Name }

// Version returns the plugin semantic version.
func (Plugin) Version() string { return "0.1.0" }

// Register wires the provenance rule.
func (Plugin) Register(registry *core.PluginRegistry) error {
	return registry.RegisterRule(provenanceRule{})
}

type provenanceRule struct{}

func (provenanceRule) Name() string { return RuleName }

func (provenanceRule) Evaluate(_ context.Context, subject domain.Subject) (domain.Result, error) {
	var res domain.Result
	switch rec := subject.Record.(type) {
	case domain.Beacon:
		for i, ds := range rec.Datasets {
			check(&res, ds, rec.ID, fmt.Sprintf("datasets[%d].", i))
		}
	case domain.BeaconDataset:
		check(&res, rec, rec.ID, "")
	}
	return res, nil
}

func check(res *domain.Result, ds domain.BeaconDataset, recordID, prefix string) {
	if ds.Version == nil || *ds.Version == "" {
		res.Add(domain.Violation{
			Rule:     RuleName,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("dataset %s does not declare a version", ds.ID),
			Record:   domain.RecordDataset,
			RecordID: recordID,
			Field:    prefix + "version",
		})
	}
	if ds.VariantCount == nil && ds.CallCount == nil && ds.SampleCount == nil {
		res.Add(domain.Violation{
			Rule:     RuleName,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("dataset %s publishes no variant, call or sample count", ds.ID),
			Record:   domain.RecordDataset,
			RecordID: recordID,
			Field:    prefix + "variantCount",
		})
	}
}
