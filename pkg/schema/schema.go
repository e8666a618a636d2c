// Package schema is the field table of the Beacon data contract: for every
// record type the ordered list of fields, their semantic types, optionality,
// defaults and declared value domains.
//
// The table is built once and is read-only afterwards; lookups return copies
// so callers cannot mutate it. Validators work generically off these
// descriptors, so adding a field only touches this package.
package schema

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"beaconcore/pkg/domain"

	"facette.io/natsort"
)

// Kind is the semantic type of a field.
type Kind string

// Semantic kinds understood by the structural validator.
const (
	KindString Kind = "string"
	KindLong   Kind = "long"
	KindInt    Kind = "int"
	KindBool   Kind = "boolean"
	KindDouble Kind = "double"
	KindArray  Kind = "array"
	KindMap    Kind = "map"
	KindRecord Kind = "record"
)

// Type describes the semantic type of a field. Elem is set for arrays,
// Record for nested records. Maps are always string to string.
type Type struct {
	Kind   Kind
	Elem   *Type
	Record domain.RecordType
}

func (t Type) String() string {
	switch t.Kind {
	case KindArray:
		if t.Elem == nil {
			return "array"
		}
		return fmt.Sprintf("array<%s>", t.Elem)
	case KindMap:
		return "map<string,string>"
	case KindRecord:
		return fmt.Sprintf("record<%s>", t.Record)
	default:
		return string(t.Kind)
	}
}

// Type constructors.
var (
	String = Type{Kind: KindString}
	Long   = Type{Kind: KindLong}
	Int    = Type{Kind: KindInt}
	Bool   = Type{Kind: KindBool}
	Double = Type{Kind: KindDouble}
	Map    = Type{Kind: KindMap}
)

// ArrayOf returns an ordered sequence type of elem.
func ArrayOf(elem Type) Type {
	return Type{Kind: KindArray, Elem: &elem}
}

// RecordOf returns a nested record type.
func RecordOf(rt domain.RecordType) Type {
	return Type{Kind: KindRecord, Record: rt}
}

// Format names a lexical format a string field must follow.
type Format string

// FormatDateTime requires an ISO-8601 timestamp.
const FormatDateTime Format = "date-time"

// Domain restricts the values a field may take. The zero value means unrestricted.
type Domain struct {
	Enum   []string
	Min    *float64
	Max    *float64
	Format Format
}

// Restricted reports whether any restriction is declared.
func (d Domain) Restricted() bool {
	return len(d.Enum) > 0 || d.Min != nil || d.Max != nil || d.Format != ""
}

// FieldDescriptor describes one field of a record.
type FieldDescriptor struct {
	Name     string
	Type     Type
	Required bool
	// Default is applied when an optional field is absent. Nil means no default.
	Default any
	Domain  Domain
}

func bound(v float64) *float64 { return &v }

var (
	nonNegative = Domain{Min: bound(0)}
	unitRange   = Domain{Min: bound(0), Max: bound(1)}
	dateTime    = Domain{Format: FormatDateTime}
)

var referenceNames = chromosomeLabels()

// chromosomeLabels returns the autosomes 1..22 plus the sex chromosomes in
// natural order.
func chromosomeLabels() []string {
	labels := []string{"X", "Y"}
	for i := 1; i <= 22; i++ {
		labels = append(labels, strconv.Itoa(i))
	}
	natsort.Sort(labels)
	return labels
}

func required(name string, t Type) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: t, Required: true}
}

func optional(name string, t Type) FieldDescriptor {
	return FieldDescriptor{Name: name, Type: t}
}

func withDomain(f FieldDescriptor, d Domain) FieldDescriptor {
	f.Domain = d
	return f
}

func withDefault(f FieldDescriptor, v any) FieldDescriptor {
	f.Default = v
	return f
}

var table = map[domain.RecordType][]FieldDescriptor{
	domain.RecordAlleleRequest: {
		withDomain(required("referenceName", String), Domain{Enum: referenceNames}),
		withDomain(required("start", Long), nonNegative),
		required("referenceBases", String),
		required("alternateBases", String),
		optional("alternateBasesInfo", String),
		required("assemblyId", String),
		optional("datasetIds", ArrayOf(String)),
		withDefault(optional("includeDatasetResponses", Bool), false),
	},
	domain.RecordDataset: {
		required("id", String),
		required("name", String),
		optional("description", String),
		required("assemblyId", String),
		withDomain(required("createDateTime", String), dateTime),
		withDomain(required("updateDateTime", String), dateTime),
		optional("version", String),
		withDomain(optional("variantCount", Long), nonNegative),
		withDomain(optional("callCount", Long), nonNegative),
		withDomain(optional("sampleCount", Long), nonNegative),
		optional("externalUrl", String),
		optional("info", Map),
	},
	domain.RecordOrganization: {
		required("id", String),
		required("name", String),
		optional("description", String),
		optional("address", String),
		optional("welcomeUrl", String),
		optional("contactUrl", String),
		optional("logoUrl", String),
		optional("info", Map),
	},
	domain.RecordBeacon: {
		required("id", String),
		required("name", String),
		required("apiVersion", String),
		required("organization", RecordOf(domain.RecordOrganization)),
		optional("description", String),
		optional("version", String),
		optional("welcomeUrl", String),
		optional("alternativeUrl", String),
		withDomain(optional("createDateTime", String), dateTime),
		withDomain(optional("updateDateTime", String), dateTime),
		required("datasets", ArrayOf(RecordOf(domain.RecordDataset))),
		optional("sampleAlleleRequests", ArrayOf(RecordOf(domain.RecordAlleleRequest))),
		optional("info", Map),
	},
	domain.RecordError: {
		required("errorCode", Int),
		optional("message", String),
	},
	domain.RecordDatasetAlleleResponse: {
		required("datasetId", String),
		optional("exists", Bool),
		optional("error", RecordOf(domain.RecordError)),
		withDomain(optional("frequency", Double), unitRange),
		withDomain(optional("variantCount", Long), nonNegative),
		withDomain(optional("callCount", Long), nonNegative),
		withDomain(optional("sampleCount", Long), nonNegative),
		optional("note", String),
		optional("externalUrl", String),
		optional("info", Map),
	},
	domain.RecordAlleleResponse: {
		required("beaconId", String),
		optional("exists", Bool),
		optional("error", RecordOf(domain.RecordError)),
		optional("alleleRequest", RecordOf(domain.RecordAlleleRequest)),
		optional("datasetAlleleResponses", ArrayOf(RecordOf(domain.RecordDatasetAlleleResponse))),
	},
}

// FieldsOf returns the ordered field descriptors of a record type.
func FieldsOf(rt domain.RecordType) ([]FieldDescriptor, bool) {
	fields, ok := table[rt]
	if !ok {
		return nil, false
	}
	out := make([]FieldDescriptor, len(fields))
	for i, f := range fields {
		out[i] = f
		if len(f.Domain.Enum) > 0 {
			out[i].Domain.Enum = append([]string(nil), f.Domain.Enum...)
		}
	}
	return out, true
}

// RecordTypes lists every record type known to the schema, sorted by name.
func RecordTypes() []domain.RecordType {
	out := make([]domain.RecordType, 0, len(table))
	for rt := range table {
		out = append(out, rt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AllowedReferenceNames returns the chromosome labels accepted for
// referenceName, in natural order (1..22, X, Y).
func AllowedReferenceNames() []string {
	return append([]string(nil), referenceNames...)
}

var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02",
}

// ParseDateTime parses the ISO-8601 forms accepted for date-time fields.
// Timestamps without a zone are read as UTC.
func ParseDateTime(s string) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}
