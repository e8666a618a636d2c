// Package domain defines the Beacon allele-query records, the catalog
// entities, and the rule evaluation primitives used by beaconcore.
package domain

// RecordType identifies one of the record shapes of the Beacon data contract.
type RecordType string

// Supported record type identifiers used by the schema table, validators and catalog stores.
const (
	// RecordAlleleRequest identifies a BeaconAlleleRequest.
	RecordAlleleRequest RecordType = "beacon_allele_request"
	// RecordDataset identifies a BeaconDataset catalog entry.
	RecordDataset RecordType = "beacon_dataset"
	// RecordOrganization identifies a BeaconOrganization.
	RecordOrganization RecordType = "beacon_organization"
	// RecordBeacon identifies a Beacon description.
	RecordBeacon RecordType = "beacon"
	// RecordError identifies a BeaconError.
	RecordError RecordType = "beacon_error"
	// RecordDatasetAlleleResponse identifies a per-dataset allele response.
	RecordDatasetAlleleResponse RecordType = "beacon_dataset_allele_response"
	// RecordAlleleResponse identifies the top-level allele response.
	RecordAlleleResponse RecordType = "beacon_allele_response"
)

// Record is implemented by every Beacon record. Records are plain values and
// are never mutated after validation.
type Record interface {
	RecordType() RecordType
}

// BeaconAlleleRequest asks whether an allele has been observed.
type BeaconAlleleRequest struct {
	ReferenceName           string   `json:"referenceName"`
	Start                   int64    `json:"start"`
	ReferenceBases          string   `json:"referenceBases"`
	AlternateBases          string   `json:"alternateBases"`
	AlternateBasesInfo      *string  `json:"alternateBasesInfo,omitempty"`
	AssemblyID              string   `json:"assemblyId"`
	DatasetIDs              []string `json:"datasetIds"`
	IncludeDatasetResponses *bool    `json:"includeDatasetResponses,omitempty"`
}

// RecordType implements Record.
func (BeaconAlleleRequest) RecordType() RecordType { return RecordAlleleRequest }

// WantsDatasetResponses reports the effective includeDatasetResponses flag; absence means false.
func (r BeaconAlleleRequest) WantsDatasetResponses() bool {
	return r.IncludeDatasetResponses != nil && *r.IncludeDatasetResponses
}

// BeaconDataset describes one dataset served by a Beacon.
type BeaconDataset struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    *string           `json:"description,omitempty"`
	AssemblyID     string            `json:"assemblyId"`
	CreateDateTime string            `json:"createDateTime"`
	UpdateDateTime string            `json:"updateDateTime"`
	Version        *string           `json:"version,omitempty"`
	VariantCount   *int64            `json:"variantCount,omitempty"`
	CallCount      *int64            `json:"callCount,omitempty"`
	SampleCount    *int64            `json:"sampleCount,omitempty"`
	ExternalURL    *string           `json:"externalUrl,omitempty"`
	Info           map[string]string `json:"info,omitempty"`
}

// RecordType implements Record.
func (BeaconDataset) RecordType() RecordType { return RecordDataset }

// BeaconOrganization owns one or more Beacons.
type BeaconOrganization struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Address     *string           `json:"address,omitempty"`
	WelcomeURL  *string           `json:"welcomeUrl,omitempty"`
	ContactURL  *string           `json:"contactUrl,omitempty"`
	LogoURL     *string           `json:"logoUrl,omitempty"`
	Info        map[string]string `json:"info,omitempty"`
}

// RecordType implements Record.
func (BeaconOrganization) RecordType() RecordType { return RecordOrganization }

// Beacon describes a queryable service and the datasets it exposes.
type Beacon struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	APIVersion           string                `json:"apiVersion"`
	Organization         BeaconOrganization    `json:"organization"`
	Description          *string               `json:"description,omitempty"`
	Version              *string               `json:"version,omitempty"`
	WelcomeURL           *string               `json:"welcomeUrl,omitempty"`
	AlternativeURL       *string               `json:"alternativeUrl,omitempty"`
	CreateDateTime       *string               `json:"createDateTime,omitempty"`
	UpdateDateTime       *string               `json:"updateDateTime,omitempty"`
	Datasets             []BeaconDataset       `json:"datasets"`
	SampleAlleleRequests []BeaconAlleleRequest `json:"sampleAlleleRequests"`
	Info                 map[string]string     `json:"info,omitempty"`
}

// RecordType implements Record.
func (Beacon) RecordType() RecordType { return RecordBeacon }

// DatasetIDs returns the ids of the beacon's datasets in listed order.
func (b Beacon) DatasetIDs() []string {
	ids := make([]string, len(b.Datasets))
	for i, ds := range b.Datasets {
		ids[i] = ds.ID
	}
	return ids
}

// FindDataset returns the dataset with the supplied id.
func (b Beacon) FindDataset(id string) (BeaconDataset, bool) {
	for _, ds := range b.Datasets {
		if ds.ID == id {
			return ds, true
		}
	}
	return BeaconDataset{}, false
}

// BeaconError reports why a query could not be answered.
type BeaconError struct {
	ErrorCode int32   `json:"errorCode"`
	Message   *string `json:"message,omitempty"`
}

// RecordType implements Record.
func (BeaconError) RecordType() RecordType { return RecordError }

// BeaconDatasetAlleleResponse answers the query for one dataset.
type BeaconDatasetAlleleResponse struct {
	DatasetID    string            `json:"datasetId"`
	Exists       *bool             `json:"exists,omitempty"`
	Error        *BeaconError      `json:"error,omitempty"`
	Frequency    *float64          `json:"frequency,omitempty"`
	VariantCount *int64            `json:"variantCount,omitempty"`
	CallCount    *int64            `json:"callCount,omitempty"`
	SampleCount  *int64            `json:"sampleCount,omitempty"`
	Note         *string           `json:"note,omitempty"`
	ExternalURL  *string           `json:"externalUrl,omitempty"`
	Info         map[string]string `json:"info,omitempty"`
}

// RecordType implements Record.
func (BeaconDatasetAlleleResponse) RecordType() RecordType { return RecordDatasetAlleleResponse }

// BeaconAlleleResponse is the top-level answer to a BeaconAlleleRequest.
type BeaconAlleleResponse struct {
	BeaconID               string                        `json:"beaconId"`
	Exists                 *bool                         `json:"exists,omitempty"`
	Error                  *BeaconError                  `json:"error,omitempty"`
	AlleleRequest          *BeaconAlleleRequest          `json:"alleleRequest,omitempty"`
	// Nil encodes as null and means absent; an empty slice is present.
	DatasetAlleleResponses []BeaconDatasetAlleleResponse `json:"datasetAlleleResponses"`
}

// RecordType implements Record.
func (BeaconAlleleResponse) RecordType() RecordType { return RecordAlleleResponse }

// NewRecord returns a pointer to the zero value of the record type, ready to be
// decoded into.
func NewRecord(rt RecordType) (Record, bool) {
	switch rt {
	case RecordAlleleRequest:
		return &BeaconAlleleRequest{}, true
	case RecordDataset:
		return &BeaconDataset{}, true
	case RecordOrganization:
		return &BeaconOrganization{}, true
	case RecordBeacon:
		return &Beacon{}, true
	case RecordError:
		return &BeaconError{}, true
	case RecordDatasetAlleleResponse:
		return &BeaconDatasetAlleleResponse{}, true
	case RecordAlleleResponse:
		return &BeaconAlleleResponse{}, true
	default:
		return nil, false
	}
}

// Ptr returns a pointer to v. Handy for populating optional fields.
func Ptr[T any](v T) *T {
	return &v
}
