package core

import "beaconcore/pkg/domain"

type (
	RecordType         = domain.RecordType
	Record             = domain.Record
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	Subject            = domain.Subject
	Change             = domain.Change
	Action             = domain.Action
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	CatalogStore       = domain.CatalogStore
	ErrNotFound        = domain.ErrNotFound
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}
