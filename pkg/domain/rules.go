package domain

import (
	"context"
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether a message is rejected.
const (
	// SeverityBlock rejects the message.
	SeverityBlock Severity = "block"
	// SeverityWarn reports a warning but lets the message pass.
	SeverityWarn Severity = "warn"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string     `json:"rule"`
	Severity Severity   `json:"severity"`
	Message  string     `json:"message"`
	Record   RecordType `json:"record"`
	RecordID string     `json:"record_id,omitempty"`
	Field    string     `json:"field,omitempty"`
}

func (v Violation) String() string {
	if v.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", v.Rule, v.Message, v.Field)
	}
	return fmt.Sprintf("%s: %s", v.Rule, v.Message)
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation `json:"violations,omitempty"`
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Add appends a single violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Blocking returns the violations that reject the message.
func (r Result) Blocking() []Violation {
	return r.filter(SeverityBlock)
}

// Warnings returns the violations that are reported without rejecting.
func (r Result) Warnings() []Violation {
	return r.filter(SeverityWarn)
}

func (r Result) filter(severity Severity) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity == severity {
			out = append(out, v)
		}
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	blocking := e.Result.Blocking()
	if len(blocking) == 0 {
		return "blocked by rules"
	}
	parts := make([]string, 0, len(blocking))
	for _, v := range blocking {
		parts = append(parts, v.String())
	}
	return "blocked by rules: " + strings.Join(parts, "; ")
}

// Subject is the input handed to a rule: the structurally valid record and,
// for responses, the request that produced it when the caller knows it.
type Subject struct {
	Record  Record
	Request *BeaconAlleleRequest
}

// Rule defines a named cross-field check.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, subject Subject) (Result, error)
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rule names in evaluation order.
func (e *RulesEngine) Rules() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Evaluate executes all registered rules and aggregates their results. Every
// rule runs even when an earlier one reported violations.
func (e *RulesEngine) Evaluate(ctx context.Context, subject Subject) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		res, err := rule.Evaluate(ctx, subject)
		if err != nil {
			return Result{}, fmt.Errorf("rule %s: %w", rule.Name(), err)
		}
		combined.Merge(res)
	}
	return combined, nil
}
