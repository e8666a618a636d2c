package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"beaconcore/internal/validation"
	"beaconcore/pkg/domain"
)

// RuleStructural names violations that stem from structural field errors when
// they are reported through a rules Result, for example by catalog stores.
const RuleStructural = "Structural"

// State is the terminal state of a message after the pipeline ran.
type State string

// Pipeline terminal states.
const (
	StateValid    State = "valid"
	StateRejected State = "rejected"
)

// Outcome is the result of running a message through the pipeline. A valid
// outcome carries the typed record and any warnings; a rejected one carries
// every structural error or blocking violation that was found.
type Outcome struct {
	State       State                  `json:"state"`
	RecordType  domain.RecordType      `json:"record_type"`
	Record      domain.Record          `json:"record,omitempty"`
	FieldErrors validation.FieldErrors `json:"field_errors,omitempty"`
	Violations  []domain.Violation     `json:"violations,omitempty"`
	Warnings    []domain.Violation     `json:"warnings,omitempty"`
}

// Valid reports whether the message passed both phases.
func (o Outcome) Valid() bool { return o.State == StateValid }

// Err returns nil for valid outcomes and a *RejectionError otherwise.
func (o Outcome) Err() error {
	if o.Valid() {
		return nil
	}
	return &RejectionError{RecordType: o.RecordType, FieldErrors: o.FieldErrors, Violations: o.Violations}
}

// RejectionError lists everything that made a message invalid.
type RejectionError struct {
	RecordType  domain.RecordType
	FieldErrors validation.FieldErrors
	Violations  []domain.Violation
}

// Problems returns one line per structural error or blocking violation.
func (e *RejectionError) Problems() []string {
	out := make([]string, 0, len(e.FieldErrors)+len(e.Violations))
	for _, fe := range e.FieldErrors {
		out = append(out, fmt.Sprintf("%s %s", fe.Kind, fe.Error()))
	}
	for _, v := range e.Violations {
		out = append(out, v.String())
	}
	return out
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.RecordType, strings.Join(e.Problems(), "; "))
}

// Unwrap exposes the structural errors and rule violations to errors.As.
func (e *RejectionError) Unwrap() []error {
	var errs []error
	if len(e.FieldErrors) > 0 {
		errs = append(errs, e.FieldErrors)
	}
	if len(e.Violations) > 0 {
		errs = append(errs, domain.RuleViolationError{Result: domain.Result{Violations: e.Violations}})
	}
	return errs
}

// Pipeline runs the two validation phases: structural, then consistency.
// It holds no per-message state and is safe for concurrent use.
type Pipeline struct {
	validator *validation.Validator
	engine    *RulesEngine
	logger    *slog.Logger
	metrics   MetricsRecorder
	tracer    Tracer
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithValidator overrides the structural validator.
func WithValidator(v *validation.Validator) PipelineOption {
	return func(p *Pipeline) {
		if v != nil {
			p.validator = v
		}
	}
}

// WithRulesEngine overrides the consistency rules engine.
func WithRulesEngine(engine *RulesEngine) PipelineOption {
	return func(p *Pipeline) {
		if engine != nil {
			p.engine = engine
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(metrics MetricsRecorder) PipelineOption {
	return func(p *Pipeline) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) PipelineOption {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

// NewPipeline constructs a pipeline with the default validator and rule set
// unless overridden.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		validator: validation.New(),
		engine:    NewDefaultRulesEngine(),
		logger:    slog.Default(),
		metrics:   noopMetrics{},
		tracer:    noopTracer{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Rules returns the names of the consistency rules the pipeline evaluates.
func (p *Pipeline) Rules() []string {
	return p.engine.Rules()
}

type validateConfig struct {
	request *domain.BeaconAlleleRequest
}

// ValidateOption supplies per-message context to Validate.
type ValidateOption func(*validateConfig)

// WithRequest associates a response with the request that produced it.
func WithRequest(req domain.BeaconAlleleRequest) ValidateOption {
	return func(c *validateConfig) { c.request = &req }
}

// Validate runs raw through both phases. Consistency rules only run when the
// structural pass succeeds. The error is reserved for failures of the
// pipeline itself (unknown record type, a rule that could not evaluate);
// invalid messages are reported through the outcome.
func (p *Pipeline) Validate(ctx context.Context, rt domain.RecordType, raw any, opts ...ValidateOption) (Outcome, error) {
	var out Outcome
	err := observed(ctx, p.tracer, p.metrics, "validate_"+string(rt), func(ctx context.Context) error {
		rec, err := p.validator.Validate(rt, raw)
		out, err = p.finish(ctx, rt, rec, err, opts)
		return err
	})
	return out, err
}

// ValidateRecord runs an already typed record through both phases.
func (p *Pipeline) ValidateRecord(ctx context.Context, rec domain.Record, opts ...ValidateOption) (Outcome, error) {
	if rec == nil {
		return Outcome{}, errors.New("record is nil")
	}
	rt := rec.RecordType()
	var out Outcome
	err := observed(ctx, p.tracer, p.metrics, "validate_"+string(rt), func(ctx context.Context) error {
		typed, err := p.validator.ValidateRecord(rec)
		out, err = p.finish(ctx, rt, typed, err, opts)
		return err
	})
	return out, err
}

func (p *Pipeline) finish(ctx context.Context, rt domain.RecordType, rec domain.Record, structErr error, opts []ValidateOption) (Outcome, error) {
	out := Outcome{RecordType: rt}
	if structErr != nil {
		var fieldErrs validation.FieldErrors
		if !errors.As(structErr, &fieldErrs) {
			return out, structErr
		}
		out.State = StateRejected
		out.FieldErrors = fieldErrs
		p.logger.InfoContext(ctx, "message rejected",
			slog.String("record_type", string(rt)),
			slog.Int("field_errors", len(fieldErrs)))
		return out, nil
	}

	var cfg validateConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	res, err := p.engine.Evaluate(ctx, domain.Subject{Record: rec, Request: cfg.request})
	if err != nil {
		return out, err
	}
	for _, v := range res.Violations {
		p.metrics.ObserveViolation(ctx, v)
	}
	out.Warnings = res.Warnings()
	if res.HasBlocking() {
		out.State = StateRejected
		out.Violations = res.Blocking()
		p.logger.InfoContext(ctx, "message rejected",
			slog.String("record_type", string(rt)),
			slog.Int("violations", len(out.Violations)),
			slog.Int("warnings", len(out.Warnings)))
		return out, nil
	}
	out.State = StateValid
	out.Record = rec
	if len(out.Warnings) > 0 {
		p.logger.WarnContext(ctx, "message accepted with warnings",
			slog.String("record_type", string(rt)),
			slog.Int("warnings", len(out.Warnings)))
	}
	return out, nil
}

// CheckBeacon implements domain.BeaconChecker so catalog stores can revalidate
// beacons before committing. Structural errors are reported as blocking
// violations of RuleStructural.
func (p *Pipeline) CheckBeacon(ctx context.Context, beacon domain.Beacon) (domain.Result, error) {
	out, err := p.ValidateRecord(ctx, beacon)
	if err != nil {
		return domain.Result{}, err
	}
	res := domain.Result{}
	for _, fe := range out.FieldErrors {
		res.Add(domain.Violation{
			Rule:     RuleStructural,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s: %s", fe.Kind, fe.Message),
			Record:   domain.RecordBeacon,
			RecordID: beacon.ID,
			Field:    fe.Field,
		})
	}
	res.Merge(domain.Result{Violations: out.Violations})
	res.Merge(domain.Result{Violations: out.Warnings})
	return res, nil
}
