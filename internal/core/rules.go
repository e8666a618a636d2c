package core

// Names of the built-in consistency rules.
const (
	RuleExistsXorError            = "ExistsXorError"
	RuleDatasetResponsesMatchFlag = "DatasetResponsesMatchFlag"
	RuleTimestampOrdering         = "TimestampOrdering"
	RuleNonEmptyDatasetList       = "NonEmptyDatasetList"
	RuleInfoKeyVocabulary         = "InfoKeyVocabulary"
	RuleUniqueDatasetIDs          = "UniqueDatasetIDs"
)

type ruleConfig struct {
	strictInfoKeys          bool
	beaconTimestampOrdering bool
}

// RuleOption tunes the built-in rule set.
type RuleOption func(*ruleConfig)

// WithStrictInfoKeys makes unrecognised INFO keys blocking instead of warnings.
func WithStrictInfoKeys(strict bool) RuleOption {
	return func(c *ruleConfig) { c.strictInfoKeys = strict }
}

// WithBeaconTimestampOrdering also requires a Beacon's own updateDateTime to
// not precede its createDateTime.
func WithBeaconTimestampOrdering(enabled bool) RuleOption {
	return func(c *ruleConfig) { c.beaconTimestampOrdering = enabled }
}

// NewDefaultRulesEngine builds a rules engine with the built-in rule set.
func NewDefaultRulesEngine(opts ...RuleOption) *RulesEngine {
	var cfg ruleConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	engine := NewRulesEngine()
	engine.Register(NewExistsXorErrorRule())
	engine.Register(NewDatasetResponsesMatchFlagRule())
	engine.Register(NewTimestampOrderingRule(cfg.beaconTimestampOrdering))
	engine.Register(NewNonEmptyDatasetListRule())
	engine.Register(NewInfoKeyVocabularyRule(cfg.strictInfoKeys))
	engine.Register(NewUniqueDatasetIDsRule())
	return engine
}
