// Package schedule is the entry point for computing when a periodic
// control is due: it validates a window and dispatches either to the
// simple period walk or to the custom rule pipeline.
package schedule

import (
	"time"

	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/period"
	"slawindow/internal/rule"
)

// CustomRules is the period keyword selecting a rule set.
const CustomRules = "customRules"

// DefaultMaxOccurrences caps a single rule's or period's expansion.
const DefaultMaxOccurrences = 100000

// Option configures an Engine.
type Option func(*options)

type options struct {
	logger         appLog.Logger
	steppers       period.Steppers
	maxOccurrences int
}

// WithLogger routes diagnostics to logger.
func WithLogger(logger appLog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithSteppers replaces the simple-period step functions.
func WithSteppers(s period.Steppers) Option {
	return func(o *options) {
		o.steppers = s
	}
}

// WithMaxOccurrences caps each custom rule and each simple-period walk;
// n <= 0 removes the cap.
func WithMaxOccurrences(n int) Option {
	return func(o *options) {
		o.maxOccurrences = n
	}
}

// Engine computes occurrence instants. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	log      appLog.Logger
	resolver *period.Resolver
	expander *rule.Expander
}

func New(opts ...Option) *Engine {
	o := options{
		logger:         appLog.Default(),
		steppers:       period.DefaultSteppers(),
		maxOccurrences: DefaultMaxOccurrences,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = appLog.Discard()
	}
	return &Engine{
		log:      o.logger,
		resolver: period.NewResolver(o.steppers, o.logger, o.maxOccurrences),
		expander: rule.NewExpander(rule.NewGenerator(o.logger, o.maxOccurrences), o.logger),
	}
}

// GetDates returns the occurrences of periodName inside [from, to]. A zero
// from or to counts as invalid. It never fails: every problem is logged
// and yields an empty, non-nil slice.
func (e *Engine) GetDates(from, to time.Time, periodName string, custom *model.CustomConfig) []time.Time {
	if from.IsZero() {
		e.log.Warn("Invalid 'from' date provided.")
		return []time.Time{}
	}
	if to.IsZero() {
		e.log.Warn("Invalid 'to' date provided.")
		return []time.Time{}
	}
	from, to = from.UTC(), to.UTC()

	if p, ok := period.Parse(periodName); ok {
		return e.resolver.Expand(from, to, p)
	}
	if periodName == CustomRules {
		if custom.Missing() {
			e.log.Warn("custom rules expansion skipped: rules or Wto missing", "period", periodName)
			return []time.Time{}
		}
		return e.expander.ExpandSet(custom.Rules, custom.Wto, from, to)
	}

	e.log.Warn("Invalid period type: " + periodName)
	return []time.Time{}
}

// Report expands a custom rule set keeping the per-block outcome.
func (e *Engine) Report(from, to time.Time, custom *model.CustomConfig) ([]rule.BlockResult, error) {
	if custom == nil {
		custom = &model.CustomConfig{}
	}
	return e.expander.ExpandSetReport(custom.Rules, custom.Wto, from.UTC(), to.UTC())
}

var defaultEngine = New()

// GetDates uses an Engine with the default logger and steppers.
func GetDates(from, to time.Time, periodName string, custom *model.CustomConfig) []time.Time {
	return defaultEngine.GetDates(from, to, periodName, custom)
}

// IsKnownPeriod reports whether GetDates accepts name.
func IsKnownPeriod(name string) bool {
	if _, ok := period.Parse(name); ok {
		return true
	}
	return name == CustomRules
}
