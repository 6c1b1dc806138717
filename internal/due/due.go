// Package due reports which controls had an occurrence in the most recent
// lookback window, on a cron schedule.
package due

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slawindow/internal/config"
	"slawindow/internal/ics"
	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/schedule"
)

// RulesFetcher supplies the rule set of a control backed by a feed.
type RulesFetcher interface {
	FetchRules(ctx context.Context, feed ics.Feed) (string, error)
}

// Resolve converts the configured controls into models, fetching rules for
// controls that name a rules_url. Controls that fail validation or whose
// feed cannot be read are logged and left out.
func Resolve(ctx context.Context, cfg *config.Config, fetcher RulesFetcher, logger appLog.Logger) []model.Control {
	out := make([]model.Control, 0, len(cfg.Controls))
	for _, cc := range cfg.Controls {
		c, err := ResolveOne(ctx, cc, fetcher)
		if err != nil {
			logger.Error("control skipped", err, "control", cc.ID)
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResolveOne is Resolve for a single control.
func ResolveOne(ctx context.Context, cc config.ControlConfig, fetcher RulesFetcher) (model.Control, error) {
	var rules string
	if cc.Period == schedule.CustomRules && cc.Rules == "" && cc.RulesURL != "" && fetcher != nil {
		fetched, err := fetcher.FetchRules(ctx, ics.Feed{ControlID: cc.ID, URL: cc.RulesURL})
		if err != nil {
			return model.Control{}, err
		}
		rules = fetched
	}
	return cc.Model(rules)
}

// Reporter evaluates every control on each cron tick.
type Reporter struct {
	cfg     *config.Config
	eng     *schedule.Engine
	fetcher RulesFetcher
	log     appLog.Logger

	mu   sync.Mutex
	cron *cron.Cron
	last []model.GuaranteePoint
}

func NewReporter(cfg *config.Config, eng *schedule.Engine, fetcher RulesFetcher, logger appLog.Logger) *Reporter {
	if logger == nil {
		logger = appLog.Discard()
	}
	return &Reporter{cfg: cfg, eng: eng, fetcher: fetcher, log: logger}
}

// Evaluate returns one point per control that has an occurrence in
// (now-lookback, now], labeled with its most recent such occurrence.
// Simple-period controls are expanded from their anchor and skipped
// without one.
func (r *Reporter) Evaluate(ctx context.Context, now time.Time) []model.GuaranteePoint {
	now = now.UTC()
	from := now.Add(-r.cfg.Lookback())

	points := make([]model.GuaranteePoint, 0)
	for _, c := range Resolve(ctx, r.cfg, r.fetcher, r.log) {
		start := from
		if c.Period != schedule.CustomRules {
			if c.Anchor.IsZero() || c.Anchor.After(now) {
				r.log.Debug("control without usable anchor not evaluated", "control", c.ID)
				continue
			}
			start = c.Anchor
		}
		p, ok := r.eng.Label(c, "due", start, now)
		if !ok || !p.Occurrence.After(from) {
			continue
		}
		p.WindowFrom = from
		r.log.Info("control due", "control", c.ID, "occurrence", p.Occurrence)
		points = append(points, p)
	}
	r.log.Debug("due report finished", "controls", len(r.cfg.Controls), "due", len(points), "at", now)

	r.mu.Lock()
	r.last = points
	r.mu.Unlock()
	return points
}

// Last returns the points of the most recent evaluation.
func (r *Reporter) Last() []model.GuaranteePoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.GuaranteePoint(nil), r.last...)
}

// Start schedules Evaluate on cfg.ReportCron. It returns an error when the
// expression does not parse.
func (r *Reporter) Start(ctx context.Context) error {
	c := cron.New(cron.WithLogger(cronLogger{r.log}), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(r.cfg.ReportCron, func() {
		r.Evaluate(ctx, time.Now())
	}); err != nil {
		return err
	}

	r.mu.Lock()
	r.cron = c
	r.mu.Unlock()

	c.Start()
	r.log.Info("due reporter started", "cron", r.cfg.ReportCron, "lookback", r.cfg.ReportLookback)
	return nil
}

// Stop halts the schedule and waits for a running evaluation to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.log.Info("due reporter stopped")
}

// cronLogger adapts appLog.Logger to cron.Logger.
type cronLogger struct {
	l appLog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error("cron: "+msg, err, keysAndValues...)
}
