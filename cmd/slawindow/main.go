package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slawindow/internal/config"
	"slawindow/internal/due"
	"slawindow/internal/ics"
	appLog "slawindow/internal/log"
	"slawindow/internal/model"
	"slawindow/internal/schedule"
	"slawindow/internal/web"
)

const version = "0.1.0"

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	cacheDir   string
	once       bool

	// One-shot expansion.
	period string
	from   string
	to     string
	rules  string
	wto    string
	format string
}

func main() {
	flags := parseFlags()

	if flags.period != "" {
		if err := runExpand(os.Stdout, flags); err != nil {
			appLog.Error("expansion failed", err)
			os.Exit(1)
		}
		return
	}

	appLog.Info("slawindow starting", "version", version)

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if lvl, err := appLog.ParseLevel(conf.LogLevel); err == nil {
		appLog.SetLevel(lvl)
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"log_level", conf.LogLevel,
		"max_occurrences", conf.MaxOccurrences,
		"report_cron", conf.ReportCron,
		"report_lookback", conf.ReportLookback,
		"controls", len(conf.Controls),
		"once", flags.once,
	)

	eng := schedule.New(schedule.WithMaxOccurrences(conf.MaxOccurrences))
	fetcher := ics.NewFetcher(flags.cacheDir, nil)
	reporter := due.NewReporter(conf, eng, fetcher, appLog.With(appLog.Default(), "component", "due"))

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flags.once {
		points := reporter.Evaluate(ctx, time.Now())
		if err := writeJSON(os.Stdout, points); err != nil {
			appLog.Error("failed to write report", err)
			os.Exit(1)
		}
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := reporter.Start(ctx); err != nil {
		appLog.Error("failed to start due reporter", err, "report_cron", conf.ReportCron)
		os.Exit(1)
	}
	defer reporter.Stop()

	srv := web.NewServer(conf, eng, fetcher)
	if err := srv.Serve(ctx); err != nil {
		appLog.Error("HTTP server failed", err, "listen", conf.Listen)
		reporter.Stop()
		os.Exit(1)
	}

	appLog.Info("slawindow exiting")
}

// runExpand prints the occurrences of a single schedule given on the
// command line.
func runExpand(w io.Writer, flags flagConfig) error {
	from, err := schedule.ParseInstant(flags.from)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	to, err := schedule.ParseInstant(flags.to)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}

	var custom *model.CustomConfig
	if flags.period == schedule.CustomRules {
		wto, err := schedule.ParseInstant(flags.wto)
		if err != nil {
			return fmt.Errorf("-wto: %w", err)
		}
		rules := flags.rules
		if len(rules) > 0 && rules[0] == '@' {
			data, err := os.ReadFile(rules[1:])
			if err != nil {
				return err
			}
			rules = string(data)
		}
		custom = &model.CustomConfig{Rules: rules, Wto: wto}
	}

	eng := schedule.New()
	switch flags.format {
	case "ics":
		res, err := ics.ExpandControls(eng, []model.Control{{ID: "cli", Period: flags.period, Custom: custom}}, from, to)
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, ics.ExportCalendar("slawindow", res.Occurrences, time.Now()))
		return err
	case "", "json":
		return writeJSON(w, map[string][]time.Time{"dates": eng.GetDates(from, to, flags.period, custom)})
	default:
		return fmt.Errorf("unknown -format %q", flags.format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/slawindow/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.cacheDir, "cache-dir", "/var/lib/slawindow/feed-cache", "Directory for cached rule feeds")
	flag.BoolVar(&cfg.once, "once", false, "Run one due report, print it and exit")

	flag.StringVar(&cfg.period, "period", "", "Expand a single schedule and exit (yearly, monthly, weekly, daily, hourly, customRules)")
	flag.StringVar(&cfg.from, "from", "", "Window start for -period")
	flag.StringVar(&cfg.to, "to", "", "Window end for -period")
	flag.StringVar(&cfg.rules, "rules", "", "Rule set for customRules; @file reads it from a file")
	flag.StringVar(&cfg.wto, "wto", "", "Bound applied to every customRules block")
	flag.StringVar(&cfg.format, "format", "json", "Output format for -period: json or ics")

	flag.Parse()

	return cfg
}
