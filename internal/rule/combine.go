package rule

import (
	"errors"
	"strings"
	"time"

	appLog "slawindow/internal/log"
)

// Delimiter separates rule blocks in a rule set.
const Delimiter = "---"

// BlockResult reports what happened to one block of a rule set.
type BlockResult struct {
	Index      int
	Text       string
	Descriptor Descriptor
	// Err is a *ParseError when the block was skipped.
	Err       error
	Expansion Expansion
}

// Expander runs a whole rule set through Parse and Generate.
type Expander struct {
	gen *Generator
	log appLog.Logger
}

func NewExpander(gen *Generator, logger appLog.Logger) *Expander {
	if logger == nil {
		logger = appLog.Discard()
	}
	if gen == nil {
		gen = NewGenerator(logger, 0)
	}
	return &Expander{gen: gen, log: logger}
}

var errMissingRuleSet = errors.New("rule set or Wto is missing")

// ExpandSet splits rules on Delimiter, bounds every block with an UNTIL
// derived from wto, and concatenates the per-block occurrences in block
// order. Blocks that fail to parse contribute nothing.
func (e *Expander) ExpandSet(rules string, wto, from, to time.Time) []time.Time {
	results, err := e.ExpandSetReport(rules, wto, from, to)
	if err != nil {
		return []time.Time{}
	}
	out := make([]time.Time, 0)
	for _, r := range results {
		out = append(out, r.Expansion.Occurrences...)
	}
	return out
}

// ExpandSetReport is ExpandSet with the per-block detail kept.
func (e *Expander) ExpandSetReport(rules string, wto, from, to time.Time) ([]BlockResult, error) {
	if strings.TrimSpace(rules) == "" || wto.IsZero() {
		e.log.Warn("custom rules expansion skipped: rules or Wto missing",
			"has_rules", strings.TrimSpace(rules) != "", "has_wto", !wto.IsZero())
		return nil, errMissingRuleSet
	}

	until := FormatCompactUTC(wto)
	blocks := strings.Split(rules, Delimiter)
	results := make([]BlockResult, 0, len(blocks))

	for i, block := range blocks {
		text := AppendUntil(block, until)
		res := BlockResult{Index: i, Text: text}

		d, err := Parse(text)
		if err != nil {
			e.log.Warn("rule block skipped", "block", i, "reason", err.Error())
			res.Err = err
			results = append(results, res)
			continue
		}
		res.Descriptor = d
		res.Expansion = e.gen.Generate(d, from, to)
		e.log.Debug("rule block expanded",
			"block", i,
			"freq", d.Frequency,
			"occurrences", len(res.Expansion.Occurrences),
			"termination", res.Expansion.Termination,
		)
		results = append(results, res)
	}
	return results, nil
}

// AppendUntil adds ";UNTIL=<until>" to the last RRULE line of block. A
// block without an RRULE line is returned unchanged. An UNTIL already on
// the line is left in place; the appended one, being later, governs.
func AppendUntil(block, until string) string {
	lines := strings.Split(block, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(strings.TrimSuffix(lines[i], "\r"))
		name, _, found := strings.Cut(trimmed, ":")
		if !found {
			continue
		}
		name, _, _ = strings.Cut(name, ";")
		if !strings.EqualFold(strings.TrimSpace(name), "RRULE") {
			continue
		}
		sep := ";"
		if strings.HasSuffix(trimmed, ";") || strings.HasSuffix(trimmed, ":") {
			sep = ""
		}
		lines[i] = trimmed + sep + "UNTIL=" + until
		return strings.Join(lines, "\n")
	}
	return block
}
