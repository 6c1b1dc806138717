package rule

import (
	"strings"
)

// contentLine is one "NAME[;PARAMS]:VALUE" line of a rule block.
type contentLine struct {
	Name   string
	Params string
	Value  string
	Line   int
}

// part is one KEY=VALUE element of an RRULE value.
type part struct {
	Key   string
	Value string
	// Raw holds the element as written, for diagnostics.
	Raw string
}

// lexBlock splits a rule block into content lines. Lines without a colon
// carry no property and are dropped. Names are upper-cased.
func lexBlock(text string) []contentLine {
	var out []contentLine
	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		head, value := line[:colon], strings.TrimSpace(line[colon+1:])
		name, params, _ := strings.Cut(head, ";")
		out = append(out, contentLine{
			Name:   strings.ToUpper(strings.TrimSpace(name)),
			Params: params,
			Value:  value,
			Line:   i + 1,
		})
	}
	return out
}

// lexRRule splits an RRULE value on ';'. Empty elements (a trailing ';')
// are skipped; elements lacking '=' are returned in bad.
func lexRRule(value string) (parts []part, bad []string) {
	for _, raw := range strings.Split(value, ";") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		k, v, found := strings.Cut(raw, "=")
		if !found || strings.TrimSpace(k) == "" {
			bad = append(bad, raw)
			continue
		}
		parts = append(parts, part{
			Key:   strings.ToUpper(strings.TrimSpace(k)),
			Value: strings.TrimSpace(v),
			Raw:   raw,
		})
	}
	return parts, bad
}

// splitList splits a comma list, dropping blanks.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
