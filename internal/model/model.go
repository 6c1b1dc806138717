package model

import "time"

// CustomConfig carries a "customRules" schedule: one or more
// DTSTART/RRULE blocks joined by "---", plus the instant every block is
// bounded by.
type CustomConfig struct {
	Rules string `json:"rules" yaml:"rules"`
	// Wto becomes an UNTIL clause on every block.
	Wto time.Time `json:"Wto" yaml:"Wto"`
}

// Missing reports whether either half of the config is absent.
func (c *CustomConfig) Missing() bool {
	return c == nil || c.Rules == "" || c.Wto.IsZero()
}

// Control is a periodic compliance control whose due instants are
// computed from Period (a simple keyword or "customRules").
type Control struct {
	ID     string
	Name   string
	Period string
	Custom *CustomConfig
	// Anchor is where a simple-period schedule starts when the control is
	// evaluated against a clock. Zero when unset.
	Anchor time.Time
}

// GuaranteePoint is one stored compliance result, labeled with the most
// recent occurrence of its control's schedule.
type GuaranteePoint struct {
	ControlID string `json:"control_id"`
	Value     any    `json:"value"`

	// WindowFrom / WindowTo are the window the result was computed over.
	WindowFrom time.Time `json:"window_from"`
	WindowTo   time.Time `json:"window_to"`

	// Occurrence is the latest schedule instant not after WindowTo.
	Occurrence time.Time `json:"occurrence"`
}

// Occurrence is one concrete due instant of a control.
type Occurrence struct {
	ControlID string `json:"control_id"`

	// InstanceKey uniquely identifies the occurrence, derived from the
	// control ID and the compact UTC instant.
	InstanceKey string `json:"instance_key"`

	At time.Time `json:"at"`
}
