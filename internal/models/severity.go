package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Severity is the urgency tier of an alert, totally ordered:
// critical > high > medium > low > info. It is an ordered int so that rule
// comparisons ("at least high") are compile-checked instead of string games.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "info",
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

var severityValues = map[string]Severity{
	"info":     SeverityInfo,
	"low":      SeverityLow,
	"medium":   SeverityMedium,
	"high":     SeverityHigh,
	"critical": SeverityCritical,
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// AtLeast reports whether s is at least as urgent as other.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// ParseSeverity maps the wire/database name to a Severity.
func ParseSeverity(name string) (Severity, error) {
	s, ok := severityValues[name]
	if !ok {
		return SeverityInfo, fmt.Errorf("unknown severity %q", name)
	}
	return s, nil
}

func (s Severity) MarshalJSON() ([]byte, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal severity %d", int(s))
	}
	return []byte(`"` + name + `"`), nil
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("severity must be a JSON string, got %s", string(b))
	}
	parsed, err := ParseSeverity(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Value stores the severity by name so rows stay readable in psql.
func (s Severity) Value() (driver.Value, error) {
	name, ok := severityNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot store severity %d", int(s))
	}
	return name, nil
}

func (s *Severity) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseSeverity(v)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	case []byte:
		parsed, err := ParseSeverity(string(v))
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into Severity", src)
	}
}

// Priority is the transport-level urgency, a coarsening of severity.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
)

// PriorityFor coarsens a severity into its transport priority.
func PriorityFor(s Severity) Priority {
	switch s {
	case SeverityCritical:
		return PriorityCritical
	case SeverityHigh:
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

// alertTTLs is the severity-indexed expiration table. Fixed at alert creation
// and part of the external contract.
var alertTTLs = map[Severity]time.Duration{
	SeverityCritical: 24 * time.Hour,
	SeverityHigh:     48 * time.Hour,
	SeverityMedium:   72 * time.Hour,
	SeverityLow:      7 * 24 * time.Hour,
	SeverityInfo:     14 * 24 * time.Hour,
}

// ExpiryFor returns how long an alert of the given severity stays live.
func ExpiryFor(s Severity) time.Duration {
	if ttl, ok := alertTTLs[s]; ok {
		return ttl
	}
	return alertTTLs[SeverityInfo]
}
