package domain

import "fmt"

// DisasterStatus is the verification outcome of a disaster report.
type DisasterStatus uint8

const (
	StatusPending DisasterStatus = iota
	StatusVerified
	StatusFalseAlarm
	StatusResolved
)

func (s DisasterStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusVerified:
		return "VERIFIED"
	case StatusFalseAlarm:
		return "FALSE_ALARM"
	case StatusResolved:
		return "RESOLVED"
	default:
		return fmt.Sprintf("DisasterStatus(%d)", uint8(s))
	}
}

// ParseDisasterStatus is the inverse of String.
func ParseDisasterStatus(v string) (DisasterStatus, error) {
	switch v {
	case "PENDING":
		return StatusPending, nil
	case "VERIFIED":
		return StatusVerified, nil
	case "FALSE_ALARM":
		return StatusFalseAlarm, nil
	case "RESOLVED":
		return StatusResolved, nil
	default:
		return 0, fmt.Errorf("unknown disaster status %q", v)
	}
}

// CanTransitionTo reports whether moving from s to next is a legal step.
// FALSE_ALARM to VERIFIED is only taken by emergency escalation.
func (s DisasterStatus) CanTransitionTo(next DisasterStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusVerified || next == StatusFalseAlarm
	case StatusVerified:
		return next == StatusResolved
	case StatusFalseAlarm:
		return next == StatusVerified || next == StatusResolved
	case StatusResolved:
		return false
	default:
		return false
	}
}

// Decided reports whether the majority decision has been made.
func (s DisasterStatus) Decided() bool {
	return s != StatusPending
}

func (s DisasterStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DisasterStatus) UnmarshalText(b []byte) error {
	v, err := ParseDisasterStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AlertStatus tracks the one-shot emergency escalation of a disaster.
type AlertStatus uint8

const (
	AlertInitial AlertStatus = iota
	AlertEmergencyActive
	AlertResolved
)

func (a AlertStatus) String() string {
	switch a {
	case AlertInitial:
		return "INITIAL"
	case AlertEmergencyActive:
		return "EMERGENCY_ACTIVE"
	case AlertResolved:
		return "RESOLVED"
	default:
		return fmt.Sprintf("AlertStatus(%d)", uint8(a))
	}
}

// ParseAlertStatus is the inverse of String.
func ParseAlertStatus(v string) (AlertStatus, error) {
	switch v {
	case "INITIAL":
		return AlertInitial, nil
	case "EMERGENCY_ACTIVE":
		return AlertEmergencyActive, nil
	case "RESOLVED":
		return AlertResolved, nil
	default:
		return 0, fmt.Errorf("unknown alert status %q", v)
	}
}

// CanTransitionTo reports whether moving from a to next is a legal step.
// EMERGENCY_ACTIVE is sticky: once left it is never re-entered.
func (a AlertStatus) CanTransitionTo(next AlertStatus) bool {
	switch a {
	case AlertInitial:
		return next == AlertEmergencyActive || next == AlertResolved
	case AlertEmergencyActive:
		return next == AlertResolved
	case AlertResolved:
		return false
	default:
		return false
	}
}

func (a AlertStatus) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AlertStatus) UnmarshalText(b []byte) error {
	v, err := ParseAlertStatus(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
