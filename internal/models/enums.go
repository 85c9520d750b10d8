package models

import (
	"fmt"
	"strings"
)

type DisasterType int

const (
	DisasterTypeUnknown DisasterType = iota
	DisasterTypeEarthquake
	DisasterTypeFlood
	DisasterTypeCyclone
	DisasterTypeTsunami
	DisasterTypeVolcano
	DisasterTypeWildfire
	DisasterTypeDrought
	DisasterTypeStorm
	DisasterTypeHeatwave
	DisasterTypeLandslide
)

var disasterTypeNames = map[DisasterType]string{
	DisasterTypeUnknown:    "UNSPECIFIED",
	DisasterTypeEarthquake: "EARTHQUAKE",
	DisasterTypeFlood:      "FLOOD",
	DisasterTypeCyclone:    "CYCLONE",
	DisasterTypeTsunami:    "TSUNAMI",
	DisasterTypeVolcano:    "VOLCANO",
	DisasterTypeWildfire:   "WILDFIRE",
	DisasterTypeDrought:    "DROUGHT",
	DisasterTypeStorm:      "STORM",
	DisasterTypeHeatwave:   "HEATWAVE",
	DisasterTypeLandslide:  "LANDSLIDE",
}

func (t DisasterType) String() string {
	if s, ok := disasterTypeNames[t]; ok {
		return s
	}
	return "UNSPECIFIED"
}

// ParseDisasterType is case-insensitive; unrecognized names map to DisasterTypeUnknown.
func ParseDisasterType(s string) DisasterType {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "HURRICANE", "TYPHOON", "TROPICAL_CYCLONE":
		return DisasterTypeCyclone
	case "FIRE", "BUSHFIRE":
		return DisasterTypeWildfire
	case "HEAT", "HEAT_WAVE":
		return DisasterTypeHeatwave
	}
	for t, name := range disasterTypeNames {
		if name == s {
			return t
		}
	}
	return DisasterTypeUnknown
}

func (t DisasterType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DisasterType) UnmarshalText(b []byte) error {
	*t = ParseDisasterType(string(b))
	return nil
}

// Severity is ordered: LOW < MEDIUM < HIGH < CRITICAL.
type Severity int

const (
	SeverityUnknown Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func ParseSeverity(s string) (Severity, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW", "MINOR":
		return SeverityLow, nil
	case "MEDIUM", "MODERATE":
		return SeverityMedium, nil
	case "HIGH", "SEVERE":
		return SeverityHigh, nil
	case "CRITICAL", "EXTREME":
		return SeverityCritical, nil
	default:
		return SeverityUnknown, fmt.Errorf("unknown severity %q", s)
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusMonitoring Status = "MONITORING"
	StatusResolved   Status = "RESOLVED"
)

func (s Status) String() string {
	return string(s)
}

func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToUpper(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusMonitoring:
		return StatusMonitoring, nil
	case StatusResolved:
		return StatusResolved, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}
