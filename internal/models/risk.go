package models

import "time"

type RiskLevel string

const (
	RiskSafe     RiskLevel = "SAFE"
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

func RiskLevelFor(s Severity) RiskLevel {
	switch s {
	case SeverityLow:
		return RiskLow
	case SeverityMedium:
		return RiskMedium
	case SeverityHigh:
		return RiskHigh
	case SeverityCritical:
		return RiskCritical
	default:
		return RiskSafe
	}
}

// Impact qualifies how deep inside a disaster's radius a location sits.
type Impact string

const (
	ImpactImmediate Impact = "IMMEDIATE" // inner 30% of the radius
	ImpactHigh      Impact = "HIGH"      // inner 60%
	ImpactElevated  Impact = "ELEVATED"
)

func ImpactFor(distanceKm, radiusKm float64) Impact {
	switch {
	case distanceKm <= radiusKm*0.3:
		return ImpactImmediate
	case distanceKm <= radiusKm*0.6:
		return ImpactHigh
	default:
		return ImpactElevated
	}
}

type AffectingDisaster struct {
	Disaster   Summary `json:"disaster"`
	DistanceKm float64 `json:"distanceKm"`
	Impact     Impact  `json:"impact"`
}

type RiskAssessment struct {
	Level           RiskLevel           `json:"level"`
	Disasters       []AffectingDisaster `json:"disasters"`
	Recommendations []string            `json:"recommendations"`
	AssessedAt      time.Time           `json:"assessedAt"`
}
