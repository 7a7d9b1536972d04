package domain

import "time"

// Risk levels ordered from least to most concerning.
const (
	RiskLow      = "LOW"
	RiskModerate = "MODERATE"
	RiskHigh     = "HIGH"
	RiskExtreme  = "EXTREME"
)

// Urgency bands derived from event age.
const (
	UrgencyImmediate = "IMMEDIATE"
	UrgencyHigh      = "HIGH"
	UrgencyMedium    = "MEDIUM"
	UrgencyLow       = "LOW"
)

// Scorer assigns risk, urgency, impact radius, and a composite threat score
// to an event.
type Scorer interface {
	Score(event Event) Event
}

// RiskScorer is the rule-based Scorer. Thresholds follow operational
// heuristics per category: Richter bands for quakes, detection confidence for
// fires, the normalized severity scale for weather.
type RiskScorer struct{}

// Score fills the event's risk fields in place and returns it.
func (RiskScorer) Score(event Event) Event {
	event.RiskLevel = deriveRiskLevel(event)
	event.Urgency = deriveUrgency(event.LastSeen)
	event.ImpactRadiusKm = deriveImpactRadius(event)
	event.ThreatScore = threatScore(event.RiskLevel, event.Urgency)
	return event
}

func deriveRiskLevel(event Event) string {
	switch event.Category {
	case CategoryEarthquake:
		switch {
		case event.Magnitude < 3.0:
			return RiskLow
		case event.Magnitude < 5.0:
			return RiskModerate
		case event.Magnitude < 6.5:
			return RiskHigh
		default:
			return RiskExtreme
		}
	case CategoryWildfire:
		// Confidence doubles as the fire risk proxy; FIRMS reports no magnitude.
		switch {
		case event.Confidence < 0.3:
			return RiskLow
		case event.Confidence < 0.6:
			return RiskModerate
		case event.Confidence < 0.8:
			return RiskHigh
		default:
			return RiskExtreme
		}
	default:
		switch event.Severity {
		case "extreme", "severe":
			return RiskHigh
		case "moderate":
			return RiskModerate
		default:
			return RiskLow
		}
	}
}

// deriveUrgency bands an event by how recently it was last observed.
func deriveUrgency(lastSeen time.Time) string {
	if lastSeen.IsZero() {
		return UrgencyLow
	}
	age := clock.Now().Sub(lastSeen)
	switch {
	case age < time.Hour:
		return UrgencyImmediate
	case age < 6*time.Hour:
		return UrgencyHigh
	case age < 24*time.Hour:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// deriveImpactRadius estimates an affected radius in kilometers per category.
func deriveImpactRadius(event Event) float64 {
	switch event.Category {
	case CategoryEarthquake:
		r := event.Magnitude * 50
		if r < 10 {
			return 10
		}
		return r
	case CategoryWildfire:
		r := event.Confidence * 10
		if r < 5 {
			return 5
		}
		return r
	case CategoryFlood:
		return 25
	default:
		return 50
	}
}

var (
	riskScores = map[string]float64{
		RiskLow:      10,
		RiskModerate: 30,
		RiskHigh:     70,
		RiskExtreme:  100,
	}
	urgencyScores = map[string]float64{
		UrgencyImmediate: 40,
		UrgencyHigh:      30,
		UrgencyMedium:    20,
		UrgencyLow:       10,
	}
)

// threatScore combines risk and urgency into a 0-100 ordering key,
// weighted 70/30 toward risk.
func threatScore(riskLevel, urgency string) float64 {
	risk, ok := riskScores[riskLevel]
	if !ok {
		risk = 10
	}
	urg, ok := urgencyScores[urgency]
	if !ok {
		urg = 10
	}
	score := risk*0.7 + urg*0.3
	// Round to one decimal so serialized scores are stable.
	return float64(int(score*10+0.5)) / 10
}
