package risk

import "github.com/credio/credio-alerts/internal/models"

const (
	recEnableLocation = "Enable location services to receive a personalized risk assessment."
	recStayInformed   = "No active disasters near you. Stay informed and keep an emergency kit ready."
	recFallback       = "Follow guidance from local authorities."
)

var recommendations = map[models.DisasterType][]string{
	models.DisasterTypeEarthquake: {
		"Drop, cover, and hold on until the shaking stops.",
		"Stay away from windows, heavy furniture and exterior walls.",
		"Expect aftershocks; check your building for damage before re-entering.",
	},
	models.DisasterTypeFlood: {
		"Move to higher ground immediately.",
		"Do not walk or drive through flood water.",
		"Switch off electricity at the mains if water is entering your home.",
	},
	models.DisasterTypeCyclone: {
		"Stay indoors away from windows until the storm has fully passed.",
		"Secure loose outdoor objects and prepare for power outages.",
		"Follow evacuation orders for coastal and low-lying areas.",
	},
	models.DisasterTypeTsunami: {
		"Move inland or to high ground immediately.",
		"Stay away from the coast until officials declare it safe.",
	},
	models.DisasterTypeVolcano: {
		"Avoid areas downwind of the volcano.",
		"Wear a mask and protect your eyes from ash fall.",
	},
	models.DisasterTypeWildfire: {
		"Be ready to evacuate at short notice.",
		"Close windows and doors to keep smoke out.",
		"Avoid outdoor activity and wear a mask if air quality is poor.",
	},
	models.DisasterTypeDrought: {
		"Conserve water and follow local usage restrictions.",
	},
	models.DisasterTypeStorm: {
		"Stay indoors and avoid travel.",
		"Stay clear of fallen power lines.",
	},
	models.DisasterTypeHeatwave: {
		"Stay hydrated and avoid strenuous activity during the hottest hours.",
		"Check on elderly neighbours and keep pets out of the heat.",
	},
	models.DisasterTypeLandslide: {
		"Stay away from steep slopes and drainage channels.",
		"Listen for unusual sounds such as cracking trees or moving debris.",
	},
}

// For returns the guidance for a hazard type. Unknown types get the
// generic fallback.
func For(t models.DisasterType) []string {
	if recs, ok := recommendations[t]; ok {
		return recs
	}
	return []string{recFallback}
}
