package dispatch

import (
	"math"
	"sort"

	"github.com/talava/dispatch-backend/pkg/db/models"
	"github.com/talava/dispatch-backend/pkg/geo"
)

// Candidate is one ranked dispatch option for an order.
type Candidate struct {
	AgentID       string  `json:"agent_id"`
	Name          string  `json:"name"`
	DistanceKm    float64 `json:"distance_km"`
	EtaMinutes    int     `json:"eta_minutes"`
	ActiveOrders  int     `json:"active_orders"`
	MaxOrders     int     `json:"max_orders"`
	AverageRating float64 `json:"average_rating"`
	RatingCount   int     `json:"rating_count"`
	Deliveries    int     `json:"deliveries"`
}

// MatchParams tune the ranking. Zero values fall back to the defaults used
// across the platform.
type MatchParams struct {
	RadiusKm        float64
	EtaMinutesPerKm float64
}

const (
	defaultRadiusKm        = 10
	defaultEtaMinutesPerKm = 3
)

// Match ranks agents by great-circle proximity to the pickup point. Callers
// pre-filter agents for duty eligibility; Match additionally drops anyone
// outside the radius or without a usable position. It never errors: an
// unmatchable input simply yields an empty slice. No capacity is reserved.
func Match(pickup geo.Point, agents []models.Agent, params MatchParams) []Candidate {
	radius := params.RadiusKm
	if radius <= 0 {
		radius = defaultRadiusKm
	}
	perKm := params.EtaMinutesPerKm
	if perKm <= 0 {
		perKm = defaultEtaMinutesPerKm
	}

	candidates := make([]Candidate, 0, len(agents))
	for i := range agents {
		agent := &agents[i]
		lat, lon, ok := agent.Position()
		if !ok || !agent.Dispatchable() {
			continue
		}
		distance := geo.DistanceKm(pickup, geo.Point{Lat: lat, Lon: lon})
		if distance > radius {
			continue
		}
		candidates = append(candidates, Candidate{
			AgentID:       agent.ID.String(),
			Name:          agent.Name,
			DistanceKm:    geo.Round2(distance),
			EtaMinutes:    int(math.Ceil(distance * perKm)),
			ActiveOrders:  agent.CurrentActiveOrders,
			MaxOrders:     agent.MaxActiveOrders,
			AverageRating: agent.AverageRating,
			RatingCount:   agent.RatingCount,
			Deliveries:    agent.TotalDeliveries,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].DistanceKm != candidates[j].DistanceKm {
			return candidates[i].DistanceKm < candidates[j].DistanceKm
		}
		if candidates[i].ActiveOrders != candidates[j].ActiveOrders {
			return candidates[i].ActiveOrders < candidates[j].ActiveOrders
		}
		return candidates[i].AgentID < candidates[j].AgentID
	})
	return candidates
}
