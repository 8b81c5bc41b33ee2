package selector

import "apiorch/pkg/models"

// Gate is the rate-limit admission check applied to every candidate.
type Gate func(ep models.Endpoint) bool

// Candidates filters endpoints down to the eligible set, keeping input order.
func Candidates(endpoints []models.Endpoint, excluded map[string]struct{}, gate Gate) []models.Endpoint {
	out := make([]models.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.Status != models.StatusActive {
			continue
		}
		if _, skip := excluded[ep.Name]; skip {
			continue
		}
		if !ep.HealthStatus.Usable() {
			continue
		}
		if gate != nil && !gate(ep) {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// Pick applies a strategy to an already filtered candidate list.
func Pick(strategy Strategy, candidates []models.Endpoint) (models.Endpoint, bool) {
	if len(candidates) == 0 {
		return models.Endpoint{}, false
	}

	var idx int
	switch strategy {
	case PriorityBased:
		idx = byPriority(candidates)
	case PerformanceBased:
		idx = byResponseTime(candidates)
	case LeastLoaded:
		idx = byMinuteUsage(candidates)
	case RoundRobin:
		idx = byAssignments(candidates)
	default:
		idx = byPriority(candidates)
	}
	return candidates[idx], true
}

// Select builds the candidate set and picks one endpoint from it.
func Select(strategy Strategy, endpoints []models.Endpoint, excluded map[string]struct{}, gate Gate) (models.Endpoint, bool) {
	return Pick(strategy, Candidates(endpoints, excluded, gate))
}

// argmin returns the index of the first minimum.
func argmin[T int | int64 | float64](candidates []models.Endpoint, key func(models.Endpoint) T) int {
	best := 0
	bestKey := key(candidates[0])
	for i := 1; i < len(candidates); i++ {
		if k := key(candidates[i]); k < bestKey {
			best, bestKey = i, k
		}
	}
	return best
}

func byPriority(candidates []models.Endpoint) int {
	return argmin(candidates, func(ep models.Endpoint) int { return ep.FailoverPriority })
}

func byResponseTime(candidates []models.Endpoint) int {
	return argmin(candidates, func(ep models.Endpoint) float64 { return ep.AverageResponseTime })
}

func byMinuteUsage(candidates []models.Endpoint) int {
	return argmin(candidates, func(ep models.Endpoint) int { return ep.CurrentUsageMinute })
}

func byAssignments(candidates []models.Endpoint) int {
	return argmin(candidates, func(ep models.Endpoint) int64 { return ep.TotalAssigned })
}
