package selector

import (
	"fmt"
	"strings"
)

// Strategy is the closed set of selection rules.
type Strategy int

const (
	PriorityBased Strategy = iota
	PerformanceBased
	LeastLoaded
	RoundRobin
)

// Default is used when no strategy is configured.
const Default = PriorityBased

func (s Strategy) String() string {
	switch s {
	case PriorityBased:
		return "priority_based"
	case PerformanceBased:
		return "performance_based"
	case LeastLoaded:
		return "least_loaded"
	case RoundRobin:
		return "round_robin"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy accepts the snake_case names, case-insensitively, with '-' for '_'.
func ParseStrategy(value string) (Strategy, error) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(value)), "-", "_")
	switch normalized {
	case "", "priority_based", "priority":
		return PriorityBased, nil
	case "performance_based", "performance":
		return PerformanceBased, nil
	case "least_loaded":
		return LeastLoaded, nil
	case "round_robin":
		return RoundRobin, nil
	default:
		return Default, fmt.Errorf("%w: %q", ErrUnknownStrategy, value)
	}
}

// MarshalText lets strategies appear by name in JSON and config output.
func (s Strategy) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Strategy) UnmarshalText(text []byte) error {
	parsed, err := ParseStrategy(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
