package store

import "sort"

// RiskLevel classifies impact based on BFS hop depth.
type RiskLevel string

const (
	RiskCritical RiskLevel = "CRITICAL"
	RiskHigh     RiskLevel = "HIGH"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskLow      RiskLevel = "LOW"
)

// HopToRisk maps a BFS hop depth to a risk level.
func HopToRisk(hop int) RiskLevel {
	switch hop {
	case 1:
		return RiskCritical
	case 2:
		return RiskHigh
	case 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// ImpactSummary aggregates risk counts from a BFS traversal.
type ImpactSummary struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Total    int `json:"total"`
	// CrossModule is set when an impacted node lives in another module
	// than the root.
	CrossModule bool `json:"cross_module"`
}

// BuildImpactSummary computes risk distribution from deduplicated node hops.
func BuildImpactSummary(root *Node, hops []*NodeHop) ImpactSummary {
	var s ImpactSummary
	rootModule := ""
	if root != nil {
		rootModule, _ = root.Properties["module"].(string)
	}
	for _, nh := range hops {
		switch HopToRisk(nh.Hop) {
		case RiskCritical:
			s.Critical++
		case RiskHigh:
			s.High++
		case RiskMedium:
			s.Medium++
		case RiskLow:
			s.Low++
		}
		s.Total++
		if m, _ := nh.Node.Properties["module"].(string); m != "" && rootModule != "" && m != rootModule {
			s.CrossModule = true
		}
	}
	return s
}

// DeduplicateHops removes duplicate nodes from BFS results, keeping the
// minimum hop (highest risk) for each node. Output is ordered by hop, then
// label, then key.
func DeduplicateHops(hops []*NodeHop) []*NodeHop {
	best := make(map[int64]*NodeHop)
	for _, nh := range hops {
		if existing, ok := best[nh.Node.ID]; !ok || nh.Hop < existing.Hop {
			best[nh.Node.ID] = nh
		}
	}
	result := make([]*NodeHop, 0, len(best))
	for _, nh := range best {
		result = append(result, nh)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Hop != b.Hop {
			return a.Hop < b.Hop
		}
		if a.Node.Label != b.Node.Label {
			return a.Node.Label < b.Node.Label
		}
		return a.Node.Key < b.Node.Key
	})
	return result
}
