package store

import "testing"

func TestHopToRisk(t *testing.T) {
	tests := []struct {
		hop  int
		want RiskLevel
	}{
		{1, RiskCritical},
		{2, RiskHigh},
		{3, RiskMedium},
		{4, RiskLow},
		{10, RiskLow},
	}
	for _, tt := range tests {
		got := HopToRisk(tt.hop)
		if got != tt.want {
			t.Errorf("HopToRisk(%d) = %s, want %s", tt.hop, got, tt.want)
		}
	}
}

func TestBuildImpactSummary(t *testing.T) {
	root := &Node{ID: 0, Properties: map[string]any{"module": "sale"}}
	hops := []*NodeHop{
		{Node: &Node{ID: 1, Properties: map[string]any{"module": "sale"}}, Hop: 1},
		{Node: &Node{ID: 2, Properties: map[string]any{}}, Hop: 1},
		{Node: &Node{ID: 3, Properties: map[string]any{"module": "sale"}}, Hop: 2},
		{Node: &Node{ID: 4, Properties: map[string]any{}}, Hop: 3},
		{Node: &Node{ID: 5, Properties: map[string]any{}}, Hop: 4},
	}

	s := BuildImpactSummary(root, hops)

	if s.Critical != 2 || s.High != 1 || s.Medium != 1 || s.Low != 1 {
		t.Errorf("unexpected distribution: %+v", s)
	}
	if s.Total != 5 {
		t.Errorf("total = %d, want 5", s.Total)
	}
	if s.CrossModule {
		t.Error("expected cross_module=false")
	}
}

func TestCrossModuleDetection(t *testing.T) {
	root := &Node{Properties: map[string]any{"module": "sale"}}
	hops := []*NodeHop{{Node: &Node{ID: 1, Properties: map[string]any{"module": "sale_stock"}}, Hop: 1}}
	if s := BuildImpactSummary(root, hops); !s.CrossModule {
		t.Error("expected cross_module=true")
	}
}

func TestDeduplicateHops(t *testing.T) {
	hops := []*NodeHop{
		{Node: &Node{ID: 1, Label: "Model", Key: "a"}, Hop: 2},
		{Node: &Node{ID: 1, Label: "Model", Key: "a"}, Hop: 3}, // duplicate at higher hop
		{Node: &Node{ID: 2, Label: "Model", Key: "b"}, Hop: 1},
		{Node: &Node{ID: 3, Label: "Model", Key: "c"}, Hop: 3},
	}

	result := DeduplicateHops(hops)

	if len(result) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(result))
	}
	if result[0].Node.Key != "b" || result[0].Hop != 1 {
		t.Errorf("first: expected b@1, got %s@%d", result[0].Node.Key, result[0].Hop)
	}
	if result[1].Node.Key != "a" || result[1].Hop != 2 {
		t.Errorf("second: expected a@2, got %s@%d", result[1].Node.Key, result[1].Hop)
	}
	if result[2].Node.Key != "c" || result[2].Hop != 3 {
		t.Errorf("third: expected c@3, got %s@%d", result[2].Node.Key, result[2].Hop)
	}
}
