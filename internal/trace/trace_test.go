package trace

import "testing"

func TestNoopAnalyzerAlwaysZero(t *testing.T) {
	var a Analyzer = NoopAnalyzer{}
	n, err := a.Count(DirectionFromServer, PacketTypeRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0, got %d", n)
	}
}
