package llmrouter

import "testing"

func TestEstimateUsesKnownModelRate(t *testing.T) {
	table := DefaultRateTable()
	usd, warned := table.Estimate("gpt-4o-mini", 1_000_000, 1_000_000)
	if warned {
		t.Fatal("expected no fallback warning for known model")
	}
	want := 0.15 + 0.6
	if usd != want {
		t.Fatalf("Estimate() = %v, want %v", usd, want)
	}
}

func TestEstimateFallsBackForUnknownModel(t *testing.T) {
	table := DefaultRateTable()
	usd, warned := table.Estimate("some-future-model-v9", 1_000_000, 1_000_000)
	if !warned {
		t.Fatal("expected fallback warning for unknown model")
	}
	want := conservativeFallback.InputPerM + conservativeFallback.OutputPerM
	if usd != want {
		t.Fatalf("Estimate() = %v, want %v", usd, want)
	}
}

func TestEstimateZeroTokensIsZeroCost(t *testing.T) {
	table := DefaultRateTable()
	usd, _ := table.Estimate("claude-sonnet-4-20250514", 0, 0)
	if usd != 0 {
		t.Fatalf("Estimate() = %v, want 0", usd)
	}
}
