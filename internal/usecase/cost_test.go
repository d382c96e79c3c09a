package usecase

import (
	"encoding/json"
	"testing"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

func TestCostOf_Baseline(t *testing.T) {
	cases := map[domain.Capability]domain.Tokens{
		domain.CapabilityImage: domain.TokensFromFloat(1.0),
		domain.CapabilityText:  domain.TokensFromFloat(0.5),
		domain.CapabilityAudio: domain.TokensFromFloat(0.5),
		domain.CapabilityVideo: domain.TokensFromFloat(2.0),
	}
	for cap, want := range cases {
		if got := costOf(cap, nil); got != want {
			t.Fatalf("costOf(%s, nil) = %v, want %v", cap, got, want)
		}
	}
}

func TestCostOf_UnknownCapability(t *testing.T) {
	if got := costOf(domain.Capability("3d"), nil); got != 0 {
		t.Fatalf("costOf(unknown) = %v, want 0", got)
	}
}

func TestCostOf_TextSurcharge(t *testing.T) {
	prompt := ""
	for i := 0; i < 2000; i++ {
		prompt += "token "
	}
	params, err := json.Marshal(textParams{Prompt: prompt})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got := costOf(domain.CapabilityText, params)
	if got <= baselineCost[domain.CapabilityText] {
		t.Fatalf("expected surcharge above baseline, got %v", got)
	}
}

func TestCostOf_TextNoPromptUsesBaseline(t *testing.T) {
	if got := costOf(domain.CapabilityText, nil); got != baselineCost[domain.CapabilityText] {
		t.Fatalf("costOf(text, nil) = %v, want baseline", got)
	}
	params, _ := json.Marshal(textParams{Prompt: ""})
	if got := costOf(domain.CapabilityText, params); got != baselineCost[domain.CapabilityText] {
		t.Fatalf("costOf(text, empty prompt) = %v, want baseline", got)
	}
}
