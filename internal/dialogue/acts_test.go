package dialogue

import (
	"testing"
)

func situationWithIntent(goal string, confidence float64) *SituationModel {
	return &SituationModel{
		ID: "sit_test",
		Intentions: []Intention{
			{ID: "int_1", ActorID: "user", Goal: goal, Confidence: confidence},
		},
		UnderstandingScore: 0.8,
	}
}

func scoreFor(result ActSelectionResult, act DialogueAct) float64 {
	for _, sc := range result.AllScores {
		if sc.Act == act {
			return sc.Score
		}
	}
	return -1
}

func TestSelectGreeting(t *testing.T) {
	s := NewActSelector(DefaultActSelectorConfig(), nil)
	result := s.Select(situationWithIntent("greeting", 0.9), nil)

	if len(result.PrimaryActs) == 0 || result.PrimaryActs[0] != ActGreet {
		t.Errorf("PrimaryActs = %v, want greet first", result.PrimaryActs)
	}
	if result.Confidence <= 0.3 {
		t.Errorf("Confidence = %v, want above fallback level", result.Confidence)
	}
}

func TestSelectCapsPrimaryAndSecondary(t *testing.T) {
	cfg := DefaultActSelectorConfig()
	s := NewActSelector(cfg, nil)

	situation := situationWithIntent("express_negative", 0.9)
	situation.Emotion = &EmotionalState{Valence: -0.7, Arousal: 0.6}
	result := s.Select(situation, nil)

	if len(result.PrimaryActs) > cfg.MaxPrimaryActs {
		t.Errorf("got %d primary acts, cap is %d", len(result.PrimaryActs), cfg.MaxPrimaryActs)
	}
	if len(result.SecondaryActs) > cfg.MaxSecondaryActs {
		t.Errorf("got %d secondary acts, cap is %d", len(result.SecondaryActs), cfg.MaxSecondaryActs)
	}
}

func TestEthicsFilterInHighRiskSituation(t *testing.T) {
	s := NewActSelector(DefaultActSelectorConfig(), nil)

	situation := situationWithIntent("request_help", 0.6)
	situation.Risks = []SituationRisk{{Category: "ethical", Level: 0.9}}
	result := s.Select(situation, nil)

	// Warn and refuse both serve ethical risk, but the filter boosts the
	// protective act and halves the dismissive one.
	warn := scoreFor(result, ActWarn)
	refuse := scoreFor(result, ActRefuse)
	if warn <= refuse {
		t.Errorf("warn %v should outscore refuse %v under high risk", warn, refuse)
	}
}

func TestEthicsFilterOffLeavesScoresAlone(t *testing.T) {
	situation := situationWithIntent("request_help", 0.6)
	situation.Risks = []SituationRisk{{Category: "ethical", Level: 0.9}}

	cfg := DefaultActSelectorConfig()
	cfg.EnableEthicsCheck = false
	cfg.EnableAffect = false
	result := NewActSelector(cfg, nil).Select(situation, nil)

	if scoreFor(result, ActWarn) != scoreFor(result, ActRefuse) {
		t.Errorf("without the filter warn %v and refuse %v share the same risk signal",
			scoreFor(result, ActWarn), scoreFor(result, ActRefuse))
	}
}

func TestFallbackWhenNothingClearsThreshold(t *testing.T) {
	s := NewActSelector(DefaultActSelectorConfig(), nil)

	situation := &SituationModel{ID: "sit_empty"}
	result := s.Select(situation, nil)

	if len(result.PrimaryActs) != 1 || result.PrimaryActs[0] != ActAcknowledge {
		t.Errorf("PrimaryActs = %v, want acknowledge fallback", result.PrimaryActs)
	}
	if result.Confidence != 0.3 {
		t.Errorf("fallback Confidence = %v, want 0.3", result.Confidence)
	}
}

func TestFallbackPrefersGreetForGreetingIntent(t *testing.T) {
	s := NewActSelector(DefaultActSelectorConfig(), nil)

	result := s.Select(situationWithIntent("greeting", 0.1), nil)
	if len(result.PrimaryActs) != 1 || result.PrimaryActs[0] != ActGreet {
		t.Errorf("PrimaryActs = %v, want greet fallback for a weak greeting", result.PrimaryActs)
	}
}

func TestRepetitionPenalty(t *testing.T) {
	s := NewActSelector(DefaultActSelectorConfig(), nil)
	situation := situationWithIntent("greeting", 0.9)

	plain := s.Select(situation, nil)
	repeated := s.Select(situation, &TurnContext{LastAssistantAct: ActGreet})

	if scoreFor(repeated, ActGreet) >= scoreFor(plain, ActGreet) {
		t.Errorf("repeating greet should be penalized: %v >= %v",
			scoreFor(repeated, ActGreet), scoreFor(plain, ActGreet))
	}
}

func TestExpressiveStrategyBoostsEmotionalActs(t *testing.T) {
	situation := situationWithIntent("express_negative", 0.8)
	situation.Emotion = &EmotionalState{Valence: -0.4}

	balanced := NewActSelector(DefaultActSelectorConfig(), nil).Select(situation, nil)

	cfg := DefaultActSelectorConfig()
	cfg.Strategy = StrategyExpressive
	expressive := NewActSelector(cfg, nil).Select(situation, nil)

	if scoreFor(expressive, ActEmpathize) <= scoreFor(balanced, ActEmpathize) {
		t.Errorf("expressive strategy should boost empathize: %v <= %v",
			scoreFor(expressive, ActEmpathize), scoreFor(balanced, ActEmpathize))
	}
}

func TestConservativeStrategyBoostsCautiousActs(t *testing.T) {
	situation := situationWithIntent("request_info", 0.8)

	balanced := NewActSelector(DefaultActSelectorConfig(), nil).Select(situation, nil)

	cfg := DefaultActSelectorConfig()
	cfg.Strategy = StrategyConservative
	conservative := NewActSelector(cfg, nil).Select(situation, nil)

	if scoreFor(conservative, ActClarify) <= scoreFor(balanced, ActClarify) {
		t.Errorf("conservative strategy should boost clarify: %v <= %v",
			scoreFor(conservative, ActClarify), scoreFor(balanced, ActClarify))
	}
}

func TestValidStrategy(t *testing.T) {
	for _, s := range []SelectionStrategy{StrategyConservative, StrategyBalanced, StrategyExpressive} {
		if !ValidStrategy(s) {
			t.Errorf("ValidStrategy(%q) = false", s)
		}
	}
	if ValidStrategy("aggressive") {
		t.Error("unknown strategy accepted")
	}
}
