package pipeline

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"palaver/internal/dialogue"
	"palaver/internal/logging"
)

// OutcomeKind tags a critique outcome so the revision loop can switch on it
// exhaustively instead of inspecting nested booleans.
type OutcomeKind int

const (
	OutcomeAccepted OutcomeKind = iota
	OutcomeRevise
	OutcomeFailed
)

// CritiqueOutcome is the tagged result of one critique pass. Revised is only
// set for OutcomeRevise.
type CritiqueOutcome struct {
	Kind    OutcomeKind
	Reason  string
	Revised string
}

// CritiqueResult carries the full evaluation behind an outcome.
type CritiqueResult struct {
	Passed        bool     `json:"passed"`
	Score         float64  `json:"score"`
	Violations    []string `json:"violations,omitempty"`
	Improvements  []string `json:"improvements,omitempty"`
	RevisedOutput string   `json:"revised_output,omitempty"`
	ToneScore     float64  `json:"tone_score"`
	Coverage      float64  `json:"coverage"`
}

// HasCriticalViolation reports whether any violation touches the categories
// that can never be waved through regardless of the overall score.
func (r *CritiqueResult) HasCriticalViolation() bool {
	for _, v := range r.Violations {
		lower := strings.ToLower(v)
		if strings.Contains(lower, "critical") ||
			strings.Contains(lower, "safety") ||
			strings.Contains(lower, "danger") {
			return true
		}
	}
	return false
}

// toneKeywords holds, per tone, the phrases that signal the tone (positive)
// and the ones that break it (negative).
var toneKeywords = map[dialogue.ToneType]struct {
	positive []string
	negative []string
}{
	dialogue.ToneEmpathic: {
		positive: []string{"i understand", "that sounds", "i hear you", "i'm here", "here for you", "support"},
		negative: []string{"calm down", "don't overreact", "not a big deal"},
	},
	dialogue.ToneSupportive: {
		positive: []string{"you can do", "i believe in you", "you're strong", "not alone", "together"},
		negative: []string{"you can't", "impossible", "hopeless"},
	},
	dialogue.ToneFormal: {
		positive: []string{"regarding", "i would like to", "please note", "we recommend"},
		negative: []string{"gonna", "c'mon", "dude"},
	},
	dialogue.ToneCasual: {
		positive: []string{"hey", "no worries", "cool", "sure thing", "sounds good"},
		negative: []string{"please note", "we recommend", "regarding"},
	},
	dialogue.ToneCautious: {
		positive: []string{"careful", "might", "perhaps", "possibly", "to be sure"},
		negative: []string{"definitely", "guaranteed", "absolutely"},
	},
	dialogue.ToneSerious: {
		positive: []string{"serious", "important", "critical", "attention"},
		negative: []string{"joke", "funny", "hilarious"},
	},
	dialogue.ToneEnthusiastic: {
		positive: []string{"great", "wonderful", "awesome", "exciting", "fantastic"},
		negative: []string{"boring", "dull", "whatever"},
	},
	dialogue.ToneNeutral: {},
}

// problematicPatterns are phrases the agent must never emit, by category. At
// most one violation per category is reported.
var problematicPatterns = []struct {
	category string
	patterns []string
}{
	{"offensive", []string{"stupid", "idiot", "moron"}},
	{"harmful", []string{"hurt yourself", "kill yourself", "end it all"}},
	{"misleading", []string{"definitely true", "i'm never wrong", "always works"}},
	{"boundary", []string{"i am a doctor", "i can treat you", "i can prescribe"}},
}

// misleadingPhrases violate the standing honesty constraint.
var misleadingPhrases = []string{"definitely", "guaranteed", "certainly true"}

// Critic evaluates a rendered response against its plan before delivery and
// can apply a bounded mechanical revision when the response falls short.
type Critic struct {
	config CritiqueConfig
	logger *zap.Logger
}

// NewCritic builds a critic.
func NewCritic(config CritiqueConfig, logger *zap.Logger) *Critic {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Critic{config: config, logger: logger.Named("critique")}
}

// Critique evaluates output against the plan: tone fit, content coverage,
// constraint violations, problematic phrases, length. The overall score is
// the mean of the collected check scores.
func (c *Critic) Critique(output string, plan *dialogue.MessagePlan) CritiqueResult {
	if !c.config.Enabled {
		return CritiqueResult{Passed: true, Score: 1.0}
	}
	defer logging.StartTimer(logging.CategoryCritique, "self critique").Stop()

	result := CritiqueResult{}
	var scores []float64
	lower := strings.ToLower(output)

	if c.config.CheckToneMatch {
		toneScore, reason := c.toneMatch(lower, plan.Tone)
		result.ToneScore = toneScore
		scores = append(scores, toneScore)
		if toneScore < 0.5 {
			result.Violations = append(result.Violations, "tone mismatch: "+reason)
			result.Improvements = append(result.Improvements, toneSuggestion(plan.Tone))
		}
	}

	if c.config.CheckCoverage {
		coverage := contentCoverage(lower, plan.ContentPoints)
		result.Coverage = coverage
		scores = append(scores, coverage)
		if coverage < 0.5 {
			result.Violations = append(result.Violations,
				fmt.Sprintf("low content coverage: %.0f%%", coverage*100))
			result.Improvements = append(result.Improvements, missingPoints(lower, plan.ContentPoints)...)
		}
	}

	if c.config.CheckConstraints {
		violations := constraintViolations(lower, plan.Constraints)
		if len(violations) > 0 {
			result.Violations = append(result.Violations, violations...)
			scores = append(scores, maxFloat(0, 1.0-float64(len(violations))*0.2))
			result.Improvements = append(result.Improvements, "remove or rephrase the violating expressions")
		} else {
			scores = append(scores, 1.0)
		}
	}

	patternIssues := patternViolations(lower)
	if len(patternIssues) > 0 {
		result.Violations = append(result.Violations, patternIssues...)
		scores = append(scores, maxFloat(0, 1.0-float64(len(patternIssues))*0.3))
		result.Improvements = append(result.Improvements, "remove the problematic phrases")
	} else {
		scores = append(scores, 1.0)
	}

	if ok, reason := lengthOK(output, plan); !ok {
		result.Violations = append(result.Violations, "length issue: "+reason)
		result.Improvements = append(result.Improvements, "shorten or extend the message")
		scores = append(scores, 0.7)
	} else {
		scores = append(scores, 1.0)
	}

	sum := 0.0
	for _, s := range scores {
		sum += s
	}
	result.Score = sum / float64(len(scores))
	result.Passed = result.Score >= c.config.MinScoreThreshold && !result.HasCriticalViolation()

	if !result.Passed && c.config.AutoRevise {
		result.RevisedOutput = c.Revise(output, result.Improvements)
	}

	c.logger.Debug("critique done",
		zap.String("plan_id", plan.ID),
		zap.Float64("score", result.Score),
		zap.Bool("passed", result.Passed),
		zap.Int("violations", len(result.Violations)))
	return result
}

// Outcome folds a result into the tagged form the revision loop consumes. A
// failed critique without a usable revision is terminal.
func (c *Critic) Outcome(result CritiqueResult, original string) CritiqueOutcome {
	if result.Passed {
		return CritiqueOutcome{Kind: OutcomeAccepted}
	}
	reason := fmt.Sprintf("score %.2f below threshold", result.Score)
	if len(result.Violations) > 0 {
		reason = result.Violations[0]
	}
	if result.RevisedOutput != "" && result.RevisedOutput != original {
		return CritiqueOutcome{Kind: OutcomeRevise, Reason: reason, Revised: result.RevisedOutput}
	}
	return CritiqueOutcome{Kind: OutcomeFailed, Reason: reason}
}

// Revise applies the mechanical fixes: strip problematic phrases, prepend an
// empathy opener when warmth was asked for, trim an over-long tail, and
// normalize whitespace.
func (c *Critic) Revise(output string, improvements []string) string {
	revised := output

	for _, improvement := range improvements {
		lower := strings.ToLower(improvement)

		if strings.Contains(lower, "problematic") {
			for _, entry := range problematicPatterns {
				for _, pattern := range entry.patterns {
					revised = strings.ReplaceAll(revised, pattern, "")
					revised = strings.ReplaceAll(revised, capitalize(pattern), "")
				}
			}
		}

		if strings.Contains(lower, "warm") || strings.Contains(lower, "understanding") {
			rl := strings.ToLower(revised)
			if !strings.Contains(rl, "i understand") && !strings.Contains(rl, "that sounds") {
				revised = "I understand. " + revised
			}
		}

		if strings.Contains(lower, "shorten") && len(revised) > 500 {
			sentences := strings.Split(revised, ". ")
			if len(sentences) > 2 {
				revised = strings.Join(sentences[:len(sentences)-1], ". ") + "."
			}
		}
	}

	revised = strings.Join(strings.Fields(revised), " ")
	revised = strings.ReplaceAll(revised, "..", ".")
	return revised
}

func (c *Critic) toneMatch(lower string, tone dialogue.ToneType) (float64, string) {
	kw, ok := toneKeywords[tone]
	if !ok {
		return 0.5, "unknown tone"
	}
	violations := 0
	for _, phrase := range kw.negative {
		if strings.Contains(lower, phrase) {
			violations++
		}
	}
	if violations > 0 {
		return maxFloat(0, 0.5-float64(violations)*0.2),
			fmt.Sprintf("%d clashing expressions", violations)
	}
	matches := 0
	for _, phrase := range kw.positive {
		if strings.Contains(lower, phrase) {
			matches++
		}
	}
	if matches > 0 {
		return minFloat(1, 0.7+float64(matches)*0.1), "tone matches"
	}
	return 0.6, "no clear tone signal"
}

// contentCoverage is the share of content points with at least one keyword
// (longer than 3 chars) present in the output.
func contentCoverage(lower string, points []dialogue.ContentPoint) float64 {
	if len(points) == 0 {
		return 1.0
	}
	covered := 0
	for _, cp := range points {
		if pointCovered(lower, cp) {
			covered++
		}
	}
	return float64(covered) / float64(len(points))
}

func pointCovered(lower string, cp dialogue.ContentPoint) bool {
	for _, kw := range strings.Fields(strings.ToLower(cp.Value)) {
		if len(kw) > 3 && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func missingPoints(lower string, points []dialogue.ContentPoint) []string {
	var out []string
	for _, cp := range points {
		if !pointCovered(lower, cp) {
			out = append(out, "missing content point: "+cp.Key)
		}
		if len(out) >= 3 {
			break
		}
	}
	return out
}

func constraintViolations(lower string, constraints []dialogue.MessageConstraint) []string {
	var violations []string
	for _, constraint := range constraints {
		desc := strings.ToLower(constraint.Description)
		if strings.Contains(desc, "honest") || strings.Contains(desc, "transparent") {
			for _, phrase := range misleadingPhrases {
				if strings.Contains(lower, phrase) {
					violations = append(violations,
						fmt.Sprintf("constraint violation: %q may be misleading", phrase))
				}
			}
		}
	}
	return violations
}

func patternViolations(lower string) []string {
	var issues []string
	for _, entry := range problematicPatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(lower, pattern) {
				issues = append(issues,
					fmt.Sprintf("problematic phrase (%s): %q", entry.category, pattern))
				break
			}
		}
	}
	return issues
}

func lengthOK(output string, plan *dialogue.MessagePlan) (bool, string) {
	n := len(output)
	if n < 10 {
		return false, "too short (< 10 chars)"
	}
	if n > 2000 {
		return false, "too long (> 2000 chars)"
	}
	if expected := len(plan.ContentPoints) * 20; len(plan.ContentPoints) > 0 && n < expected {
		return false, fmt.Sprintf("too short for the planned content (min %d)", expected)
	}
	return true, ""
}

func toneSuggestion(tone dialogue.ToneType) string {
	switch tone {
	case dialogue.ToneEmpathic:
		return "use warmer, more understanding phrasing"
	case dialogue.ToneFormal:
		return "use more formal, professional language"
	case dialogue.ToneCasual:
		return "use friendlier, everyday phrasing"
	case dialogue.ToneSupportive:
		return "be more supportive and encouraging"
	case dialogue.ToneCautious:
		return "use more careful, hedged phrasing"
	case dialogue.ToneSerious:
		return "keep the register serious"
	case dialogue.ToneEnthusiastic:
		return "sound more enthusiastic"
	default:
		return "keep the tone neutral"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
