package dialogue

import (
	"sort"
	"strings"
)

// IntentCategory is the closed set of recognized user intents.
type IntentCategory string

const (
	IntentGreeting        IntentCategory = "greeting"
	IntentFarewell        IntentCategory = "farewell"
	IntentAskWellbeing    IntentCategory = "ask_wellbeing"
	IntentAskIdentity     IntentCategory = "ask_identity"
	IntentExpressPositive IntentCategory = "express_positive"
	IntentExpressNegative IntentCategory = "express_negative"
	IntentRequestHelp     IntentCategory = "request_help"
	IntentRequestInfo     IntentCategory = "request_info"
	IntentThank           IntentCategory = "thank"
	IntentApologize       IntentCategory = "apologize"
	IntentAgree           IntentCategory = "agree"
	IntentDisagree        IntentCategory = "disagree"
	IntentClarify         IntentCategory = "clarify"
	IntentComplain        IntentCategory = "complain"
	IntentMetaQuestion    IntentCategory = "meta_question"
	IntentSmalltalk       IntentCategory = "smalltalk"
	IntentUnknown         IntentCategory = "unknown"
)

// intentPatterns maps each category to its surface patterns, normalized
// lowercase. Single-word patterns match on word boundaries; multi-word
// patterns match as substrings. Order fixes tie-breaking, so keep it stable.
var intentPatterns = []struct {
	category IntentCategory
	patterns []string
}{
	{IntentGreeting, []string{
		"hello", "hi", "hey", "hiya", "howdy", "greetings", "yo",
		"good morning", "good afternoon", "good evening",
	}},
	{IntentFarewell, []string{
		"bye", "goodbye", "farewell", "see you", "see ya", "later",
		"take care", "gotta go", "i have to go", "good night", "talk later",
	}},
	{IntentAskWellbeing, []string{
		"how are you", "how's it going", "hows it going", "how are things",
		"are you ok", "you ok", "how do you feel", "everything ok",
		"what's up", "whats up",
	}},
	{IntentAskIdentity, []string{
		"who are you", "what are you", "what's your name", "whats your name",
		"your name", "tell me about yourself",
	}},
	{IntentExpressPositive, []string{
		"i'm happy", "im happy", "i feel great", "feeling good", "wonderful",
		"fantastic", "awesome", "amazing", "i love", "so glad", "great news",
	}},
	{IntentExpressNegative, []string{
		"i'm sad", "im sad", "i feel bad", "feeling bad", "i'm upset",
		"im upset", "terrible", "awful", "miserable", "unhappy",
		"i feel down", "not doing well",
	}},
	{IntentRequestHelp, []string{
		"help me", "can you help", "i need help", "please help",
		"could you help", "give me a hand", "help",
	}},
	{IntentRequestInfo, []string{
		"tell me about", "what is", "what are", "explain", "how does",
		"how do i", "why does", "why is", "can you explain", "what does",
	}},
	{IntentThank, []string{
		"thank you", "thanks", "thanks a lot", "thank you so much",
		"much appreciated", "appreciate it", "thx", "ty",
	}},
	{IntentApologize, []string{
		"i'm sorry", "im sorry", "sorry", "my apologies", "apologies",
		"my bad", "excuse me",
	}},
	{IntentAgree, []string{
		"yes", "yeah", "yep", "ok", "okay", "sure", "alright", "agreed",
		"sounds good", "fine", "of course",
	}},
	{IntentDisagree, []string{
		"no", "nope", "no way", "i disagree", "i don't want", "i dont want",
		"not really", "i'd rather not",
	}},
	{IntentClarify, []string{
		"i don't understand", "i dont understand", "what do you mean",
		"can you repeat", "say that again", "come again", "i'm confused",
		"im confused", "unclear",
	}},
	{IntentComplain, []string{
		"doesn't work", "doesnt work", "not working", "i have a problem",
		"something's wrong", "somethings wrong", "this is broken",
		"i want to complain", "this is frustrating",
	}},
	{IntentMetaQuestion, []string{
		"why did you say", "how do you work", "how were you made",
		"are you an ai", "are you a bot", "what can you do",
	}},
	{IntentSmalltalk, []string{
		"what are you doing", "how's the weather", "hows the weather",
		"nice day", "what's new", "whats new",
	}},
}

// patternWeights overrides the default 0.8 weight: specific multi-word forms
// carry full confidence, very short tokens are discounted.
var patternWeights = map[string]float64{
	"help me":            1.0,
	"can you help":       1.0,
	"i need help":        1.0,
	"thank you so much":  1.0,
	"i'm sorry":          1.0,
	"who are you":        1.0,
	"what's your name":   1.0,
	"what do you mean":   1.0,
	"i don't understand": 1.0,

	"hi":   0.6,
	"hey":  0.6,
	"yo":   0.6,
	"thx":  0.6,
	"ty":   0.6,
	"ok":   0.6,
	"yes":  0.6,
	"no":   0.6,
	"bye":  0.6,
	"fine": 0.6,
}

func patternWeight(pattern string) float64 {
	if w, ok := patternWeights[pattern]; ok {
		return w
	}
	return 0.8
}

// IntentMatch is one category match with its evidence.
type IntentMatch struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"`
	Pattern    string         `json:"pattern"`
}

// IntentResult is the outcome of recognizing one message.
type IntentResult struct {
	Primary    IntentCategory `json:"primary"`
	Secondary  IntentCategory `json:"secondary,omitempty"`
	Confidence float64        `json:"confidence"`
	IsCompound bool           `json:"is_compound"`
	Matches    []IntentMatch  `json:"matches,omitempty"`
}

// HasIntent reports whether the result carries the category as primary or
// secondary.
func (r IntentResult) HasIntent(category IntentCategory) bool {
	return r.Primary == category || r.Secondary == category
}

// IntentRecognizer extracts user intents from message text via pattern
// matching with confidence scoring. Pure and stateless; safe for concurrent
// use.
type IntentRecognizer struct {
	minConfidence float64
	maxIntents    int
}

// NewIntentRecognizer returns a recognizer with the tuned defaults:
// confidence threshold 0.3, at most 3 intents per message.
func NewIntentRecognizer() *IntentRecognizer {
	return &IntentRecognizer{minConfidence: 0.3, maxIntents: 3}
}

// Recognize classifies one message. Empty input and unmatched input both map
// to IntentUnknown, the latter at confidence 0.2 (a message arrived, it just
// wasn't recognized).
func (r *IntentRecognizer) Recognize(message string) IntentResult {
	if strings.TrimSpace(message) == "" {
		return IntentResult{Primary: IntentUnknown}
	}

	text := normalizeText(message)
	matches := r.matchAll(text)

	var valid []IntentMatch
	for _, m := range matches {
		if m.Confidence >= r.minConfidence {
			valid = append(valid, m)
		}
	}
	if len(valid) == 0 {
		return IntentResult{Primary: IntentUnknown, Confidence: 0.2}
	}
	if len(valid) > r.maxIntents {
		valid = valid[:r.maxIntents]
	}

	result := IntentResult{
		Primary:    valid[0].Category,
		Confidence: overallConfidence(valid),
		IsCompound: len(valid) > 1,
		Matches:    valid,
	}
	if len(valid) > 1 {
		result.Secondary = valid[1].Category
	}
	return result
}

// matchAll finds the best pattern per category and sorts by confidence.
func (r *IntentRecognizer) matchAll(text string) []IntentMatch {
	var matches []IntentMatch
	for _, entry := range intentPatterns {
		for _, pattern := range entry.patterns {
			pos := findPattern(text, pattern)
			if pos < 0 {
				continue
			}
			matches = append(matches, IntentMatch{
				Category:   entry.category,
				Confidence: matchConfidence(pattern, text, pos),
				Pattern:    pattern,
			})
			// One match per category: the pattern list is ordered most
			// specific first.
			break
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})
	return matches
}

// matchConfidence scores one pattern hit: longer patterns are more specific,
// exact-message matches and short messages raise trust, early position wins
// in compound messages.
func matchConfidence(pattern, text string, pos int) float64 {
	confidence := 0.7 * patternWeight(pattern)

	switch n := len(pattern); {
	case n > 15:
		confidence += 0.15
	case n > 8:
		confidence += 0.10
	case n < 4:
		confidence -= 0.10
	}

	if strings.TrimSpace(text) == pattern {
		confidence += 0.15
	}

	words := len(strings.Fields(text))
	if words <= 3 {
		confidence += 0.05
	} else if words > 15 {
		confidence -= 0.05
	}

	if pos >= 0 && len(text) > len(pattern) {
		ratio := float64(pos) / float64(max(1, len(text)-len(pattern)))
		confidence += (1.0 - ratio) * 0.10
	}

	return clamp01(confidence)
}

// overallConfidence is the top match's confidence, discounted when multiple
// intents compete.
func overallConfidence(matches []IntentMatch) float64 {
	top := matches[0].Confidence
	if len(matches) > 2 {
		top *= 0.9
	} else if len(matches) > 1 {
		top *= 0.95
	}
	if top > 1 {
		return 1
	}
	return top
}

// normalizeText lowercases and collapses whitespace for matching.
func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// findPattern locates pattern in text, requiring word boundaries for
// single-word patterns so "hi" doesn't match inside "this". Returns -1 when
// absent.
func findPattern(text, pattern string) int {
	if strings.Contains(pattern, " ") {
		return strings.Index(text, pattern)
	}
	for start := 0; start < len(text); {
		idx := strings.Index(text[start:], pattern)
		if idx < 0 {
			return -1
		}
		abs := start + idx
		end := abs + len(pattern)
		if boundaryAt(text, abs-1) && boundaryAt(text, end) {
			return abs
		}
		start = abs + 1
	}
	return -1
}

func boundaryAt(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	return !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '\'')
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
