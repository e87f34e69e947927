// Package validate implements anti-hallucination checking of an LLM
// fallback answer against a ground-truth facade handler's output, for
// categories that have one (weather, sports, news, stocks, flights,
// events).
//
// When ground truth is available the check fails closed: it substitutes
// the ground-truth string whenever the LLM answer cannot be verified
// consistent. When the ground-truth handler errors or returns nothing, the
// LLM answer passes through unchecked.
package validate

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voiceorch/core/pkg/analytics"
)

// GroundTruthFn fetches the facade handler's answer for the same query,
// used as the fact source the LLM answer is checked against.
type GroundTruthFn func(ctx context.Context) (string, error)

// RegenerateFn re-invokes the LLM at a lower temperature, used for the
// single allowed retry on a failed validation.
type RegenerateFn func(ctx context.Context, temperature float64) (string, error)

// HasGroundTruth reports whether category is one of the ones the validator
// applies to.
func HasGroundTruth(category string) bool {
	switch category {
	case "weather", "sports", "news", "stocks", "flights", "events":
		return true
	}
	return false
}

var numberPattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

// Result is the outcome of one validation pass.
type Result struct {
	Consistent bool
	FinalText  string
	Hallucinated bool
}

// Validate checks llmAnswer against the category's ground truth. On
// inconsistency it regenerates once at lowTemperature; if still
// inconsistent, substitutes the ground-truth string and reports
// Hallucinated=true. rec and sessionID may be left zero-valued; Validate
// then emits no analytics event.
func Validate(ctx context.Context, category, llmAnswer string, groundTruth GroundTruthFn, regenerate RegenerateFn, lowTemperature float64, rec *analytics.Recorder, sessionID string) Result {
	truth, err := groundTruth(ctx)
	if err != nil || truth == "" {
		// No ground truth available to check against; accept the LLM answer
		// as-is rather than blocking a response. A missing ground-truth
		// handler output is not in itself evidence of hallucination.
		return Result{Consistent: true, FinalText: llmAnswer}
	}

	if consistent(llmAnswer, truth) {
		return Result{Consistent: true, FinalText: llmAnswer}
	}

	regenerated, err := regenerate(ctx, lowTemperature)
	if err == nil && consistent(regenerated, truth) {
		return Result{Consistent: true, FinalText: regenerated}
	}

	slog.Warn("hallucination detected, substituting ground truth",
		"category", category, "llm_answer", llmAnswer, "ground_truth", truth)
	if rec != nil {
		rec.Emit(analytics.Event{
			Kind: analytics.KindHallucinationDetected, Category: category,
			SessionID: sessionID, OccurredAt: time.Now(),
		})
	}
	return Result{Consistent: false, FinalText: truth, Hallucinated: true}
}

// consistent applies textual consistency checks: presence of key literal
// facts (shared non-numeric tokens) and bounded numeric distance between
// the first number mentioned in each string.
func consistent(answer, truth string) bool {
	answerNums := numberPattern.FindAllString(answer, -1)
	truthNums := numberPattern.FindAllString(truth, -1)
	if len(truthNums) > 0 {
		if len(answerNums) == 0 {
			return false
		}
		a, errA := strconv.ParseFloat(answerNums[0], 64)
		t, errT := strconv.ParseFloat(truthNums[0], 64)
		if errA == nil && errT == nil {
			if math.Abs(a-t) > boundedDistance(t) {
				return false
			}
		}
	}

	truthTokens := significantTokens(truth)
	if len(truthTokens) == 0 {
		return true
	}
	answerLower := strings.ToLower(answer)
	matches := 0
	for _, tok := range truthTokens {
		if strings.Contains(answerLower, tok) {
			matches++
		}
	}
	// Require at least half of the ground truth's significant tokens to
	// appear in the answer — a loose but workable textual-consistency bar.
	return matches*2 >= len(truthTokens)
}

// boundedDistance returns the allowed numeric drift: 10% of the ground
// truth value, with a floor of 2 so small values aren't impossibly strict.
func boundedDistance(truth float64) float64 {
	d := math.Abs(truth) * 0.1
	if d < 2 {
		return 2
	}
	return d
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "at": true,
	"in": true, "on": true, "of": true, "and": true, "to": true, "for": true,
}

func significantTokens(s string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,!?%°")
		if len(tok) < 3 || stopWords[tok] || numberPattern.MatchString(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}
