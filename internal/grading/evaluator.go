package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrMalformedAnswer = errors.New("malformed answer payload")

// Result is the outcome of grading one submission. Score is always in [0,1].
type Result struct {
	IsCorrect bool    `json:"is_correct"`
	Score     float64 `json:"score"`
}

// Evaluate grades a submitted answer against a validated QuestionData. It is
// a pure function: no side effects, no I/O, callable independently in tests.
// passThreshold applies to the partial-credit types (matching, ordering);
// short answer key-term and fill-in-blank scoring use the fixed default.
func Evaluate(q QuestionData, passThreshold float64, rawAnswer []byte) (Result, error) {
	switch q.Type {
	case MultipleChoice:
		return evaluateMultipleChoice(q.MultipleChoice, rawAnswer)
	case TrueFalse:
		return evaluateTrueFalse(q.TrueFalse, rawAnswer)
	case ShortAnswer:
		return evaluateShortAnswer(q.ShortAnswer, rawAnswer)
	case FillInBlank:
		return evaluateFillInBlank(q.FillInBlank, rawAnswer)
	case Matching:
		return evaluateMatching(q.Matching, NormalizeThreshold(passThreshold), rawAnswer)
	case Ordering:
		return evaluateOrdering(q.Ordering, NormalizeThreshold(passThreshold), rawAnswer)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
}

func evaluateMultipleChoice(d *MultipleChoiceData, raw []byte) (Result, error) {
	// Accepts an option id string or a numeric index.
	var asIndex int
	if err := json.Unmarshal(raw, &asIndex); err == nil {
		return binary(correctIndex(d) == asIndex), nil
	}
	var asID string
	if err := json.Unmarshal(raw, &asID); err != nil {
		return Result{}, fmt.Errorf("%w: multiple choice expects option id or index", ErrMalformedAnswer)
	}
	for i, o := range d.Options {
		if o.ID == asID || o.Text == asID {
			return binary(correctIndex(d) == i), nil
		}
	}
	return binary(false), nil
}

func correctIndex(d *MultipleChoiceData) int {
	for i, o := range d.Options {
		if o.IsCorrect {
			return i
		}
	}
	if d.CorrectAnswerIndex != nil {
		return *d.CorrectAnswerIndex
	}
	return -1
}

func evaluateTrueFalse(d *TrueFalseData, raw []byte) (Result, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		// UIs sometimes submit "true"/"false" strings.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Result{}, fmt.Errorf("%w: true/false expects a boolean", ErrMalformedAnswer)
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			b = true
		case "false":
			b = false
		default:
			return Result{}, fmt.Errorf("%w: true/false expects a boolean", ErrMalformedAnswer)
		}
	}
	return binary(b == d.CorrectAnswer), nil
}

func evaluateShortAnswer(d *ShortAnswerData, raw []byte) (Result, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return Result{}, fmt.Errorf("%w: short answer expects a string", ErrMalformedAnswer)
	}
	text = strings.TrimSpace(text)

	if len(d.KeyTerms) > 0 {
		matched := 0
		haystack := text
		if !d.CaseSensitive {
			haystack = strings.ToLower(haystack)
		}
		for _, term := range d.KeyTerms {
			needle := strings.TrimSpace(term)
			if !d.CaseSensitive {
				needle = strings.ToLower(needle)
			}
			if needle != "" && strings.Contains(haystack, needle) {
				matched++
			}
		}
		score := float64(matched) / float64(len(d.KeyTerms))
		return Result{IsCorrect: score >= DefaultPassThreshold, Score: score}, nil
	}

	for _, accepted := range d.CorrectAnswers {
		if stringsMatch(text, strings.TrimSpace(accepted), d.CaseSensitive) {
			return binary(true), nil
		}
	}
	return binary(false), nil
}

func evaluateFillInBlank(d *FillInBlankData, raw []byte) (Result, error) {
	var submitted []string
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: fill in blank expects a string array", ErrMalformedAnswer)
	}
	correct := 0
	for i, blank := range d.Blanks {
		if i >= len(submitted) {
			break
		}
		answer := strings.TrimSpace(submitted[i])
		for _, accepted := range blank.AcceptedAnswers {
			if stringsMatch(answer, strings.TrimSpace(accepted), blank.CaseSensitive) {
				correct++
				break
			}
		}
	}
	score := float64(correct) / float64(len(d.Blanks))
	return Result{IsCorrect: score >= DefaultPassThreshold, Score: score}, nil
}

func evaluateMatching(d *MatchingData, threshold float64, raw []byte) (Result, error) {
	var submitted []MatchPair
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: matching expects an array of {left,right} pairs", ErrMalformedAnswer)
	}
	want := make(map[string]string, len(d.CorrectMatches))
	for _, p := range d.CorrectMatches {
		want[p.Left] = p.Right
	}
	correct := 0
	seen := make(map[string]bool, len(submitted))
	for _, p := range submitted {
		if seen[p.Left] {
			continue
		}
		seen[p.Left] = true
		if want[p.Left] == p.Right {
			correct++
		}
	}
	score := float64(correct) / float64(len(d.CorrectMatches))
	return Result{IsCorrect: score >= threshold, Score: score}, nil
}

// evaluateOrdering scores by the longest run of items the student placed in
// mutually correct relative order, so one misplaced item costs one slot
// rather than cascading. An exact match scores 1.0.
func evaluateOrdering(d *OrderingData, threshold float64, raw []byte) (Result, error) {
	var submitted []int
	if err := json.Unmarshal(raw, &submitted); err != nil {
		return Result{}, fmt.Errorf("%w: ordering expects an array of item indexes", ErrMalformedAnswer)
	}
	n := len(d.CorrectOrder)
	if len(submitted) != n {
		return Result{}, fmt.Errorf("%w: ordering expects %d item indexes, got %d", ErrMalformedAnswer, n, len(submitted))
	}

	// rank[item] = position in the correct order
	rank := make(map[int]int, n)
	for pos, item := range d.CorrectOrder {
		rank[item] = pos
	}
	seq := make([]int, 0, n)
	for _, item := range submitted {
		r, ok := rank[item]
		if !ok {
			return Result{}, fmt.Errorf("%w: unknown item index %d", ErrMalformedAnswer, item)
		}
		seq = append(seq, r)
	}

	score := float64(longestIncreasingSubsequence(seq)) / float64(n)
	return Result{IsCorrect: score >= threshold, Score: score}, nil
}

func longestIncreasingSubsequence(seq []int) int {
	tails := make([]int, 0, len(seq))
	for _, v := range seq {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if tails[mid] < v {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo == len(tails) {
			tails = append(tails, v)
		} else {
			tails[lo] = v
		}
	}
	return len(tails)
}

func stringsMatch(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func binary(correct bool) Result {
	if correct {
		return Result{IsCorrect: true, Score: 1.0}
	}
	return Result{IsCorrect: false, Score: 0.0}
}
