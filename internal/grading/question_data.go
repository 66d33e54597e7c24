package grading

import (
	"encoding/json"
	"errors"
	"fmt"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "MULTIPLE_CHOICE"
	TrueFalse      QuestionType = "TRUE_FALSE"
	ShortAnswer    QuestionType = "SHORT_ANSWER"
	FillInBlank    QuestionType = "FILL_IN_BLANK"
	Matching       QuestionType = "MATCHING"
	Ordering       QuestionType = "ORDERING"
)

var ErrUnknownQuestionType = errors.New("unknown question type")

// DefaultPassThreshold applies to partial-credit types when a question does
// not carry its own threshold, and to the fixed short-answer/fill-in-blank
// rules.
const DefaultPassThreshold = 0.7

type ChoiceOption struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// MultipleChoiceData accepts either an options list with a designated
// correct entry or a bare correctAnswerIndex.
type MultipleChoiceData struct {
	Options            []ChoiceOption `json:"options,omitempty"`
	CorrectAnswerIndex *int           `json:"correctAnswerIndex,omitempty"`
}

type TrueFalseData struct {
	CorrectAnswer bool `json:"correctAnswer"`
}

// ShortAnswerData grades by exact match against CorrectAnswers unless
// KeyTerms is set, in which case score = matched terms / total terms.
type ShortAnswerData struct {
	CorrectAnswers []string `json:"correctAnswers,omitempty"`
	CaseSensitive  bool     `json:"caseSensitive,omitempty"`
	KeyTerms       []string `json:"keyTerms,omitempty"`
}

type BlankSpec struct {
	AcceptedAnswers []string `json:"acceptedAnswers"`
	CaseSensitive   bool     `json:"caseSensitive,omitempty"`
}

type FillInBlankData struct {
	Blanks []BlankSpec `json:"blanks"`
}

type MatchPair struct {
	Left  string `json:"left"`
	Right string `json:"right"`
}

type MatchingData struct {
	LeftItems      []string    `json:"leftItems"`
	RightItems     []string    `json:"rightItems"`
	CorrectMatches []MatchPair `json:"correctMatches"`
}

type OrderingData struct {
	Items        []string `json:"items"`
	CorrectOrder []int    `json:"correctOrder"`
}

// QuestionData is the tagged union behind the jsonb question_data column.
// Exactly one variant pointer is set, matching Type. It is validated once at
// the boundary (ParseQuestionData) so the evaluator can match exhaustively.
type QuestionData struct {
	Type           QuestionType
	MultipleChoice *MultipleChoiceData
	TrueFalse      *TrueFalseData
	ShortAnswer    *ShortAnswerData
	FillInBlank    *FillInBlankData
	Matching       *MatchingData
	Ordering       *OrderingData
}

// ParseQuestionData decodes raw jsonb into the variant for qType and
// validates it. All shape errors surface here, never at grading time.
func ParseQuestionData(qType QuestionType, raw []byte) (QuestionData, error) {
	qd := QuestionData{Type: qType}
	switch qType {
	case MultipleChoice:
		var d MultipleChoiceData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode multiple choice data: %w", err)
		}
		if err := validateMultipleChoice(&d); err != nil {
			return qd, err
		}
		qd.MultipleChoice = &d
	case TrueFalse:
		var d TrueFalseData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode true/false data: %w", err)
		}
		qd.TrueFalse = &d
	case ShortAnswer:
		var d ShortAnswerData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode short answer data: %w", err)
		}
		if len(d.CorrectAnswers) == 0 && len(d.KeyTerms) == 0 {
			return qd, errors.New("short answer requires correctAnswers or keyTerms")
		}
		qd.ShortAnswer = &d
	case FillInBlank:
		var d FillInBlankData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode fill in blank data: %w", err)
		}
		if len(d.Blanks) == 0 {
			return qd, errors.New("fill in blank requires at least one blank")
		}
		for i, b := range d.Blanks {
			if len(b.AcceptedAnswers) == 0 {
				return qd, fmt.Errorf("blank %d has no accepted answers", i)
			}
		}
		qd.FillInBlank = &d
	case Matching:
		var d MatchingData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode matching data: %w", err)
		}
		if len(d.CorrectMatches) == 0 {
			return qd, errors.New("matching requires at least one correct pair")
		}
		qd.Matching = &d
	case Ordering:
		var d OrderingData
		if err := json.Unmarshal(raw, &d); err != nil {
			return qd, fmt.Errorf("decode ordering data: %w", err)
		}
		if err := validateOrdering(&d); err != nil {
			return qd, err
		}
		qd.Ordering = &d
	default:
		return qd, fmt.Errorf("%w: %q", ErrUnknownQuestionType, qType)
	}
	return qd, nil
}

func validateMultipleChoice(d *MultipleChoiceData) error {
	if len(d.Options) > 0 {
		correct := 0
		for _, o := range d.Options {
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("multiple choice requires exactly one correct option, got %d", correct)
		}
		return nil
	}
	if d.CorrectAnswerIndex == nil {
		return errors.New("multiple choice requires options or correctAnswerIndex")
	}
	if *d.CorrectAnswerIndex < 0 {
		return errors.New("correctAnswerIndex must be non-negative")
	}
	return nil
}

func validateOrdering(d *OrderingData) error {
	if len(d.Items) == 0 {
		return errors.New("ordering requires items")
	}
	if len(d.CorrectOrder) != len(d.Items) {
		return fmt.Errorf("correctOrder length %d does not match %d items", len(d.CorrectOrder), len(d.Items))
	}
	seen := make(map[int]bool, len(d.CorrectOrder))
	for _, idx := range d.CorrectOrder {
		if idx < 0 || idx >= len(d.Items) || seen[idx] {
			return errors.New("correctOrder must be a permutation of item indexes")
		}
		seen[idx] = true
	}
	return nil
}

// NormalizeThreshold clamps a stored pass threshold into (0,1], falling back
// to the default for unset or out-of-range values.
func NormalizeThreshold(t float64) float64 {
	if t <= 0 || t > 1 {
		return DefaultPassThreshold
	}
	return t
}
