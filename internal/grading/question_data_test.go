package grading

import "testing"

func TestParseQuestionDataValidation(t *testing.T) {
	bad := []struct {
		name  string
		qType QuestionType
		raw   string
	}{
		{"mc no correct option", MultipleChoice, `{"options":[{"id":"a","text":"A"},{"id":"b","text":"B"}]}`},
		{"mc two correct options", MultipleChoice, `{"options":[{"id":"a","isCorrect":true},{"id":"b","isCorrect":true}]}`},
		{"mc empty", MultipleChoice, `{}`},
		{"mc negative index", MultipleChoice, `{"correctAnswerIndex":-1}`},
		{"short answer empty", ShortAnswer, `{}`},
		{"fib no blanks", FillInBlank, `{"blanks":[]}`},
		{"fib blank without answers", FillInBlank, `{"blanks":[{"acceptedAnswers":[]}]}`},
		{"matching no pairs", Matching, `{"leftItems":["a"],"rightItems":["b"],"correctMatches":[]}`},
		{"ordering length mismatch", Ordering, `{"items":["a","b"],"correctOrder":[0]}`},
		{"ordering not a permutation", Ordering, `{"items":["a","b"],"correctOrder":[0,0]}`},
		{"ordering index out of range", Ordering, `{"items":["a","b"],"correctOrder":[0,5]}`},
	}
	for _, tc := range bad {
		if _, err := ParseQuestionData(tc.qType, []byte(tc.raw)); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}

	good := []struct {
		qType QuestionType
		raw   string
	}{
		{MultipleChoice, `{"options":[{"id":"a","isCorrect":true},{"id":"b"}]}`},
		{MultipleChoice, `{"correctAnswerIndex":0}`},
		{TrueFalse, `{"correctAnswer":false}`},
		{ShortAnswer, `{"keyTerms":["one","two"]}`},
		{FillInBlank, `{"blanks":[{"acceptedAnswers":["x"]}]}`},
		{Matching, `{"leftItems":["a"],"rightItems":["b"],"correctMatches":[{"left":"a","right":"b"}]}`},
		{Ordering, `{"items":["a","b","c"],"correctOrder":[2,0,1]}`},
	}
	for _, tc := range good {
		if _, err := ParseQuestionData(tc.qType, []byte(tc.raw)); err != nil {
			t.Fatalf("%s %s: unexpected error %v", tc.qType, tc.raw, err)
		}
	}
}

func TestNormalizeThreshold(t *testing.T) {
	for _, tc := range []struct {
		in, want float64
	}{
		{0, DefaultPassThreshold},
		{-1, DefaultPassThreshold},
		{1.5, DefaultPassThreshold},
		{0.5, 0.5},
		{1, 1},
	} {
		if got := NormalizeThreshold(tc.in); got != tc.want {
			t.Fatalf("NormalizeThreshold(%v) want=%v got=%v", tc.in, tc.want, got)
		}
	}
}
