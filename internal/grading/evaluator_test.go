package grading

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func mustParse(t *testing.T, qType QuestionType, raw string) QuestionData {
	t.Helper()
	qd, err := ParseQuestionData(qType, []byte(raw))
	if err != nil {
		t.Fatalf("ParseQuestionData(%s): %v", qType, err)
	}
	return qd
}

func evaluate(t *testing.T, qd QuestionData, threshold float64, answer string) Result {
	t.Helper()
	res, err := Evaluate(qd, threshold, []byte(answer))
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	return res
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMultipleChoiceBinaryScore(t *testing.T) {
	qd := mustParse(t, MultipleChoice, `{"options":[
		{"id":"a","text":"Red","isCorrect":false},
		{"id":"b","text":"Blue","isCorrect":true},
		{"id":"c","text":"Green","isCorrect":false}]}`)

	for _, tc := range []struct {
		answer  string
		correct bool
	}{
		{`"b"`, true},
		{`1`, true},
		{`"a"`, false},
		{`2`, false},
		{`"nonexistent"`, false},
	} {
		res := evaluate(t, qd, 0, tc.answer)
		if res.IsCorrect != tc.correct {
			t.Fatalf("answer %s: correct want=%v got=%v", tc.answer, tc.correct, res.IsCorrect)
		}
		if res.Score != 0 && res.Score != 1 {
			t.Fatalf("answer %s: score must be binary, got %v", tc.answer, res.Score)
		}
		if res.IsCorrect != (res.Score == 1.0) {
			t.Fatalf("answer %s: isCorrect must track score==1.0", tc.answer)
		}
	}
}

func TestMultipleChoiceByIndexVariant(t *testing.T) {
	qd := mustParse(t, MultipleChoice, `{"correctAnswerIndex":2}`)
	if res := evaluate(t, qd, 0, `2`); !res.IsCorrect {
		t.Fatalf("index 2 should be correct")
	}
	if res := evaluate(t, qd, 0, `0`); res.IsCorrect {
		t.Fatalf("index 0 should be incorrect")
	}
}

func TestTrueFalse(t *testing.T) {
	qd := mustParse(t, TrueFalse, `{"correctAnswer":true}`)
	if res := evaluate(t, qd, 0, `true`); !res.IsCorrect || res.Score != 1.0 {
		t.Fatalf("true should be correct with score 1.0, got %+v", res)
	}
	if res := evaluate(t, qd, 0, `false`); res.IsCorrect || res.Score != 0.0 {
		t.Fatalf("false should be incorrect with score 0.0, got %+v", res)
	}
	// string-encoded booleans from older clients
	if res := evaluate(t, qd, 0, `"True"`); !res.IsCorrect {
		t.Fatalf("string true should be accepted")
	}
}

func TestShortAnswerExactMatch(t *testing.T) {
	qd := mustParse(t, ShortAnswer, `{"correctAnswers":["Mitochondria","mitochondrion"],"caseSensitive":false}`)
	if res := evaluate(t, qd, 0, `"mitochondria"`); !res.IsCorrect {
		t.Fatalf("case-insensitive match should pass")
	}
	if res := evaluate(t, qd, 0, `"  Mitochondrion  "`); !res.IsCorrect {
		t.Fatalf("surrounding whitespace should be ignored")
	}
	if res := evaluate(t, qd, 0, `"chloroplast"`); res.IsCorrect || res.Score != 0 {
		t.Fatalf("wrong answer should score 0, got %+v", res)
	}
}

func TestShortAnswerCaseSensitive(t *testing.T) {
	qd := mustParse(t, ShortAnswer, `{"correctAnswers":["pH"],"caseSensitive":true}`)
	if res := evaluate(t, qd, 0, `"ph"`); res.IsCorrect {
		t.Fatalf("case-sensitive mismatch should fail")
	}
	if res := evaluate(t, qd, 0, `"pH"`); !res.IsCorrect {
		t.Fatalf("exact case match should pass")
	}
}

func TestShortAnswerKeyTerms(t *testing.T) {
	qd := mustParse(t, ShortAnswer, `{"keyTerms":["osmosis","membrane","concentration","water"]}`)

	// 3 of 4 terms: 0.75 >= 0.7 so correct
	res := evaluate(t, qd, 0, `"Osmosis moves water across a membrane"`)
	if !almostEqual(res.Score, 0.75) {
		t.Fatalf("score want=0.75 got=%v", res.Score)
	}
	if !res.IsCorrect {
		t.Fatalf("0.75 should pass the 0.7 threshold")
	}

	// 2 of 4 terms: 0.5 < 0.7 so incorrect, partial score kept
	res = evaluate(t, qd, 0, `"water crosses the membrane"`)
	if !almostEqual(res.Score, 0.5) || res.IsCorrect {
		t.Fatalf("want partial 0.5 incorrect, got %+v", res)
	}
}

func TestFillInBlankPartialCredit(t *testing.T) {
	qd := mustParse(t, FillInBlank, `{"blanks":[
		{"acceptedAnswers":["nucleus"]},
		{"acceptedAnswers":["ribosome","ribosomes"]},
		{"acceptedAnswers":["golgi"]}]}`)

	// 2 of 3 blanks correct: score 2/3, below 0.7 so incorrect
	res := evaluate(t, qd, 0, `["nucleus","ribosomes","wrong"]`)
	if !almostEqual(res.Score, 2.0/3.0) {
		t.Fatalf("score want=2/3 got=%v", res.Score)
	}
	if res.IsCorrect {
		t.Fatalf("2/3 is below the 0.7 threshold")
	}

	// all blanks correct
	res = evaluate(t, qd, 0, `["Nucleus","ribosome","GOLGI"]`)
	if !res.IsCorrect || !almostEqual(res.Score, 1.0) {
		t.Fatalf("all correct want score 1.0, got %+v", res)
	}

	// short submission grades the blanks it covers
	res = evaluate(t, qd, 0, `["nucleus"]`)
	if !almostEqual(res.Score, 1.0/3.0) {
		t.Fatalf("short submission score want=1/3 got=%v", res.Score)
	}
}

func TestMatchingPartialCredit(t *testing.T) {
	qd := mustParse(t, Matching, `{
		"leftItems":["H2O","NaCl","CO2"],
		"rightItems":["water","salt","carbon dioxide"],
		"correctMatches":[
			{"left":"H2O","right":"water"},
			{"left":"NaCl","right":"salt"},
			{"left":"CO2","right":"carbon dioxide"}]}`)

	res := evaluate(t, qd, 0.6, `[
		{"left":"H2O","right":"water"},
		{"left":"NaCl","right":"salt"},
		{"left":"CO2","right":"salt"}]`)
	if !almostEqual(res.Score, 2.0/3.0) {
		t.Fatalf("score want=2/3 got=%v", res.Score)
	}
	if !res.IsCorrect {
		t.Fatalf("2/3 should pass a 0.6 threshold")
	}

	// duplicate left entries only count once
	res = evaluate(t, qd, 0.9, `[
		{"left":"H2O","right":"water"},
		{"left":"H2O","right":"water"}]`)
	if !almostEqual(res.Score, 1.0/3.0) || res.IsCorrect {
		t.Fatalf("duplicate pairs should not stack, got %+v", res)
	}
}

func TestOrderingExactAndHeuristic(t *testing.T) {
	qd := mustParse(t, Ordering, `{"items":["a","b","c","d"],"correctOrder":[0,1,2,3]}`)

	if res := evaluate(t, qd, 0.7, `[0,1,2,3]`); !res.IsCorrect || !almostEqual(res.Score, 1.0) {
		t.Fatalf("exact order want 1.0, got %+v", res)
	}

	// one item out of place: LIS of [0,2,1,3] is 3 -> 0.75
	res := evaluate(t, qd, 0.7, `[0,2,1,3]`)
	if !almostEqual(res.Score, 0.75) {
		t.Fatalf("one swap score want=0.75 got=%v", res.Score)
	}
	if !res.IsCorrect {
		t.Fatalf("0.75 should pass the 0.7 threshold")
	}

	// fully reversed: LIS is 1 -> 0.25
	res = evaluate(t, qd, 0.7, `[3,2,1,0]`)
	if !almostEqual(res.Score, 0.25) || res.IsCorrect {
		t.Fatalf("reversed order want 0.25 incorrect, got %+v", res)
	}
}

func TestOrderingUsesQuestionThreshold(t *testing.T) {
	qd := mustParse(t, Ordering, `{"items":["a","b","c","d"],"correctOrder":[0,1,2,3]}`)
	res := evaluate(t, qd, 0.5, `[1,0,2,3]`)
	if !almostEqual(res.Score, 0.75) || !res.IsCorrect {
		t.Fatalf("0.75 should pass a 0.5 threshold, got %+v", res)
	}
	// unset threshold falls back to the default
	res = evaluate(t, qd, 0, `[1,0,3,2]`)
	if res.IsCorrect {
		t.Fatalf("0.5 should fail the default 0.7 threshold, got %+v", res)
	}
}

func TestMalformedAnswers(t *testing.T) {
	cases := []struct {
		qType  QuestionType
		data   string
		answer string
	}{
		{TrueFalse, `{"correctAnswer":true}`, `{"nested":"object"}`},
		{ShortAnswer, `{"correctAnswers":["x"]}`, `42`},
		{FillInBlank, `{"blanks":[{"acceptedAnswers":["x"]}]}`, `"not an array"`},
		{Matching, `{"leftItems":["a"],"rightItems":["b"],"correctMatches":[{"left":"a","right":"b"}]}`, `"oops"`},
		{Ordering, `{"items":["a","b"],"correctOrder":[0,1]}`, `[0]`},
		{Ordering, `{"items":["a","b"],"correctOrder":[0,1]}`, `[0,9]`},
	}
	for _, tc := range cases {
		qd := mustParse(t, tc.qType, tc.data)
		_, err := Evaluate(qd, 0, []byte(tc.answer))
		if !errors.Is(err, ErrMalformedAnswer) {
			t.Fatalf("%s answer %s: want ErrMalformedAnswer, got %v", tc.qType, tc.answer, err)
		}
	}
}

func TestUnknownQuestionType(t *testing.T) {
	if _, err := ParseQuestionData("ESSAY", []byte(`{}`)); !errors.Is(err, ErrUnknownQuestionType) {
		t.Fatalf("want ErrUnknownQuestionType, got %v", err)
	}
	_, err := Evaluate(QuestionData{Type: "ESSAY"}, 0, []byte(`"x"`))
	if !errors.Is(err, ErrUnknownQuestionType) {
		t.Fatalf("want ErrUnknownQuestionType, got %v", err)
	}
}

func TestEvaluatorIsPure(t *testing.T) {
	qd := mustParse(t, FillInBlank, `{"blanks":[{"acceptedAnswers":["a"]},{"acceptedAnswers":["b"]}]}`)
	answer := []byte(`["a","wrong"]`)
	first := evaluate(t, qd, 0, string(answer))
	for i := 0; i < 5; i++ {
		if got := evaluate(t, qd, 0, string(answer)); got != first {
			t.Fatalf("evaluation must be deterministic: first=%+v got=%+v", first, got)
		}
	}
	// the answer payload must not be mutated
	var decoded []string
	if err := json.Unmarshal(answer, &decoded); err != nil {
		t.Fatalf("answer payload was mutated: %v", err)
	}
}
