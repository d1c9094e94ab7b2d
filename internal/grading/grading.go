// Package grading scores submitted answers against a grading key. Everything here is a pure
// function of its inputs.
package grading

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"quiz-access-service/internal/domain"
)

// Outcome is the result of grading one answer set.
type Outcome struct {
	Items []domain.GradedItem
	Score int
	// KeyMarks is the sum of marks of the grading key, the total of a freshly generated set.
	KeyMarks int
}

// Grade compares answers to the key by question id. Answers for ids missing from the key are
// ignored; only the first answer per question counts. Items follow key order and include
// unanswered questions with zero marks.
func Grade(answers []domain.Answer, key []domain.Question) Outcome {
	submitted := make(map[string]json.RawMessage, len(answers))
	for _, a := range answers {
		if _, seen := submitted[a.QuestionID]; seen {
			continue
		}
		submitted[a.QuestionID] = a.Value
	}

	out := Outcome{Items: make([]domain.GradedItem, 0, len(key))}
	for _, q := range key {
		out.KeyMarks += q.Marks
		raw, answered := submitted[q.ID]
		item := domain.GradedItem{
			QuestionID: q.ID,
			Type:       q.Type(),
			Text:       q.Text,
			Expected:   expected(q),
			Marks:      q.Marks,
			Answered:   answered && !isNull(raw),
		}
		if item.Answered {
			item.Submitted = append(json.RawMessage(nil), raw...)
			item.Correct, item.PendingReview = check(q, raw)
		}
		if item.Correct {
			item.Earned = q.Marks
		}
		out.Score += item.Earned
		out.Items = append(out.Items, item)
	}
	return out
}

// Percentage is round(score/total*100) clamped to [0,100]; 0 when total is 0.
func Percentage(score, total int) int {
	if total <= 0 || score <= 0 {
		return 0
	}
	p := int(math.Round(float64(score) / float64(total) * 100))
	if p > 100 {
		return 100
	}
	return p
}

// check reports correctness and whether the answer awaits manual review.
func check(q domain.Question, raw json.RawMessage) (correct bool, pending bool) {
	switch p := q.Payload.(type) {
	case domain.SingleChoice:
		idx, ok := decodeIndex(raw)
		return ok && idx == p.CorrectOption, false
	case domain.TrueFalse:
		idx, ok := decodeTrueFalse(raw)
		return ok && idx == p.CorrectOption, false
	case domain.FillBlank:
		values, ok := decodeBlanks(raw)
		if !ok || len(values) != len(p.Blanks) {
			return false, false
		}
		for i, want := range p.Blanks {
			if !blankEqual(values[i], want) {
				return false, false
			}
		}
		return true, false
	case domain.Matching:
		mapping, ok := decodeMatching(raw)
		if !ok || len(mapping) != len(p.Pairs) {
			return false, false
		}
		for _, pair := range p.Pairs {
			if got, ok := mapping[pair.Left]; !ok || got != pair.Right {
				return false, false
			}
		}
		return true, false
	case domain.FreeText:
		// no automatic law for free text: zero marks until reviewed
		return false, true
	default:
		return false, false
	}
}

func blankEqual(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

func expected(q domain.Question) json.RawMessage {
	var v any
	switch p := q.Payload.(type) {
	case domain.SingleChoice:
		v = p.CorrectOption
	case domain.TrueFalse:
		v = p.CorrectOption
	case domain.FreeText:
		v = p.ExpectedAnswer
	case domain.FillBlank:
		v = p.Blanks
	case domain.Matching:
		m := make(map[string]string, len(p.Pairs))
		for _, pair := range p.Pairs {
			m[pair.Left] = pair.Right
		}
		v = m
	default:
		return json.RawMessage("null")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

func isNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

// decodeIndex accepts a whole number, written as an integer, a float like 2.0, or a numeric string.
func decodeIndex(raw json.RawMessage) (int, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return wholeIndex(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return wholeIndex(f)
		}
	}
	return 0, false
}

func wholeIndex(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// decodeTrueFalse accepts an option index or a boolean (true is option 0).
func decodeTrueFalse(raw json.RawMessage) (int, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return 0, true
		}
		return 1, true
	}
	return decodeIndex(raw)
}

// decodeBlanks accepts a list of values or, for single-blank questions, a bare string.
func decodeBlanks(raw json.RawMessage) ([]string, bool) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, true
	}
	return nil, false
}

// decodeMatching accepts a left->right object or a list of {left,right} pairs.
func decodeMatching(raw json.RawMessage) (map[string]string, bool) {
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err == nil {
		return m, true
	}
	var pairs []domain.MatchPair
	if err := json.Unmarshal(raw, &pairs); err != nil {
		return nil, false
	}
	m = make(map[string]string, len(pairs))
	for _, p := range pairs {
		if _, dup := m[p.Left]; dup {
			return nil, false
		}
		m[p.Left] = p.Right
	}
	return m, true
}
