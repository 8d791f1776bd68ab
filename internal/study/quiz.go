package study

import (
	"fmt"
	"slices"

	"github.com/p-n-ai/pai-titulos/internal/content"
)

// Phase is the quiz state machine position.
type Phase int

const (
	AwaitingAnswer Phase = iota
	Answered
	Finished
)

func (p Phase) String() string {
	switch p {
	case AwaitingAnswer:
		return "awaiting_answer"
	case Answered:
		return "answered"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Performance grades a finished quiz.
type Performance int

const (
	KeepStudying Performance = iota
	Good
	Excellent
)

func (p Performance) String() string {
	switch p {
	case Excellent:
		return "excellent"
	case Good:
		return "good"
	default:
		return "keep_studying"
	}
}

// Feedback is produced by an accepted answer.
type Feedback struct {
	Question     int
	Selected     int
	CorrectIndex int
	Correct      bool
	Explanation  string
	// Last is set when the answered question is the final one.
	Last bool
}

// QuizState is a read-only snapshot of the quiz.
type QuizState struct {
	Phase    Phase             `json:"phase"`
	Index    int               `json:"index"`
	Total    int               `json:"total"`
	Score    int               `json:"score"`
	Selected int               `json:"selected"`
	Correct  bool              `json:"correct"`
	Question *content.Question `json:"question,omitempty"`
}

// Percent returns round(100 * score / total).
func (s QuizState) Percent() int {
	return percent(s.Score, s.Total)
}

// Quiz steps through a fixed question set.
//
// AwaitingAnswer(i) --Select--> Answered(i) --Advance--> AwaitingAnswer(i+1)
// Answered(last) --Advance or Finish--> Finished. Restart returns to
// AwaitingAnswer(0) from any phase.
type Quiz struct {
	questions []content.Question
	phase     Phase
	index     int
	score     int
	selected  int
	correct   bool
}

// NewQuiz refuses an empty or malformed question set.
func NewQuiz(questions []content.Question) (*Quiz, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("%w: empty question set", content.ErrMalformedContent)
	}
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	q := &Quiz{questions: questions}
	q.Restart()
	return q, nil
}

// Restart resets to the first question with a zero score.
func (q *Quiz) Restart() {
	q.phase = AwaitingAnswer
	q.index = 0
	q.score = 0
	q.selected = -1
	q.correct = false
}

// Select answers the current question. It is ignored unless the quiz is
// awaiting an answer and selected is a valid option.
func (q *Quiz) Select(selected int) (Feedback, bool) {
	if q.phase != AwaitingAnswer {
		return Feedback{}, false
	}
	question := q.questions[q.index]
	if selected < 0 || selected >= len(question.Options) {
		return Feedback{}, false
	}

	q.selected = selected
	q.correct = selected == question.Correct
	if q.correct {
		q.score++
	}
	q.phase = Answered

	return Feedback{
		Question:     q.index,
		Selected:     selected,
		CorrectIndex: question.Correct,
		Correct:      q.correct,
		Explanation:  question.Explanation,
		Last:         q.index == len(q.questions)-1,
	}, true
}

// Advance moves past an answered question, finishing after the last one.
func (q *Quiz) Advance() bool {
	if q.phase != Answered {
		return false
	}
	if q.index+1 < len(q.questions) {
		q.index++
		q.phase = AwaitingAnswer
		q.selected = -1
		q.correct = false
		return true
	}
	q.finish()
	return true
}

// Finish completes the quiz once the last question has been answered.
func (q *Quiz) Finish() bool {
	if q.phase != Answered || q.index != len(q.questions)-1 {
		return false
	}
	q.finish()
	return true
}

func (q *Quiz) finish() {
	q.phase = Finished
	q.index = len(q.questions)
}

// Phase returns the current phase.
func (q *Quiz) Phase() Phase {
	return q.phase
}

// Score returns the number of correct answers so far.
func (q *Quiz) Score() int {
	return q.score
}

// Total returns the number of questions.
func (q *Quiz) Total() int {
	return len(q.questions)
}

// Percent returns round(100 * score / total).
func (q *Quiz) Percent() int {
	return percent(q.score, len(q.questions))
}

// Performance grades the score: 80% and up is excellent, 60% good.
func (q *Quiz) Performance() Performance {
	switch p := q.Percent(); {
	case p >= 80:
		return Excellent
	case p >= 60:
		return Good
	default:
		return KeepStudying
	}
}

// State returns a snapshot. Question is nil once finished.
func (q *Quiz) State() QuizState {
	s := QuizState{
		Phase:    q.phase,
		Index:    q.index,
		Total:    len(q.questions),
		Score:    q.score,
		Selected: q.selected,
		Correct:  q.correct,
	}
	if q.phase != Finished {
		question := q.questions[q.index]
		question.Options = slices.Clone(question.Options)
		s.Question = &question
	}
	return s
}
