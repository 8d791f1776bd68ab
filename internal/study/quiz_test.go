package study_test

import (
	"errors"
	"testing"

	"github.com/p-n-ai/pai-titulos/internal/content"
	"github.com/p-n-ai/pai-titulos/internal/study"
)

func testQuestions() []content.Question {
	correct := []int{3, 1, 1, 2, 2}
	qs := make([]content.Question, len(correct))
	for i, c := range correct {
		qs[i] = content.Question{
			Prompt:      "Pergunta",
			Options:     []string{"a", "b", "c", "d"},
			Correct:     c,
			Explanation: "Explicação",
		}
	}
	return qs
}

func newQuiz(t *testing.T) *study.Quiz {
	t.Helper()
	q, err := study.NewQuiz(testQuestions())
	if err != nil {
		t.Fatalf("NewQuiz() error = %v", err)
	}
	return q
}

func TestNewQuiz_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name      string
		questions []content.Question
	}{
		{"empty", nil},
		{"one option", []content.Question{{Prompt: "P", Options: []string{"a"}, Correct: 0}}},
		{"correct out of range", []content.Question{{Prompt: "P", Options: []string{"a", "b"}, Correct: 2}}},
		{"empty option", []content.Question{{Prompt: "P", Options: []string{"a", " "}, Correct: 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := study.NewQuiz(tt.questions)
			if !errors.Is(err, content.ErrMalformedContent) {
				t.Errorf("NewQuiz() error = %v, want ErrMalformedContent", err)
			}
		})
	}
}

func TestQuiz_InitialState(t *testing.T) {
	q := newQuiz(t)

	st := q.State()
	if st.Phase != study.AwaitingAnswer || st.Index != 0 || st.Score != 0 {
		t.Errorf("State() = %+v, want AwaitingAnswer(0) score 0", st)
	}
	if st.Question == nil {
		t.Error("State().Question should be set while awaiting")
	}
}

func TestQuiz_SelectAnswerIsIdempotent(t *testing.T) {
	q := newQuiz(t)

	fb, ok := q.Select(3)
	if !ok || !fb.Correct {
		t.Fatalf("Select(3) = %+v, %v; want correct", fb, ok)
	}
	for _, i := range []int{3, 0, 1, 3} {
		if _, ok := q.Select(i); ok {
			t.Errorf("second Select(%d) on the same question should be ignored", i)
		}
	}
	if q.Score() != 1 {
		t.Errorf("Score() = %d, want 1", q.Score())
	}
	if q.Phase() != study.Answered {
		t.Errorf("Phase() = %v, want answered", q.Phase())
	}
}

func TestQuiz_SelectOutOfRangeIsIgnored(t *testing.T) {
	q := newQuiz(t)

	for _, i := range []int{-1, 4, 99} {
		if _, ok := q.Select(i); ok {
			t.Errorf("Select(%d) should be ignored", i)
		}
	}
	if q.Phase() != study.AwaitingAnswer {
		t.Errorf("Phase() = %v, want awaiting_answer", q.Phase())
	}
}

func TestQuiz_WrongAnswerFeedback(t *testing.T) {
	q := newQuiz(t)

	fb, ok := q.Select(0)
	if !ok {
		t.Fatal("Select(0) ignored")
	}
	if fb.Correct || fb.CorrectIndex != 3 || fb.Selected != 0 {
		t.Errorf("Feedback = %+v, want incorrect with correct index 3", fb)
	}
	if fb.Explanation == "" {
		t.Error("Feedback should carry the explanation")
	}
	if q.Score() != 0 {
		t.Errorf("Score() = %d, want 0", q.Score())
	}
}

func TestQuiz_AdvanceRequiresAnswer(t *testing.T) {
	q := newQuiz(t)

	if q.Advance() {
		t.Error("Advance() before answering should be ignored")
	}
	q.Select(3)
	if !q.Advance() {
		t.Fatal("Advance() after answering = false")
	}
	st := q.State()
	if st.Phase != study.AwaitingAnswer || st.Index != 1 {
		t.Errorf("State() = %+v, want AwaitingAnswer(1)", st)
	}
	if q.Advance() {
		t.Error("Advance() on an unanswered question should be ignored")
	}
}

func TestQuiz_FullRun(t *testing.T) {
	tests := []struct {
		name        string
		answers     []int
		wantScore   int
		wantPercent int
		wantPerf    study.Performance
	}{
		{"all correct", []int{3, 1, 1, 2, 2}, 5, 100, study.Excellent},
		{"all wrong", []int{0, 0, 0, 0, 0}, 0, 0, study.KeepStudying},
		{"three right", []int{3, 1, 1, 0, 0}, 3, 60, study.Good},
		{"four right", []int{3, 1, 1, 2, 0}, 4, 80, study.Excellent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newQuiz(t)
			for i, a := range tt.answers {
				fb, ok := q.Select(a)
				if !ok {
					t.Fatalf("Select(%d) on question %d ignored", a, i)
				}
				if fb.Last != (i == len(tt.answers)-1) {
					t.Errorf("Feedback.Last = %v on question %d", fb.Last, i)
				}
				if !q.Advance() {
					t.Fatalf("Advance() after question %d = false", i)
				}
			}

			if q.Phase() != study.Finished {
				t.Fatalf("Phase() = %v, want finished", q.Phase())
			}
			if q.Score() != tt.wantScore || q.Percent() != tt.wantPercent {
				t.Errorf("score = %d (%d%%), want %d (%d%%)", q.Score(), q.Percent(), tt.wantScore, tt.wantPercent)
			}
			if q.Performance() != tt.wantPerf {
				t.Errorf("Performance() = %v, want %v", q.Performance(), tt.wantPerf)
			}
			if st := q.State(); st.Question != nil || st.Index != st.Total {
				t.Errorf("finished State() = %+v, want no question and index == total", st)
			}
			if q.Advance() {
				t.Error("Advance() after finish should be ignored")
			}
		})
	}
}

func TestQuiz_FinishOnlyAfterLastAnswer(t *testing.T) {
	q := newQuiz(t)

	q.Select(3)
	if q.Finish() {
		t.Error("Finish() on the first question should be ignored")
	}
	for _, a := range []int{1, 1, 2} {
		q.Advance()
		q.Select(a)
	}
	q.Advance()
	if q.Finish() {
		t.Error("Finish() before the last answer should be ignored")
	}
	q.Select(2)
	if !q.Finish() {
		t.Fatal("Finish() after the last answer = false")
	}
	if q.Finish() {
		t.Error("Finish() twice should be ignored")
	}
	if q.Score() != 5 {
		t.Errorf("Score() = %d, want 5", q.Score())
	}
}

func TestQuiz_RestartIsDeterministic(t *testing.T) {
	q := newQuiz(t)
	run := func() int {
		for _, a := range []int{3, 1, 1, 2, 2} {
			q.Select(a)
			q.Advance()
		}
		return q.Percent()
	}

	first := run()
	q.Restart()
	if st := q.State(); st.Phase != study.AwaitingAnswer || st.Index != 0 || st.Score != 0 {
		t.Fatalf("State() after Restart = %+v", st)
	}
	if second := run(); second != first || second != 100 {
		t.Errorf("runs gave %d%% and %d%%, want 100%% both", first, second)
	}
}

func TestQuiz_StateDoesNotShareOptions(t *testing.T) {
	questions := testQuestions()
	q, err := study.NewQuiz(questions)
	if err != nil {
		t.Fatalf("NewQuiz() error = %v", err)
	}
	want := questions[0].Options[0]

	snap := q.State()
	snap.Question.Options[0] = "alterada"

	if got := q.State().Question.Options[0]; got != want {
		t.Errorf("quiz option = %q after editing a snapshot, want %q", got, want)
	}
	if questions[0].Options[0] != want {
		t.Errorf("source option = %q after editing a snapshot, want %q", questions[0].Options[0], want)
	}
}
