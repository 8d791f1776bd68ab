package study

import (
	"fmt"
	"sync"
	"time"

	"github.com/p-n-ai/pai-titulos/internal/content"
)

// DefaultFinishDelay keeps the last feedback visible before the result.
const DefaultFinishDelay = 1500 * time.Millisecond

// QuizResult summarizes a finished quiz.
type QuizResult struct {
	Score       int
	Total       int
	Percent     int
	Performance Performance
	// SectionCompleted is true when the score reached the pass threshold
	// and the quiz section was marked complete.
	SectionCompleted bool
}

// Snapshot is the state the presentation layer renders.
type Snapshot struct {
	Navigation NavState  `json:"navigation"`
	Completed  []string  `json:"completed"`
	Percent    int       `json:"percent"`
	Quiz       QuizState `json:"quiz"`
}

// SessionConfig holds the dependencies of a study session.
type SessionConfig struct {
	Content       *content.Content
	Index         *Index // built from Content when nil
	Clock         Clock  // SystemClock when nil
	PassThreshold int    // default 60
	FinishDelay   time.Duration
	// OnAutoFinish runs after the deferred transition finished the quiz.
	// It is called without the session lock held.
	OnAutoFinish func(QuizResult)
}

// Session owns the state of one learner: navigation, progress, quiz and
// the last search. All methods are safe for concurrent use.
type Session struct {
	mu          sync.Mutex
	nav         *Navigator
	progress    *Progress
	quiz        *Quiz
	index       *Index
	quizSection string
	threshold   int
	delay       time.Duration
	clock       Clock
	onFinish    func(QuizResult)
	lastResults []SearchResult
	timer       Timer
	generation  uint64
}

// NewSession starts a session on the first section with a fresh quiz.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Content == nil {
		return nil, fmt.Errorf("content is required")
	}
	if err := cfg.Content.Validate(); err != nil {
		return nil, err
	}
	quiz, err := NewQuiz(cfg.Content.Questions)
	if err != nil {
		return nil, err
	}

	ids := cfg.Content.SectionIDs()
	index := cfg.Index
	if index == nil {
		index = NewIndex(cfg.Content.Sections)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = SystemClock{}
	}
	threshold := cfg.PassThreshold
	if threshold == 0 {
		threshold = DefaultPassThreshold
	}
	delay := cfg.FinishDelay
	if delay == 0 {
		delay = DefaultFinishDelay
	}

	return &Session{
		nav:         NewNavigator(ids),
		progress:    NewProgress(ids),
		quiz:        quiz,
		index:       index,
		quizSection: cfg.Content.QuizSection,
		threshold:   threshold,
		delay:       delay,
		clock:       clock,
		onFinish:    cfg.OnAutoFinish,
	}, nil
}

// GoTo shows the section id. Unknown ids are ignored.
func (s *Session) GoTo(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.GoTo(id)
}

// Next shows the following section.
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Next()
}

// Previous shows the preceding section.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.Previous()
}

// ToggleCompletion flips the completion mark of a section.
func (s *Session) ToggleCompletion(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Toggle(id)
}

// SelectAnswer answers the current question. Answering the last question
// arms the deferred finish.
func (s *Session) SelectAnswer(selected int) (Feedback, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fb, ok := s.quiz.Select(selected)
	if ok && fb.Last {
		s.armFinish()
	}
	return fb, ok
}

// Advance moves to the next question. When it finishes the quiz the
// result is returned and the deferred finish is cancelled.
func (s *Session) Advance() (*QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.quiz.Advance() {
		return nil, false
	}
	if s.quiz.Phase() != Finished {
		return nil, true
	}
	s.cancelFinish()
	result := s.completeQuiz()
	return &result, true
}

// RestartQuiz resets the quiz and cancels a pending finish.
func (s *Session) RestartQuiz() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelFinish()
	s.quiz.Restart()
}

// Search runs query against the content and remembers the results.
func (s *Session) Search(query string) []SearchResult {
	results := s.index.Search(query)

	s.mu.Lock()
	s.lastResults = results
	s.mu.Unlock()

	return append([]SearchResult(nil), results...)
}

// Close cancels a pending finish. The session must not be used afterwards.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelFinish()
}

// Navigation returns the current position.
func (s *Session) Navigation() NavState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav.State()
}

// IsComplete reports whether a section is marked complete.
func (s *Session) IsComplete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.IsComplete(id)
}

// Percent returns the completion percentage.
func (s *Session) Percent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Percent()
}

// Completed returns the completed sections in order.
func (s *Session) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress.Completed()
}

// Quiz returns the quiz snapshot.
func (s *Session) Quiz() QuizState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quiz.State()
}

// QuizResult returns the result of a finished quiz.
func (s *Session) QuizResult() (QuizResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quiz.Phase() != Finished {
		return QuizResult{}, false
	}
	passed := s.nav.Known(s.quizSection) && s.quiz.Percent() >= s.threshold
	return s.result(passed), true
}

// LastResults returns the results of the last search.
func (s *Session) LastResults() []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SearchResult(nil), s.lastResults...)
}

// Snapshot returns everything the presentation needs in one read.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Navigation: s.nav.State(),
		Completed:  s.progress.Completed(),
		Percent:    s.progress.Percent(),
		Quiz:       s.quiz.State(),
	}
}

func (s *Session) armFinish() {
	s.cancelFinish()
	gen := s.generation
	s.timer = s.clock.AfterFunc(s.delay, func() { s.autoFinish(gen) })
}

// cancelFinish stops the pending timer and invalidates a callback that
// already started.
func (s *Session) cancelFinish() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.generation++
}

func (s *Session) autoFinish(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || !s.quiz.Finish() {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	result := s.completeQuiz()
	hook := s.onFinish
	s.mu.Unlock()

	if hook != nil {
		hook(result)
	}
}

func (s *Session) completeQuiz() QuizResult {
	completed := s.progress.MarkCompleteIfThreshold(s.quizSection, s.quiz.Percent(), s.threshold)
	return s.result(completed)
}

func (s *Session) result(completed bool) QuizResult {
	return QuizResult{
		Score:            s.quiz.Score(),
		Total:            s.quiz.Total(),
		Percent:          s.quiz.Percent(),
		Performance:      s.quiz.Performance(),
		SectionCompleted: completed,
	}
}
