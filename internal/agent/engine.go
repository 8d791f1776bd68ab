package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-titulos/internal/chat"
	"github.com/p-n-ai/pai-titulos/internal/content"
	"github.com/p-n-ai/pai-titulos/internal/study"
)

const (
	defaultSearchLimit = 10
	notifyTimeout      = 10 * time.Second
	fallbackText       = "Desculpe, estou com um problema técnico. Tente novamente em instantes."
)

// Notifier delivers messages that are not replies, such as the deferred
// quiz result. *chat.Gateway satisfies it.
type Notifier interface {
	Send(ctx context.Context, msg chat.OutboundMessage) error
}

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	Content       *content.Content
	Index         *study.Index // built from Content when nil
	Store         SessionStore
	Events        EventLogger
	Notifier      Notifier
	Clock         study.Clock
	PassThreshold int           // default 60
	FinishDelay   time.Duration // default 1.5s
	SearchLimit   int           // default 10
}

type commandFunc func(ss *StudySession, arg string) string

// Engine turns chat messages into study session operations and renders
// the resulting state as text.
type Engine struct {
	content       *content.Content
	index         *study.Index
	store         SessionStore
	events        EventLogger
	notifier      Notifier
	clock         study.Clock
	passThreshold int
	finishDelay   time.Duration
	searchLimit   int
	commands      map[string]commandFunc
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Content == nil {
		return nil, fmt.Errorf("content is required")
	}
	if err := cfg.Content.Validate(); err != nil {
		return nil, err
	}

	index := cfg.Index
	if index == nil {
		index = study.NewIndex(cfg.Content.Sections)
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	limit := cfg.SearchLimit
	if limit == 0 {
		limit = defaultSearchLimit
	}

	e := &Engine{
		content:       cfg.Content,
		index:         index,
		store:         store,
		events:        events,
		notifier:      cfg.Notifier,
		clock:         cfg.Clock,
		passThreshold: cfg.PassThreshold,
		finishDelay:   cfg.FinishDelay,
		searchLimit:   limit,
	}
	e.commands = map[string]commandFunc{
		"/secoes":    e.cmdSections,
		"/ir":        e.cmdGoTo,
		"/proxima":   e.cmdNext,
		"/anterior":  e.cmdPrevious,
		"/concluir":  e.cmdToggle,
		"/progresso": e.cmdProgress,
		"/quiz":      e.cmdQuiz,
		"/responder": e.cmdAnswer,
		"/avancar":   e.cmdAdvance,
		"/reiniciar": e.cmdRestart,
		"/buscar":    e.cmdSearch,
		"/ajuda":     e.cmdHelp,
		"/help":      e.cmdHelp,
	}
	return e, nil
}

// Commands returns the command menu advertised by channels that support one.
func Commands() []chat.BotCommand {
	return []chat.BotCommand{
		{Command: "start", Description: "Começa o estudo do zero"},
		{Command: "secoes", Description: "Lista as seções"},
		{Command: "ir", Description: "Abre uma seção"},
		{Command: "proxima", Description: "Próxima seção"},
		{Command: "anterior", Description: "Seção anterior"},
		{Command: "concluir", Description: "Marca ou desmarca a seção como concluída"},
		{Command: "progresso", Description: "Mostra o seu progresso"},
		{Command: "quiz", Description: "Abre o quiz"},
		{Command: "responder", Description: "Responde a questão atual"},
		{Command: "avancar", Description: "Vai para a próxima questão"},
		{Command: "reiniciar", Description: "Recomeça o quiz"},
		{Command: "buscar", Description: "Busca no conteúdo"},
		{Command: "ajuda", Description: "Mostra os comandos"},
	}
}

// ProcessMessage handles an incoming message and returns a response.
// User mistakes never produce an error: invalid commands re-render the
// current view.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) (string, error) {
	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
	)

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		return e.handleCommand(ctx, msg, text)
	}

	ss, err := e.getOrCreateSession(msg)
	if err != nil {
		slog.Error("failed to get session", "user_id", msg.UserID, "error", err)
		return fallbackText, nil
	}

	if text == "" {
		return "Envie um termo para buscar ou use /ajuda para ver os comandos.", nil
	}
	if n, ok := e.bareAnswer(ss, text); ok {
		return e.answer(ss, n), nil
	}
	return e.search(ss, text), nil
}

// EndSession discards the session of a user, cancelling a pending quiz
// finish. It reports whether a session existed.
func (e *Engine) EndSession(channel, userID string) bool {
	ended := e.store.End(SessionKey(channel, userID))
	if ended {
		slog.Info("study session ended", "channel", channel, "user_id", userID)
	}
	return ended
}

// ActiveSessions returns the number of live sessions.
func (e *Engine) ActiveSessions() int {
	return e.store.Len()
}

func (e *Engine) handleCommand(_ context.Context, msg chat.InboundMessage, text string) (string, error) {
	cmd, arg := parseCommand(text)

	switch cmd {
	case "/start", "/inicio":
		e.EndSession(msg.Channel, msg.UserID)
		return e.handleStart(msg)
	}

	run, ok := e.commands[cmd]
	if !ok {
		return fmt.Sprintf("Comando desconhecido: %s\nUse /ajuda para ver os comandos.", cmd), nil
	}

	ss, err := e.getOrCreateSession(msg)
	if err != nil {
		slog.Error("failed to get session", "user_id", msg.UserID, "error", err)
		return fallbackText, nil
	}
	return run(ss, arg), nil
}

func (e *Engine) handleStart(msg chat.InboundMessage) (string, error) {
	ss, err := e.getOrCreateSession(msg)
	if err != nil {
		slog.Error("failed to start session", "user_id", msg.UserID, "error", err)
		return fallbackText, nil
	}

	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = "estudante"
	}

	return renderWelcome(e.content, name) + "\n\n" + renderSection(e.content, ss.Session.Snapshot()), nil
}

func (e *Engine) getOrCreateSession(msg chat.InboundMessage) (*StudySession, error) {
	ss, created, err := e.store.GetOrCreate(SessionKey(msg.Channel, msg.UserID), func() (*StudySession, error) {
		return e.newStudySession(msg)
	})
	if err != nil {
		return nil, err
	}
	if created {
		slog.Info("study session started", "session_id", ss.ID, "channel", ss.Channel, "user_id", ss.UserID)
		e.emit(ss, EventSectionViewed, map[string]any{"section": ss.Session.Navigation().Current})
	}
	return ss, nil
}

func (e *Engine) newStudySession(msg chat.InboundMessage) (*StudySession, error) {
	ss := &StudySession{
		ID:        generateID(),
		Channel:   msg.Channel,
		UserID:    msg.UserID,
		StartedAt: time.Now(),
	}
	sess, err := study.NewSession(study.SessionConfig{
		Content:       e.content,
		Index:         e.index,
		Clock:         e.clock,
		PassThreshold: e.passThreshold,
		FinishDelay:   e.finishDelay,
		OnAutoFinish:  func(r study.QuizResult) { e.onAutoFinish(ss, r) },
	})
	if err != nil {
		return nil, fmt.Errorf("creating study session: %w", err)
	}
	ss.Session = sess
	return ss, nil
}

func (e *Engine) cmdSections(ss *StudySession, _ string) string {
	return renderSections(e.content, ss.Session.Snapshot())
}

func (e *Engine) cmdGoTo(ss *StudySession, arg string) string {
	if arg == "" {
		return renderSections(e.content, ss.Session.Snapshot())
	}
	e.navigated(ss, ss.Session.GoTo(strings.ToLower(arg)))
	return renderSection(e.content, ss.Session.Snapshot())
}

func (e *Engine) cmdNext(ss *StudySession, _ string) string {
	e.navigated(ss, ss.Session.Next())
	return renderSection(e.content, ss.Session.Snapshot())
}

func (e *Engine) cmdPrevious(ss *StudySession, _ string) string {
	e.navigated(ss, ss.Session.Previous())
	return renderSection(e.content, ss.Session.Snapshot())
}

func (e *Engine) navigated(ss *StudySession, changed bool) {
	if !changed {
		return
	}
	current := ss.Session.Navigation().Current
	slog.Debug("section changed", "session_id", ss.ID, "section", current)
	e.emit(ss, EventSectionViewed, map[string]any{"section": current})
}

func (e *Engine) cmdToggle(ss *StudySession, arg string) string {
	id := strings.ToLower(arg)
	if id == "" {
		id = ss.Session.Navigation().Current
	}
	if !ss.Session.ToggleCompletion(id) {
		return renderSection(e.content, ss.Session.Snapshot())
	}

	completed := ss.Session.IsComplete(id)
	slog.Debug("section toggled", "session_id", ss.ID, "section", id, "completed", completed)
	e.emit(ss, EventSectionToggled, map[string]any{"section": id, "completed": completed})
	return renderToggle(e.content, id, completed, ss.Session.Percent())
}

func (e *Engine) cmdProgress(ss *StudySession, _ string) string {
	return renderProgress(e.content, ss.Session.Snapshot())
}

func (e *Engine) cmdQuiz(ss *StudySession, _ string) string {
	if e.content.QuizSection != "" {
		e.navigated(ss, ss.Session.GoTo(e.content.QuizSection))
	}
	return e.quizView(ss)
}

func (e *Engine) cmdAnswer(ss *StudySession, arg string) string {
	n, err := strconv.Atoi(arg)
	if err != nil {
		return e.quizView(ss)
	}
	return e.answer(ss, n)
}

// answer selects the 1-based option n.
func (e *Engine) answer(ss *StudySession, n int) string {
	fb, ok := ss.Session.SelectAnswer(n - 1)
	if !ok {
		return e.quizView(ss)
	}

	slog.Debug("quiz answered", "session_id", ss.ID, "question", fb.Question, "correct", fb.Correct)
	e.emit(ss, EventQuizAnswered, map[string]any{
		"question": fb.Question,
		"selected": fb.Selected,
		"correct":  fb.Correct,
	})
	return renderFeedback(&e.content.Questions[fb.Question], fb)
}

func (e *Engine) cmdAdvance(ss *StudySession, _ string) string {
	result, ok := ss.Session.Advance()
	if !ok || result == nil {
		return e.quizView(ss)
	}
	e.finished(ss, *result, false)
	return renderResult(*result)
}

func (e *Engine) cmdRestart(ss *StudySession, _ string) string {
	ss.Session.RestartQuiz()
	slog.Debug("quiz restarted", "session_id", ss.ID)
	return e.cmdQuiz(ss, "")
}

func (e *Engine) cmdSearch(ss *StudySession, arg string) string {
	if arg == "" {
		return "Use /buscar <termo>, por exemplo /buscar duplicata."
	}
	return e.search(ss, arg)
}

func (e *Engine) cmdHelp(_ *StudySession, _ string) string {
	return helpText
}

func (e *Engine) search(ss *StudySession, query string) string {
	results := ss.Session.Search(query)
	e.emit(ss, EventSearchPerformed, map[string]any{"query": query, "results": len(results)})
	return renderSearch(query, results, e.searchLimit)
}

func (e *Engine) quizView(ss *StudySession) string {
	result, _ := ss.Session.QuizResult()
	return renderQuiz(ss.Session.Quiz(), result)
}

// bareAnswer treats a plain number as an answer while the quiz section is
// open and a question is waiting.
func (e *Engine) bareAnswer(ss *StudySession, text string) (int, bool) {
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	if ss.Session.Navigation().Current != e.content.QuizSection {
		return 0, false
	}
	if ss.Session.Quiz().Phase != study.AwaitingAnswer {
		return 0, false
	}
	return n, true
}

func (e *Engine) onAutoFinish(ss *StudySession, result study.QuizResult) {
	e.finished(ss, result, true)
	if e.notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := e.notifier.Send(ctx, chat.OutboundMessage{
		Channel: ss.Channel,
		UserID:  ss.UserID,
		Text:    renderResult(result),
	}); err != nil {
		slog.Warn("failed to deliver quiz result", "user_id", ss.UserID, "channel", ss.Channel, "error", err)
	}
}

func (e *Engine) finished(ss *StudySession, result study.QuizResult, deferred bool) {
	slog.Info("quiz finished",
		"session_id", ss.ID,
		"score", result.Score,
		"total", result.Total,
		"percent", result.Percent,
		"deferred", deferred,
	)
	e.emit(ss, EventQuizFinished, map[string]any{
		"score":     result.Score,
		"total":     result.Total,
		"percent":   result.Percent,
		"completed": result.SectionCompleted,
		"deferred":  deferred,
	})
}

func (e *Engine) emit(ss *StudySession, eventType string, data map[string]any) {
	if err := e.events.LogEvent(Event{
		SessionID: ss.ID,
		UserID:    ss.UserID,
		Channel:   ss.Channel,
		EventType: eventType,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log event", "type", eventType, "session_id", ss.ID, "error", err)
	}
}

// parseCommand splits "/cmd@bot arg..." into a lower-cased command and the
// trimmed argument.
func parseCommand(text string) (string, string) {
	cmd, arg, _ := strings.Cut(text, " ")
	cmd = strings.ToLower(cmd)
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, strings.TrimSpace(arg)
}
