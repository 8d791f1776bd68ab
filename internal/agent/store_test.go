package agent_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/p-n-ai/pai-titulos/internal/agent"
	"github.com/p-n-ai/pai-titulos/internal/content"
	"github.com/p-n-ai/pai-titulos/internal/study"
)

func newStudySession(t *testing.T, clock study.Clock) *agent.StudySession {
	t.Helper()
	c, err := content.Default()
	if err != nil {
		t.Fatalf("content.Default() error = %v", err)
	}
	sess, err := study.NewSession(study.SessionConfig{Content: c, Clock: clock})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return &agent.StudySession{ID: "s", Channel: "websocket", UserID: "u1", Session: sess}
}

func TestSessionKey(t *testing.T) {
	if got := agent.SessionKey("telegram", "42"); got != "telegram:42" {
		t.Errorf("SessionKey() = %q, want telegram:42", got)
	}
}

func TestMemoryStore_PutGet(t *testing.T) {
	store := agent.NewMemoryStore()
	ss := newStudySession(t, nil)

	store.Put("websocket:u1", ss)

	got, ok := store.Get("websocket:u1")
	if !ok || got != ss {
		t.Fatalf("Get() = %v, %v; want the stored session", got, ok)
	}
	if _, ok := store.Get("websocket:u2"); ok {
		t.Error("Get() should not find another user")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestMemoryStore_GetOrCreate_Concurrent(t *testing.T) {
	store := agent.NewMemoryStore()
	var creates atomic.Int32
	create := func() (*agent.StudySession, error) {
		creates.Add(1)
		return newStudySession(t, nil), nil
	}

	const workers = 16
	got := make([]*agent.StudySession, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ss, _, err := store.GetOrCreate("telegram:42", create)
			if err != nil {
				t.Errorf("GetOrCreate() error = %v", err)
			}
			got[i] = ss
		}()
	}
	wg.Wait()

	if creates.Load() != 1 {
		t.Fatalf("create ran %d times, want 1", creates.Load())
	}
	for i, ss := range got {
		if ss != got[0] {
			t.Errorf("worker %d got a different session", i)
		}
	}
}

func TestMemoryStore_GetOrCreate_Error(t *testing.T) {
	store := agent.NewMemoryStore()
	wantErr := errors.New("boom")

	_, created, err := store.GetOrCreate("k", func() (*agent.StudySession, error) { return nil, wantErr })
	if !errors.Is(err, wantErr) || created {
		t.Fatalf("GetOrCreate() = created %v, err %v; want the create error", created, err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after a failed create", store.Len())
	}

	ss := newStudySession(t, nil)
	if _, created, _ := store.GetOrCreate("k", func() (*agent.StudySession, error) { return ss, nil }); !created {
		t.Error("GetOrCreate() should create after a failed attempt")
	}
	if _, created, _ := store.GetOrCreate("k", func() (*agent.StudySession, error) { return ss, nil }); created {
		t.Error("GetOrCreate() should reuse the stored session")
	}
}

func TestMemoryStore_EndClosesSession(t *testing.T) {
	clock := &manualClock{}
	store := agent.NewMemoryStore()
	ss := newStudySession(t, clock)
	store.Put("k", ss)

	answerLast(ss.Session)

	if !store.End("k") {
		t.Fatal("End() = false, want true")
	}
	if store.End("k") {
		t.Error("End() on a missing key should report false")
	}
	clock.Fire()
	if ss.Session.Quiz().Phase == study.Finished {
		t.Error("End() should cancel the pending finish")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestMemoryStore_PutReplacesAndCloses(t *testing.T) {
	clock := &manualClock{}
	store := agent.NewMemoryStore()
	old := newStudySession(t, clock)
	store.Put("k", old)
	answerLast(old.Session)

	store.Put("k", newStudySession(t, clock))

	clock.Fire()
	if old.Session.Quiz().Phase == study.Finished {
		t.Error("replaced session should have its pending finish cancelled")
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

// answerLast walks to the last question and answers it, arming the
// deferred finish.
func answerLast(s *study.Session) {
	for s.Quiz().Index < s.Quiz().Total-1 {
		s.SelectAnswer(0)
		s.Advance()
	}
	s.SelectAnswer(0)
}
