package study_test

import (
	"testing"

	"github.com/p-n-ai/pai-titulos/internal/study"
)

var sectionIDs = []string{"conceito", "caracteristicas", "principios", "classificacao", "especies", "operacoes", "quiz", "resumo"}

func TestNavigator_Start(t *testing.T) {
	n := study.NewNavigator(sectionIDs)

	st := n.State()
	if st.Current != "conceito" || st.Index != 0 || st.Total != 8 {
		t.Errorf("State() = %+v, want conceito at 0 of 8", st)
	}
	if st.CanPrevious {
		t.Error("previous should be disabled at the first section")
	}
	if !st.CanNext {
		t.Error("next should be enabled at the first section")
	}
}

func TestNavigator_GoTo(t *testing.T) {
	for i, id := range sectionIDs {
		t.Run(id, func(t *testing.T) {
			n := study.NewNavigator(sectionIDs)
			if !n.GoTo(id) {
				t.Fatalf("GoTo(%q) = false", id)
			}
			st := n.State()
			if st.Current != id {
				t.Errorf("Current = %q, want %q", st.Current, id)
			}
			if st.CanPrevious != (i > 0) {
				t.Errorf("CanPrevious = %v at index %d", st.CanPrevious, i)
			}
			if st.CanNext != (i < len(sectionIDs)-1) {
				t.Errorf("CanNext = %v at index %d", st.CanNext, i)
			}
		})
	}
}

func TestNavigator_GoToUnknownIsNoop(t *testing.T) {
	n := study.NewNavigator(sectionIDs)
	n.GoTo("especies")

	if n.GoTo("inexistente") {
		t.Error("GoTo(unknown) should report false")
	}
	if n.Current() != "especies" {
		t.Errorf("Current = %q, want especies after unknown GoTo", n.Current())
	}
}

func TestNavigator_NextPrevious(t *testing.T) {
	n := study.NewNavigator(sectionIDs)

	if n.Previous() {
		t.Error("Previous() at index 0 should be a no-op")
	}
	if n.Current() != "conceito" {
		t.Errorf("Current = %q, want conceito", n.Current())
	}

	for i := 1; i < len(sectionIDs); i++ {
		if !n.Next() {
			t.Fatalf("Next() #%d = false", i)
		}
		if n.Current() != sectionIDs[i] {
			t.Fatalf("Current = %q, want %q", n.Current(), sectionIDs[i])
		}
	}

	if n.Next() {
		t.Error("Next() at the last index should be a no-op")
	}
	if n.Current() != "resumo" {
		t.Errorf("Current = %q, want resumo", n.Current())
	}
	if !n.Previous() || n.Current() != "quiz" {
		t.Errorf("Previous() from resumo should land on quiz, got %q", n.Current())
	}
}
