package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/p-n-ai/pai-titulos/internal/content"
	"github.com/p-n-ai/pai-titulos/internal/study"
)

// NoResultsText is sent when a search matches nothing.
const NoResultsText = "Nenhum resultado encontrado"

const helpText = `Comandos disponíveis:
/secoes - lista as seções
/ir <seção> - abre uma seção (ex.: /ir principios)
/proxima, /anterior - navega entre as seções
/concluir [seção] - marca ou desmarca uma seção como concluída
/progresso - mostra o seu progresso
/quiz - abre o quiz
/responder <n> - responde a questão atual com a opção n
/avancar - vai para a próxima questão
/reiniciar - recomeça o quiz
/buscar <termo> - busca no conteúdo
/inicio - recomeça o estudo do zero

Qualquer outro texto é tratado como uma busca.`

func renderWelcome(c *content.Content, name string) string {
	return fmt.Sprintf(`Olá, %s!

Bem-vindo ao estudo de %s. O conteúdo tem %d seções e um quiz com %d questões.
Use /ajuda para ver todos os comandos.`, name, c.Title, len(c.Sections), len(c.Questions))
}

func renderSection(c *content.Content, snap study.Snapshot) string {
	nav := snap.Navigation
	sec, _ := c.Section(nav.Current)

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d/%d)\n", sec.Title, nav.Index+1, nav.Total)
	if slices.Contains(snap.Completed, sec.ID) {
		b.WriteString("✓ Seção concluída\n")
	}
	for _, u := range sec.Units {
		b.WriteString("\n")
		switch u.Kind {
		case content.KindListItem:
			b.WriteString("• " + u.Text)
		case content.KindHeading:
			b.WriteString(strings.ToUpper(u.Text))
		default:
			b.WriteString(u.Text)
		}
	}
	b.WriteString("\n\n")
	if sec.ID == c.QuizSection {
		b.WriteString("Use /quiz para começar.\n")
	}

	var cmds []string
	if nav.CanPrevious {
		cmds = append(cmds, "/anterior")
	}
	if nav.CanNext {
		cmds = append(cmds, "/proxima")
	}
	cmds = append(cmds, "/concluir", "/secoes")
	b.WriteString(strings.Join(cmds, "  "))
	return b.String()
}

func renderSections(c *content.Content, snap study.Snapshot) string {
	var b strings.Builder
	b.WriteString("Seções:\n")
	for _, s := range c.Sections {
		marker := "○"
		if slices.Contains(snap.Completed, s.ID) {
			marker = "✓"
		}
		current := ""
		if s.ID == snap.Navigation.Current {
			current = " ← você está aqui"
		}
		fmt.Fprintf(&b, "%s %s (/ir %s)%s\n", marker, s.Title, s.ID, current)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderProgress(c *content.Content, snap study.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Progresso: %d%% concluído (%d de %d seções)\n", snap.Percent, len(snap.Completed), len(c.Sections))
	for _, s := range c.Sections {
		marker := "○"
		if slices.Contains(snap.Completed, s.ID) {
			marker = "✓"
		}
		fmt.Fprintf(&b, "\n%s %s", marker, s.Title)
	}
	return b.String()
}

func renderToggle(c *content.Content, id string, completed bool, percent int) string {
	sec, _ := c.Section(id)
	if completed {
		return fmt.Sprintf("✓ %q marcada como concluída. Progresso: %d%%", sec.Title, percent)
	}
	return fmt.Sprintf("%q desmarcada. Progresso: %d%%", sec.Title, percent)
}

func renderQuestion(st study.QuizState) string {
	q := st.Question
	var b strings.Builder
	fmt.Fprintf(&b, "Questão %d de %d\n\n%s\n", st.Index+1, st.Total, q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
	}
	return b.String()
}

func renderQuiz(st study.QuizState, result study.QuizResult) string {
	switch st.Phase {
	case study.Finished:
		return renderResult(result)
	case study.Answered:
		fb := study.Feedback{
			Question:     st.Index,
			Selected:     st.Selected,
			CorrectIndex: st.Question.Correct,
			Correct:      st.Correct,
			Explanation:  st.Question.Explanation,
			Last:         st.Index == st.Total-1,
		}
		return renderQuestion(st) + "\n\n" + renderFeedback(st.Question, fb)
	default:
		return renderQuestion(st) + "\n\nResponda com o número da opção (ex.: 2) ou /responder 2."
	}
}

func renderFeedback(q *content.Question, fb study.Feedback) string {
	var b strings.Builder
	if fb.Correct {
		b.WriteString("Correto!\n")
	} else {
		fmt.Fprintf(&b, "Incorreto! A resposta certa é %d. %s\n", fb.CorrectIndex+1, q.Options[fb.CorrectIndex])
	}
	b.WriteString(fb.Explanation)
	b.WriteString("\n\n")
	if fb.Last {
		b.WriteString("O resultado aparece em instantes. Use /avancar para vê-lo agora.")
	} else {
		b.WriteString("Use /avancar para a próxima questão.")
	}
	return b.String()
}

func performanceText(p study.Performance) string {
	switch p {
	case study.Excellent:
		return "Excelente! 🎉"
	case study.Good:
		return "Bom trabalho! 👍"
	default:
		return "Continue estudando! 📚"
	}
}

func renderResult(r study.QuizResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n%d de %d corretas\n%d%%", performanceText(r.Performance), r.Score, r.Total, r.Percent)
	if r.SectionCompleted {
		b.WriteString("\n\nQuiz marcado como concluído.")
	}
	b.WriteString("\n\nUse /reiniciar para refazer o quiz.")
	return b.String()
}

func renderSearch(query string, results []study.SearchResult, limit int) string {
	if len(results) == 0 {
		return NoResultsText
	}
	total := len(results)
	if limit > 0 && total > limit {
		results = results[:limit]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Resultados para %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s (/ir %s)\n%s\n", i+1, r.SectionTitle, r.SectionID, r.Snippet)
	}
	if total > len(results) {
		fmt.Fprintf(&b, "\nMostrando %d de %d resultados.", len(results), total)
	}
	return strings.TrimRight(b.String(), "\n")
}

