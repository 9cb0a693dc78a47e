package telegraph

import (
	"strings"
	"testing"
	"time"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/models"
)

func TestFormatCreated_Single(t *testing.T) {
	loc := mustLoc(t, testTZ)
	due := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	tasks := []*models.Task{{Title: "Reunião", DueAt: &due, Recurring: true, RecurrenceInterval: "weekly"}}

	got := formatCreated(tasks, []intent.Category{intent.CategoryWork}, []int{15}, loc)
	want := "✅ *Tarefa Agendada!*\n\n📝 Reunião\n📅 15/10/2026 10:00\n🏷️ Trabalho\n🔁 Semanal\n⏰ Lembrete: 15min antes"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatCreated_Multiple(t *testing.T) {
	loc := mustLoc(t, testTZ)
	a := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	b := time.Date(2026, 10, 16, 21, 0, 0, 0, time.UTC)
	tasks := []*models.Task{{Title: "A", DueAt: &a}, {Title: "B", DueAt: &b}}

	got := formatCreated(tasks, []intent.Category{intent.CategoryGeneral, intent.CategoryHealth}, []int{0, 0}, loc)
	if !strings.HasPrefix(got, "✅ *2 Tarefas Agendadas!*") {
		t.Errorf("header: %q", got)
	}
	if strings.Contains(got, "Lembrete") || strings.Contains(got, "🔁") {
		t.Errorf("unexpected annotations: %q", got)
	}
	if !strings.Contains(got, "16/10/2026 18:00\n🏷️ Saúde") {
		t.Errorf("second entry: %q", got)
	}
}

func TestFormatNeedsDate(t *testing.T) {
	got := formatNeedsDate([]string{"Mercado", "Farmácia"})
	want := "📅 *Faltou a data!* Quando devo agendar isso?\n▫️ Mercado\n▫️ Farmácia"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFormatToday(t *testing.T) {
	loc := mustLoc(t, testTZ)
	if got := formatToday(nil, loc); got != msgTodayEmpty {
		t.Errorf("empty = %q", got)
	}
	at := time.Date(2026, 10, 14, 12, 5, 0, 0, time.UTC)
	got := formatToday([]models.Task{{Title: "Café", DueAt: &at}}, loc)
	if got != "📅 *Hoje:*\n▫️ Café (09:05)" {
		t.Errorf("got %q", got)
	}
}

func TestFormatPending(t *testing.T) {
	loc := mustLoc(t, testTZ)
	if got := formatPending(nil, loc); got != msgNoPending {
		t.Errorf("empty = %q", got)
	}
	at := time.Date(2026, 12, 1, 3, 0, 0, 0, time.UTC)
	got := formatPending([]models.Task{{Title: "Natal"}, {Title: "Boleto", DueAt: &at}}, loc)
	if got != "📋 *Pendentes:*\n▫️ Natal (Sem data)\n▫️ Boleto (01/12/2026 00:00)" {
		t.Errorf("got %q", got)
	}
}

func TestFormatReminder(t *testing.T) {
	loc := mustLoc(t, testTZ)
	at := time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC)
	got := formatReminder(models.Task{Title: "Dentista", DueAt: &at}, loc)
	if got != "⏰ *Lembrete:*\n\n📝 Dentista\n📅 15/10/2026 10:00" {
		t.Errorf("got %q", got)
	}
}

func TestFormatSummary(t *testing.T) {
	loc := mustLoc(t, testTZ)
	day := time.Date(2026, 10, 15, 0, 0, 0, 0, loc)
	at := time.Date(2026, 10, 15, 11, 0, 0, 0, time.UTC)
	got := formatSummary(day, []models.Task{{Title: "Consulta", DueAt: &at}}, loc)
	want := "🌅 *Resumo para Amanhã* (15/10/2026):\n\n▫️ Consulta (08:00)\n\nPrepare-se! 💪"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestFormatImageSuggestion(t *testing.T) {
	loc := mustLoc(t, testTZ)
	due := time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	got := formatImageSuggestion(intent.TaskIntent{Title: "Show X", Description: "Arena", Due: &due}, loc)
	for _, want := range []string{"Show X", "20/10/2026 21:00", "Arena", msgImageQuestion} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestFormatPersonas_MarksCurrent(t *testing.T) {
	got := formatPersonas("vader")
	if !strings.Contains(got, "Darth Vader") || !strings.Contains(got, "Sargento") {
		t.Errorf("personas = %q", got)
	}
	if strings.Count(got, "✔️") != 1 {
		t.Errorf("expected exactly one current marker: %q", got)
	}
}

func TestMenuOptionsFitPolls(t *testing.T) {
	for _, o := range append(append([]string{}, menuOptions...), optImageConfirm, optImageDismiss) {
		if n := len([]rune(o)); n > 24 {
			t.Errorf("option %q is %d runes, too long for list rows", o, n)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is..."},
		{"ab", 2, "ab"},
		{"abcdef", 3, "abc"},
		{"ação rápida demais", 8, "ação ..."},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestChunkText(t *testing.T) {
	if got := ChunkText("curto", 10); len(got) != 1 || got[0] != "curto" {
		t.Errorf("short = %q", got)
	}

	// Breaks at the newline in the second half.
	got := ChunkText("aaaaaaa\nbbbbbbbbb", 10)
	if len(got) != 2 || got[0] != "aaaaaaa" || got[1] != "bbbbbbbbb" {
		t.Errorf("newline split = %q", got)
	}

	// No newline: hard split by runes, never inside a multibyte rune.
	got = ChunkText(strings.Repeat("é", 25), 10)
	if len(got) != 3 || got[0] != strings.Repeat("é", 10) || got[2] != strings.Repeat("é", 5) {
		t.Errorf("hard split = %q", got)
	}
	for _, c := range got {
		if len([]rune(c)) > 10 {
			t.Errorf("chunk too long: %d runes", len([]rune(c)))
		}
	}
}
