package telegraph

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/persona"
)

// Fixed replies. User-visible failures never include error text.
const (
	msgProcessingFailure = "😵 Tive um problema ao processar isso. Tente novamente mais tarde."
	msgAudioFailure      = "❌ Não consegui entender o áudio. Pode escrever?"
	msgImageFailure      = "😵 Não consegui analisar a imagem. Tente novamente mais tarde."
	msgImageNoEvent      = "🖼️ Não encontrei nenhum evento nessa imagem."
	msgUnsupportedMedia  = "📎 Por enquanto eu entendo textos, áudios e imagens."
	msgFallbackGreeting  = "👋 Olá! Estou pronto para ajudar. Diga algo como \"Reunião amanhã às 10h\"."
	msgCreateHelp        = "💡 Para criar, apenas diga: *\"Reunião amanhã às 10h\"* ou mande um áudio!\n\nVocê também pode pedir várias de uma vez: *\"Dentista sexta às 9h e academia às 18h\"*."
	msgTodayEmpty        = "✨ Tudo limpo por hoje!"
	msgNoPending         = "✅ Nenhuma tarefa pendente."
	msgSuggestionGone    = "🤷 Não há nenhuma sugestão pendente."
	msgSuggestionExpired = "⌛ Essa sugestão expirou. Mande a imagem novamente."
	msgSuggestionDropped = "👍 Sugestão descartada."
	msgNoDashboard       = "🌐 O painel web ainda não foi configurado."
	msgNeedsDateQuestion = "Quando devo agendar isso?"
	msgMenuQuestion      = "O que deseja fazer?"
	msgPersonaQuestion   = "🎭 Escolha a personalidade do assistente:"
	msgImageQuestion     = "Deseja criar esta tarefa?"
	msgAddMemberUsage    = "❌ Formato inválido.\nUse: *add membro Nome, 5511999999999*"
	msgInvalidPhone      = "❌ Telefone inválido. Inclua DDD e código do país (ex: 5511...)"
	msgDuplicateMember   = "❌ Erro: Telefone já cadastrado ou inválido."
	msgMemberNotFound    = "❌ Usuário não encontrado."
	msgMemberHasTasks    = "❌ Não foi possível remover. O usuário pode ter tarefas vinculadas."
	msgSummaryUsage      = "❌ Use: *resumo 20:00* para ativar ou *resumo off* para desativar."
	msgSummaryOff        = "🔕 Resumo diário desativado."
	msgTimezoneUsage     = "❌ Fuso inválido. Use um nome IANA, por exemplo: *fuso America/Sao_Paulo*"
)

// Poll option labels. Votes are matched against these literally.
const (
	optToday        = "📅 Tarefas de hoje"
	optPending      = "📋 Minhas tarefas"
	optTeam         = "👥 Equipe"
	optCreateHelp   = "➕ Como criar"
	optPersonaMenu  = "🎭 Personalidade"
	optDashboard    = "🌐 Painel web"
	optImageConfirm = "✅ Criar tarefa"
	optImageDismiss = "❌ Ignorar"
)

// menuOptions is the standing menu, in display order.
var menuOptions = []string{optToday, optPending, optTeam, optCreateHelp, optPersonaMenu, optDashboard}

func formatWelcome(name string) string {
	return fmt.Sprintf("👋 Olá %s! Eu sou seu Assistente de Tarefas.\n\n"+
		"Pode me mandar áudios ou textos dizendo o que precisa fazer. "+
		"Lembre-se de sempre dizer *quando* é para fazer!", name)
}

func formatMenu() string {
	return "🤖 *Menu Inteligente*\n\n" +
		"📅 *Tarefas de Hoje* (Digite \"hoje\")\n" +
		"📋 *Minhas Tarefas* (Digite \"lista\")\n" +
		"👥 *Equipe* (Digite \"equipe\")\n" +
		"🎭 *Personalidade* (Digite \"personas\")\n\n" +
		"💡 Para criar, apenas diga: *\"Reunião amanhã às 10h\"* ou mande um áudio!"
}

func formatTranscript(text string) string {
	return fmt.Sprintf("📝 *Transcrição:* \"%s\"", text)
}

// formatCreated renders the confirmation block for tasks created from one
// message. reminders[i] is the lead time scheduled for tasks[i], or 0.
func formatCreated(tasks []*models.Task, categories []intent.Category, reminders []int, loc *time.Location) string {
	var b strings.Builder
	if len(tasks) == 1 {
		b.WriteString("✅ *Tarefa Agendada!*")
	} else {
		fmt.Fprintf(&b, "✅ *%d Tarefas Agendadas!*", len(tasks))
	}
	for i, t := range tasks {
		b.WriteString("\n\n📝 ")
		b.WriteString(t.Title)
		b.WriteString("\n📅 ")
		if t.DueAt != nil {
			b.WriteString(locale.FormatShort(*t.DueAt, loc))
		} else {
			b.WriteString("Sem data")
		}
		b.WriteString("\n🏷️ ")
		b.WriteString(categories[i].Label())
		if t.Recurring {
			fmt.Fprintf(&b, "\n🔁 %s", recurrenceLabel(intent.Recurrence(t.RecurrenceInterval)))
		}
		if reminders[i] > 0 {
			fmt.Fprintf(&b, "\n⏰ Lembrete: %dmin antes", reminders[i])
		}
	}
	return b.String()
}

// formatNeedsDate asks for the date of every undated title.
func formatNeedsDate(titles []string) string {
	var b strings.Builder
	b.WriteString("📅 *Faltou a data!* ")
	b.WriteString(msgNeedsDateQuestion)
	for _, t := range titles {
		b.WriteString("\n▫️ ")
		b.WriteString(t)
	}
	return b.String()
}

func recurrenceLabel(r intent.Recurrence) string {
	switch r {
	case intent.RecurrenceDaily:
		return "Diária"
	case intent.RecurrenceWeekly:
		return "Semanal"
	case intent.RecurrenceMonthly:
		return "Mensal"
	default:
		return "Recorrente"
	}
}

func formatToday(tasks []models.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return msgTodayEmpty
	}
	var b strings.Builder
	b.WriteString("📅 *Hoje:*")
	for _, t := range tasks {
		b.WriteString("\n▫️ ")
		b.WriteString(t.Title)
		if t.DueAt != nil {
			fmt.Fprintf(&b, " (%s)", locale.FormatClock(*t.DueAt, loc))
		}
	}
	return b.String()
}

func formatPending(tasks []models.Task, loc *time.Location) string {
	if len(tasks) == 0 {
		return msgNoPending
	}
	var b strings.Builder
	b.WriteString("📋 *Pendentes:*")
	for _, t := range tasks {
		when := "Sem data"
		if t.DueAt != nil {
			when = locale.FormatShort(*t.DueAt, loc)
		}
		fmt.Fprintf(&b, "\n▫️ %s (%s)", t.Title, when)
	}
	return b.String()
}

func formatTeam(users []models.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👥 *Equipe (%d)*\n", len(users))
	for _, u := range users {
		fmt.Fprintf(&b, "\n▫️ %s (%s)", u.Name, u.Handle)
	}
	b.WriteString("\n\n👇 *Comandos de Gestão:*\n" +
		"- \"add membro [Nome], [11999999999]\"\n" +
		"- \"rm membro [Nome ou Tel]\"")
	return b.String()
}

func formatPersonas(current string) string {
	var b strings.Builder
	b.WriteString("🎭 *Personalidades disponíveis:*\n")
	for _, p := range persona.All() {
		mark := ""
		if p.Key == current {
			mark = " ✔️"
		}
		fmt.Fprintf(&b, "\n%s *%s* (persona %s)%s", p.Emoji, p.Label, p.Key, mark)
	}
	return b.String()
}

func formatPersonaChanged(p persona.Persona) string {
	return fmt.Sprintf("%s Persona alterada para *%s*!", p.Emoji, p.Label)
}

func formatUnknownPersona(key string) string {
	return fmt.Sprintf("❌ Persona \"%s\" não existe. Opções: %s", key, strings.Join(persona.Keys(), ", "))
}

func formatSummaryOn(clock string) string {
	return fmt.Sprintf("🌅 Resumo diário ativado para as *%s*.", clock)
}

func formatTimezoneChanged(tz string) string {
	return fmt.Sprintf("🌎 Fuso horário atualizado para *%s*.", tz)
}

func formatDashboard(url string) string {
	return "🌐 Acesse o painel: " + url
}

func formatMemberAdded(name string) string {
	return fmt.Sprintf("✅ Membro *%s* adicionado à equipe!", name)
}

func formatMemberRemoved(name string) string {
	return fmt.Sprintf("🗑️ Membro *%s* removido.", name)
}

// formatImageSuggestion describes a staged image-derived task.
func formatImageSuggestion(ti intent.TaskIntent, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📸 *Encontrei um evento na imagem:*\n\n📝 ")
	b.WriteString(ti.Title)
	if ti.Due != nil {
		b.WriteString("\n📅 ")
		b.WriteString(locale.FormatShort(*ti.Due, loc))
	}
	if ti.Description != "" {
		b.WriteString("\nℹ️ ")
		b.WriteString(ti.Description)
	}
	b.WriteString("\n\n")
	b.WriteString(msgImageQuestion)
	return b.String()
}

// formatReminder renders a reminder notification.
func formatReminder(t models.Task, loc *time.Location) string {
	when := ""
	if t.DueAt != nil {
		when = locale.FormatShort(*t.DueAt, loc)
	}
	return fmt.Sprintf("⏰ *Lembrete:*\n\n📝 %s\n📅 %s", t.Title, when)
}

// formatSummary renders the digest of tomorrow's tasks.
func formatSummary(day time.Time, tasks []models.Task, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌅 *Resumo para Amanhã* (%s):\n", day.In(loc).Format("02/01/2006"))
	for _, t := range tasks {
		when := "---"
		if t.DueAt != nil {
			when = locale.FormatClock(*t.DueAt, loc)
		}
		fmt.Fprintf(&b, "\n▫️ %s (%s)", t.Title, when)
	}
	b.WriteString("\n\nPrepare-se! 💪")
	return b.String()
}

// truncate shortens s to at most n runes, adding "..." if truncated.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// ChunkText splits text into pieces of at most maxRunes runes so platforms
// with a message length cap can deliver it. It prefers breaking at a
// newline in the second half of each piece.
func ChunkText(text string, maxRunes int) []string {
	if maxRunes <= 0 {
		maxRunes = 2000
	}
	r := []rune(text)
	if len(r) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	for len(r) > 0 {
		if len(r) <= maxRunes {
			chunks = append(chunks, string(r))
			break
		}
		breakAt := -1
		for i := maxRunes - 1; i >= maxRunes/2; i-- {
			if r[i] == '\n' {
				breakAt = i
				break
			}
		}
		if breakAt >= 0 {
			chunks = append(chunks, string(r[:breakAt]))
			r = r[breakAt+1:]
		} else {
			chunks = append(chunks, string(r[:maxRunes]))
			r = r[maxRunes:]
		}
	}
	return chunks
}
