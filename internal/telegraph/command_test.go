package telegraph

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/task"
	"github.com/zulandar/taskline/internal/user"
	"gorm.io/gorm"
)

func newTestCommandHandler(t *testing.T, db *gorm.DB, dashboard string) *CommandHandler {
	t.Helper()
	ch, err := NewCommandHandler(CommandHandlerOpts{
		DB:           db,
		Resolver:     locale.NewResolver(testTZ, nil),
		DashboardURL: dashboard,
		Now:          func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("new command handler: %v", err)
	}
	return ch
}

// --- NewCommandHandler tests ---

func TestNewCommandHandler_NilDB(t *testing.T) {
	_, err := NewCommandHandler(CommandHandlerOpts{Resolver: locale.NewResolver(testTZ, nil)})
	if err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestNewCommandHandler_NilResolver(t *testing.T) {
	_, err := NewCommandHandler(CommandHandlerOpts{DB: openTestDB(t)})
	if err == nil {
		t.Fatal("expected error for nil resolver")
	}
}

// --- lookup tests ---

func TestLookup(t *testing.T) {
	ch := newTestCommandHandler(t, openTestDB(t), "")
	tests := []struct {
		text     string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"menu", "menu", "", true},
		{"AJUDA", "menu", "", true},
		{"  hoje  ", "hoje", "", true},
		{"Minhas Tarefas", "lista", "", true},
		{"pendentes", "lista", "", true},
		{"time", "equipe", "", true},
		{"add membro João Silva, 5511988887777", "add membro", "João Silva, 5511988887777", true},
		{"Novo Membro Ana, 123", "add membro", "Ana, 123", true},
		{"rm membro Ana", "rm membro", "Ana", true},
		{"personas", "personas", "", true},
		{"persona Vader", "persona", "Vader", true},
		{"persona", "persona", "", true},
		{"resumo 20:00", "resumo", "20:00", true},
		{"fuso America/Manaus", "fuso", "America/Manaus", true},
		{"painel", "painel", "", true},

		{"hoje tenho reunião às 10h", "", "", false},
		{"menus", "", "", false},
		{"personalidade", "", "", false},
		{"resumos", "", "", false},
		{"reunião amanhã", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c, args, ok := ch.lookup(tt.text)
			var name string
			if ok {
				name = c.names[0]
			}
			if ok != tt.wantOK || name != tt.wantName || args != tt.wantArgs {
				t.Errorf("lookup(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.text, name, args, ok, tt.wantName, tt.wantArgs, tt.wantOK)
			}
		})
	}
}

// "personas" is listed before "persona" so the exact command wins.
func TestLookup_TableOrder(t *testing.T) {
	ch := newTestCommandHandler(t, openTestDB(t), "")
	if c, _, _ := ch.lookup("personas"); c.names[0] != "personas" {
		t.Errorf("personas resolved to %q", c.names[0])
	}
}

// --- Execute tests ---

func TestExecute_NotACommand(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	u := createTestUser(t, db, "5511900000001", "Ana")
	if _, ok := ch.Execute(context.Background(), u, "comprar pão amanhã"); ok {
		t.Error("free text treated as command")
	}
}

func TestExecute_Menu(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, ok := ch.Execute(context.Background(), u, "menu")
	if !ok {
		t.Fatal("menu not recognized")
	}
	if !strings.Contains(resp.Text, "Menu Inteligente") {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Poll == nil || len(resp.Poll.Options) != 6 || resp.Poll.Options[0] != optToday {
		t.Errorf("poll = %+v", resp.Poll)
	}
}

func TestExecute_TeamAndMembers(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	ctx := context.Background()
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := ch.Execute(ctx, u, "add membro João Silva, (11) 98888-7777")
	if !strings.Contains(resp.Text, "João Silva") {
		t.Fatalf("add = %q", resp.Text)
	}
	m, err := user.FindByHandle(db, "11988887777")
	if err != nil {
		t.Fatalf("member not stored: %v", err)
	}
	if m.Timezone != testTZ {
		t.Errorf("member timezone = %q, want inviter's", m.Timezone)
	}

	resp, _ = ch.Execute(ctx, u, "add membro Outro, 11988887777")
	if resp.Text != msgDuplicateMember {
		t.Errorf("duplicate = %q", resp.Text)
	}
	resp, _ = ch.Execute(ctx, u, "add membro Sem Virgula 119")
	if resp.Text != msgAddMemberUsage {
		t.Errorf("usage = %q", resp.Text)
	}
	resp, _ = ch.Execute(ctx, u, "add membro Curto, 12")
	if resp.Text != msgInvalidPhone {
		t.Errorf("invalid phone = %q", resp.Text)
	}

	resp, _ = ch.Execute(ctx, u, "equipe")
	if !strings.Contains(resp.Text, "Equipe (2)") || !strings.Contains(resp.Text, "João Silva") {
		t.Errorf("team = %q", resp.Text)
	}

	resp, _ = ch.Execute(ctx, u, "rm membro ninguém")
	if resp.Text != msgMemberNotFound {
		t.Errorf("rm unknown = %q", resp.Text)
	}
	resp, _ = ch.Execute(ctx, u, "rm membro joão")
	if !strings.Contains(resp.Text, "removido") {
		t.Errorf("rm = %q", resp.Text)
	}
	if _, err := user.FindByHandle(db, "11988887777"); err == nil {
		t.Error("member still present")
	}
}

func TestExecute_RemoveMemberWithTasks(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	u := createTestUser(t, db, "5511900000001", "Ana")
	m := createTestUser(t, db, "5511900000002", "Bia")
	if _, err := task.Create(db, task.CreateOpts{Title: "x", CreatorID: u.ID, AssigneeID: m.ID}); err != nil {
		t.Fatal(err)
	}

	resp, _ := ch.Execute(context.Background(), u, "rm membro 5511900000002")
	if resp.Text != msgMemberHasTasks {
		t.Errorf("rm = %q", resp.Text)
	}
}

func TestExecute_TodayAndPending(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	ctx := context.Background()
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := ch.Execute(ctx, u, "hoje")
	if resp.Text != msgTodayEmpty {
		t.Errorf("empty today = %q", resp.Text)
	}

	loc := mustLoc(t, testTZ)
	due := time.Date(2026, 10, 14, 18, 30, 0, 0, loc)
	later := time.Date(2026, 10, 20, 9, 0, 0, 0, loc)
	for _, o := range []task.CreateOpts{
		{Title: "Reunião", DueAt: &due, CreatorID: u.ID},
		{Title: "Viagem", DueAt: &later, CreatorID: u.ID},
		{Title: "Sem prazo", CreatorID: u.ID},
	} {
		if _, err := task.Create(db, o); err != nil {
			t.Fatal(err)
		}
	}

	resp, _ = ch.Execute(ctx, u, "hoje")
	if resp.Text != "📅 *Hoje:*\n▫️ Reunião (18:30)" {
		t.Errorf("today = %q", resp.Text)
	}

	resp, _ = ch.Execute(ctx, u, "lista")
	for _, want := range []string{"Reunião (14/10/2026 18:30)", "Viagem (20/10/2026 09:00)", "Sem prazo (Sem data)"} {
		if !strings.Contains(resp.Text, want) {
			t.Errorf("pending missing %q:\n%s", want, resp.Text)
		}
	}
}

func TestExecute_Persona(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	ctx := context.Background()
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := ch.Execute(ctx, u, "personas")
	if resp.Poll == nil || len(resp.Poll.Options) != 5 {
		t.Fatalf("personas poll = %+v", resp.Poll)
	}

	resp, _ = ch.Execute(ctx, u, "persona Elsa")
	if u.Persona != "elsa" {
		t.Errorf("in-memory persona = %q", u.Persona)
	}
	if got, _ := user.Get(db, u.ID); got.Persona != "elsa" {
		t.Errorf("stored persona = %q", got.Persona)
	}

	resp, _ = ch.Execute(ctx, u, "persona yoda")
	if !strings.Contains(resp.Text, "yoda") {
		t.Errorf("unknown persona = %q", resp.Text)
	}
	if got, _ := user.Get(db, u.ID); got.Persona != "elsa" {
		t.Errorf("unknown persona changed selection to %q", got.Persona)
	}

	resp, _ = ch.Execute(ctx, u, "persona")
	if resp.Poll == nil {
		t.Error("bare persona should show the menu")
	}
}

func TestExecute_Summary(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	ctx := context.Background()
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := ch.Execute(ctx, u, "resumo 7:30")
	if !strings.Contains(resp.Text, "07:30") {
		t.Errorf("summary on = %q", resp.Text)
	}
	got, _ := user.Get(db, u.ID)
	if got.DailySummaryTime == nil || *got.DailySummaryTime != "07:30" {
		t.Errorf("stored summary = %v", got.DailySummaryTime)
	}

	resp, _ = ch.Execute(ctx, u, "resumo 25:00")
	if resp.Text != msgSummaryUsage {
		t.Errorf("invalid = %q", resp.Text)
	}

	resp, _ = ch.Execute(ctx, u, "resumo off")
	if resp.Text != msgSummaryOff {
		t.Errorf("off = %q", resp.Text)
	}
	got, _ = user.Get(db, u.ID)
	if got.DailySummaryTime != nil {
		t.Errorf("summary still set: %v", *got.DailySummaryTime)
	}
}

func TestExecute_Timezone(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	ctx := context.Background()
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := ch.Execute(ctx, u, "fuso Europe/Lisbon")
	if !strings.Contains(resp.Text, "Europe/Lisbon") {
		t.Errorf("tz = %q", resp.Text)
	}
	if got, _ := user.Get(db, u.ID); got.Timezone != "Europe/Lisbon" {
		t.Errorf("stored tz = %q", got.Timezone)
	}

	for _, bad := range []string{"fuso Marte/Base", "fuso local", "fuso"} {
		if resp, _ := ch.Execute(ctx, u, bad); resp.Text != msgTimezoneUsage {
			t.Errorf("%q = %q", bad, resp.Text)
		}
	}
}

func TestExecute_Dashboard(t *testing.T) {
	db := openTestDB(t)
	u := createTestUser(t, db, "5511900000001", "Ana")

	resp, _ := newTestCommandHandler(t, db, "").Execute(context.Background(), u, "painel")
	if resp.Text != msgNoDashboard {
		t.Errorf("unset = %q", resp.Text)
	}
	resp, _ = newTestCommandHandler(t, db, "https://tl.example.com").Execute(context.Background(), u, "painel")
	if !strings.Contains(resp.Text, "https://tl.example.com") {
		t.Errorf("dashboard = %q", resp.Text)
	}
}

func TestExecute_ClosedDB(t *testing.T) {
	db := openTestDB(t)
	ch := newTestCommandHandler(t, db, "")
	u := &models.User{ID: "u1", Handle: "1", Timezone: testTZ}
	sqlDB, _ := db.DB()
	sqlDB.Close()

	resp, ok := ch.Execute(context.Background(), u, "hoje")
	if !ok || resp.Text != msgProcessingFailure {
		t.Errorf("closed db = (%q, %v)", resp.Text, ok)
	}
}
