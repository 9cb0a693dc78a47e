package telegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/persona"
	"github.com/zulandar/taskline/internal/task"
	"github.com/zulandar/taskline/internal/user"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Response is what a command or vote produces: optional text followed by an
// optional poll. The poll handle is filled in on delivery.
type Response struct {
	Text string
	Poll *Poll
}

// matchKind selects how a command name is compared with the message.
type matchKind int

const (
	matchExact  matchKind = iota // whole message equals a name
	matchPrefix                  // message starts with a name followed by a space, or equals it
)

// command is one row of the literal command table.
type command struct {
	names  []string
	match  matchKind
	handle func(ctx context.Context, u *models.User, args string) Response
}

// CommandHandler recognizes literal commands. Commands are evaluated in
// table order before any AI extraction and never reach the model.
type CommandHandler struct {
	db           *gorm.DB
	resolver     *locale.Resolver
	dashboardURL string
	logger       *zap.Logger
	now          func() time.Time
	table        []command
}

// CommandHandlerOpts holds parameters for creating a CommandHandler.
type CommandHandlerOpts struct {
	DB           *gorm.DB
	Resolver     *locale.Resolver
	DashboardURL string
	Logger       *zap.Logger
	Now          func() time.Time // defaults to time.Now
}

// NewCommandHandler creates a CommandHandler.
func NewCommandHandler(opts CommandHandlerOpts) (*CommandHandler, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("telegraph: command handler: db is required")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("telegraph: command handler: resolver is required")
	}
	ch := &CommandHandler{
		db:           opts.DB,
		resolver:     opts.Resolver,
		dashboardURL: opts.DashboardURL,
		logger:       opts.Logger,
		now:          opts.Now,
	}
	if ch.logger == nil {
		ch.logger = zap.NewNop()
	}
	if ch.now == nil {
		ch.now = time.Now
	}
	ch.table = []command{
		{names: []string{"menu", "ajuda"}, match: matchExact, handle: ch.cmdMenu},
		{names: []string{"equipe", "time"}, match: matchExact, handle: ch.cmdTeam},
		{names: []string{"add membro", "novo membro"}, match: matchPrefix, handle: ch.cmdAddMember},
		{names: []string{"rm membro", "remover membro"}, match: matchPrefix, handle: ch.cmdRemoveMember},
		{names: []string{"hoje"}, match: matchExact, handle: ch.cmdToday},
		{names: []string{"lista", "minhas tarefas", "pendentes"}, match: matchExact, handle: ch.cmdPending},
		{names: []string{"personas"}, match: matchExact, handle: ch.cmdPersonas},
		{names: []string{"persona"}, match: matchPrefix, handle: ch.cmdPersona},
		{names: []string{"resumo"}, match: matchPrefix, handle: ch.cmdSummary},
		{names: []string{"fuso"}, match: matchPrefix, handle: ch.cmdTimezone},
		{names: []string{"painel"}, match: matchExact, handle: ch.cmdDashboard},
	}
	return ch, nil
}

// lookup finds the first command matching text and returns it with its
// argument string (original case preserved).
func (ch *CommandHandler) lookup(text string) (cmd command, args string, ok bool) {
	text = strings.TrimSpace(text)
	for _, c := range ch.table {
		for _, n := range c.names {
			if a, hit := matchCommand(c.match, text, n); hit {
				return c, a, true
			}
		}
	}
	return command{}, "", false
}

// Execute runs the command matching text. ok is false when text is not a
// command and must go to extraction instead.
func (ch *CommandHandler) Execute(ctx context.Context, u *models.User, text string) (Response, bool) {
	c, args, ok := ch.lookup(text)
	if !ok {
		return Response{}, false
	}
	ch.logger.Debug("command", zap.String("command", c.names[0]), zap.String("user_id", u.ID))
	return c.handle(ctx, u, args), true
}

func matchCommand(kind matchKind, text, name string) (string, bool) {
	switch kind {
	case matchExact:
		return "", strings.EqualFold(text, name)
	case matchPrefix:
		if len(text) < len(name) || !strings.EqualFold(text[:len(name)], name) {
			return "", false
		}
		rest := text[len(name):]
		if rest != "" && rest[0] != ' ' {
			return "", false
		}
		return strings.TrimSpace(rest), true
	}
	return "", false
}

func (ch *CommandHandler) location(u *models.User) *time.Location {
	return ch.resolver.Location(u.Timezone)
}

func (ch *CommandHandler) cmdMenu(_ context.Context, _ *models.User, _ string) Response {
	return menuResponse()
}

func menuResponse() Response {
	return Response{
		Text: formatMenu(),
		Poll: &Poll{Question: msgMenuQuestion, Options: menuOptions},
	}
}

func (ch *CommandHandler) cmdTeam(ctx context.Context, _ *models.User, _ string) Response {
	users, err := user.List(ch.db.WithContext(ctx))
	if err != nil {
		ch.logger.Error("list team", zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	return Response{Text: formatTeam(users)}
}

func (ch *CommandHandler) cmdAddMember(ctx context.Context, u *models.User, args string) Response {
	i := strings.LastIndexByte(args, ',')
	if i < 0 {
		return Response{Text: msgAddMemberUsage}
	}
	name := strings.TrimSpace(args[:i])
	phone := strings.TrimSpace(args[i+1:])
	if name == "" || phone == "" {
		return Response{Text: msgAddMemberUsage}
	}

	m, err := user.AddMember(ch.db.WithContext(ctx), name, phone, u.Timezone)
	switch {
	case errors.Is(err, user.ErrInvalidPhone):
		return Response{Text: msgInvalidPhone}
	case errors.Is(err, user.ErrDuplicateHandle):
		return Response{Text: msgDuplicateMember}
	case err != nil:
		ch.logger.Error("add member", zap.String("by", u.ID), zap.Error(err))
		return Response{Text: msgDuplicateMember}
	}
	ch.logger.Info("member added", zap.String("by", u.ID), zap.String("member_id", m.ID))
	return Response{Text: formatMemberAdded(m.Name)}
}

func (ch *CommandHandler) cmdRemoveMember(ctx context.Context, u *models.User, args string) Response {
	db := ch.db.WithContext(ctx)
	m, err := user.FindMember(db, args)
	if err != nil {
		if !errors.Is(err, user.ErrNotFound) {
			ch.logger.Error("find member", zap.String("term", args), zap.Error(err))
		}
		return Response{Text: msgMemberNotFound}
	}
	if err := user.Remove(db, m.ID); err != nil {
		if !errors.Is(err, user.ErrHasTasks) {
			ch.logger.Error("remove member", zap.String("member_id", m.ID), zap.Error(err))
		}
		return Response{Text: msgMemberHasTasks}
	}
	ch.logger.Info("member removed", zap.String("by", u.ID), zap.String("member_id", m.ID))
	return Response{Text: formatMemberRemoved(m.Name)}
}

func (ch *CommandHandler) cmdToday(ctx context.Context, u *models.User, _ string) Response {
	loc := ch.location(u)
	start, end := locale.DayBounds(ch.now(), loc, 0)
	tasks, err := task.DueBetween(ch.db.WithContext(ctx), u.ID, start, end)
	if err != nil {
		ch.logger.Error("tasks due today", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	return Response{Text: formatToday(tasks, loc)}
}

func (ch *CommandHandler) cmdPending(ctx context.Context, u *models.User, _ string) Response {
	tasks, err := task.Open(ch.db.WithContext(ctx), u.ID)
	if err != nil {
		ch.logger.Error("open tasks", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	return Response{Text: formatPending(tasks, ch.location(u))}
}

func (ch *CommandHandler) cmdPersonas(_ context.Context, u *models.User, _ string) Response {
	return personaMenu(u.Persona)
}

func personaMenu(current string) Response {
	all := persona.All()
	opts := make([]string, len(all))
	for i, p := range all {
		opts[i] = p.PollLabel()
	}
	return Response{
		Text: formatPersonas(persona.Lookup(current).Key),
		Poll: &Poll{Question: msgPersonaQuestion, Options: opts},
	}
}

func (ch *CommandHandler) cmdPersona(ctx context.Context, u *models.User, args string) Response {
	if args == "" {
		return personaMenu(u.Persona)
	}
	key := strings.ToLower(args)
	p, ok := persona.ByLabel(args)
	if !ok {
		if !persona.Valid(key) {
			return Response{Text: formatUnknownPersona(args)}
		}
		p = persona.Lookup(key)
	}
	return ch.setPersona(ctx, u, p)
}

func (ch *CommandHandler) setPersona(ctx context.Context, u *models.User, p persona.Persona) Response {
	if err := user.SetPersona(ch.db.WithContext(ctx), u.ID, p.Key); err != nil {
		ch.logger.Error("set persona", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	u.Persona = p.Key
	return Response{Text: formatPersonaChanged(p)}
}

func (ch *CommandHandler) cmdSummary(ctx context.Context, u *models.User, args string) Response {
	db := ch.db.WithContext(ctx)
	switch strings.ToLower(args) {
	case "":
		return Response{Text: msgSummaryUsage}
	case "off", "desligar", "desativar":
		if err := user.SetSummaryTime(db, u.ID, nil); err != nil {
			ch.logger.Error("disable summary", zap.String("user_id", u.ID), zap.Error(err))
			return Response{Text: msgProcessingFailure}
		}
		u.DailySummaryTime = nil
		return Response{Text: msgSummaryOff}
	}

	clock, err := locale.ParseClock(args)
	if err != nil {
		return Response{Text: msgSummaryUsage}
	}
	if err := user.SetSummaryTime(db, u.ID, &clock); err != nil {
		ch.logger.Error("set summary time", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	u.DailySummaryTime = &clock
	return Response{Text: formatSummaryOn(clock)}
}

func (ch *CommandHandler) cmdTimezone(ctx context.Context, u *models.User, args string) Response {
	if args == "" || strings.EqualFold(args, "local") {
		return Response{Text: msgTimezoneUsage}
	}
	if _, err := time.LoadLocation(args); err != nil {
		return Response{Text: msgTimezoneUsage}
	}
	if err := user.SetTimezone(ch.db.WithContext(ctx), u.ID, args); err != nil {
		ch.logger.Error("set timezone", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	u.Timezone = args
	return Response{Text: formatTimezoneChanged(args)}
}

func (ch *CommandHandler) cmdDashboard(_ context.Context, _ *models.User, _ string) Response {
	if ch.dashboardURL == "" {
		return Response{Text: msgNoDashboard}
	}
	return Response{Text: formatDashboard(ch.dashboardURL)}
}
