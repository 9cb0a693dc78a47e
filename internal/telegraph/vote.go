package telegraph

import (
	"context"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/persona"
	"github.com/zulandar/taskline/internal/task"
	"go.uber.org/zap"
)

// voteHandler answers one poll option.
type voteHandler func(ctx context.Context, u *models.User) Response

// buildVoteTable maps every option label the bot can show to its handler.
func (c *Controller) buildVoteTable() map[string]voteHandler {
	ch := c.commands
	table := map[string]voteHandler{
		optToday: func(ctx context.Context, u *models.User) Response {
			return ch.cmdToday(ctx, u, "")
		},
		optPending: func(ctx context.Context, u *models.User) Response {
			return ch.cmdPending(ctx, u, "")
		},
		optTeam: func(ctx context.Context, u *models.User) Response {
			return ch.cmdTeam(ctx, u, "")
		},
		optCreateHelp: func(context.Context, *models.User) Response {
			return Response{Text: msgCreateHelp}
		},
		optPersonaMenu: func(_ context.Context, u *models.User) Response {
			return personaMenu(u.Persona)
		},
		optDashboard: func(ctx context.Context, u *models.User) Response {
			return ch.cmdDashboard(ctx, u, "")
		},
		optImageConfirm: c.confirmSuggestion,
		optImageDismiss: c.dismissSuggestion,
	}
	for _, p := range persona.All() {
		p := p
		table[p.PollLabel()] = func(ctx context.Context, u *models.User) Response {
			return ch.setPersona(ctx, u, p)
		}
	}
	return table
}

// confirmSuggestion creates the staged task, if it is still live.
func (c *Controller) confirmSuggestion(ctx context.Context, u *models.User) Response {
	a, st := c.pending.Take(u.ID)
	switch st {
	case StateNone:
		return Response{Text: msgSuggestionGone}
	case StateExpired:
		return Response{Text: msgSuggestionExpired}
	}

	t, err := task.CreateFromIntent(c.db.WithContext(ctx), a.Task, u.ID, a.Source)
	if err != nil {
		c.logger.Error("create task from suggestion", zap.String("user_id", u.ID), zap.Error(err))
		return Response{Text: msgProcessingFailure}
	}
	c.logger.Info("task created", zap.String("user_id", u.ID), zap.String("task_id", t.ID), zap.String("source", a.Source))

	loc := c.resolver.Location(u.Timezone)
	text := formatCreated([]*models.Task{t}, []intent.Category{a.Task.Category}, []int{0}, loc)
	c.history.Append(ctx, u.ID, intent.RoleAssistant, text)
	return Response{Text: text}
}

// dismissSuggestion discards the staged task.
func (c *Controller) dismissSuggestion(_ context.Context, u *models.User) Response {
	_, st := c.pending.Take(u.ID)
	switch st {
	case StateProposed:
		return Response{Text: msgSuggestionDropped}
	case StateExpired:
		return Response{Text: msgSuggestionExpired}
	default:
		return Response{Text: msgSuggestionGone}
	}
}
