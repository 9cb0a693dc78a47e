package telegraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/taskline/internal/intent"
	"github.com/zulandar/taskline/internal/locale"
	"github.com/zulandar/taskline/internal/media"
	"github.com/zulandar/taskline/internal/models"
	"github.com/zulandar/taskline/internal/persona"
	"github.com/zulandar/taskline/internal/task"
	"github.com/zulandar/taskline/internal/user"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Extractor turns a prompt and conversation history into task intents.
type Extractor interface {
	Extract(ctx context.Context, in intent.PromptInput, history []intent.Turn) (intent.Result, error)
}

// AudioTranscriber converts a voice note into text.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// ImageAnalyzer decides whether an image shows an event.
type ImageAnalyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, tc locale.Temporal) (media.ImageAnalysis, error)
}

// greetings end first-contact processing after the welcome.
var greetings = map[string]bool{
	"oi": true, "olá": true, "ola": true, "start": true, "menu": true,
	"bom dia": true, "boa tarde": true, "boa noite": true,
}

// Controller runs the per-message dialogue pipeline. It holds no
// conversation state of its own: history is persisted and the only
// in-memory state is the pending suggestion slot.
type Controller struct {
	db            *gorm.DB
	adapter       Adapter
	commands      *CommandHandler
	history       *ConversationStore
	pending       *PendingStore
	extractor     Extractor
	audio         AudioTranscriber
	image         ImageAnalyzer
	resolver      *locale.Resolver
	logger        *zap.Logger
	now           func() time.Time
	menuAfterChat bool
	pruneKeep     int
	votes         map[string]voteHandler
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	DB        *gorm.DB
	Adapter   Adapter
	Commands  *CommandHandler
	History   *ConversationStore
	Pending   *PendingStore
	Extractor Extractor
	Audio     AudioTranscriber // optional; voice notes are declined without it
	Image     ImageAnalyzer    // optional; images are declined without it
	Resolver  *locale.Resolver
	Logger    *zap.Logger
	Now       func() time.Time // defaults to time.Now

	MenuAfterChat bool // send the standing menu after conversational replies
	PruneKeep     int  // history turns kept per user; 0 disables pruning
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	switch {
	case opts.DB == nil:
		return nil, fmt.Errorf("telegraph: controller: db is required")
	case opts.Adapter == nil:
		return nil, fmt.Errorf("telegraph: controller: adapter is required")
	case opts.Commands == nil:
		return nil, fmt.Errorf("telegraph: controller: command handler is required")
	case opts.History == nil:
		return nil, fmt.Errorf("telegraph: controller: history store is required")
	case opts.Pending == nil:
		return nil, fmt.Errorf("telegraph: controller: pending store is required")
	case opts.Extractor == nil:
		return nil, fmt.Errorf("telegraph: controller: extractor is required")
	case opts.Resolver == nil:
		return nil, fmt.Errorf("telegraph: controller: resolver is required")
	}
	c := &Controller{
		db:            opts.DB,
		adapter:       opts.Adapter,
		commands:      opts.Commands,
		history:       opts.History,
		pending:       opts.Pending,
		extractor:     opts.Extractor,
		audio:         opts.Audio,
		image:         opts.Image,
		resolver:      opts.Resolver,
		logger:        opts.Logger,
		now:           opts.Now,
		menuAfterChat: opts.MenuAfterChat,
		pruneKeep:     opts.PruneKeep,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.votes = c.buildVoteTable()
	return c, nil
}

// HandleMessage processes one inbound message end to end:
//  1. Resolve or register the sender (welcome + menu on first contact)
//  2. Media: audio → transcript → text path; image → staged suggestion
//  3. Literal command → command handler, no extraction
//  4. Append to history, extract intents with the full recent window
//  5. No tasks → conversational reply
//  6. Tasks → create dated ones, ask for missing dates
func (c *Controller) HandleMessage(ctx context.Context, msg InboundMessage) {
	handle := user.NormalizeHandle(msg.Handle)
	if handle == "" {
		return
	}
	text := strings.TrimSpace(msg.Text)
	log := c.logger.With(zap.String("platform", msg.Platform), zap.String("handle", handle))
	log.Debug("inbound", zap.String("text", truncate(text, 80)), zap.Bool("media", msg.HasMedia()))

	name := strings.TrimSpace(msg.UserName)
	if name == "" {
		name = user.DefaultName
	}
	u, created, err := user.FindOrCreate(c.db.WithContext(ctx), handle, name, c.resolver.Default().String())
	if err != nil {
		log.Error("resolve user", zap.Error(err))
		c.send(ctx, handle, msgProcessingFailure)
		return
	}
	log = log.With(zap.String("user_id", u.ID))

	if created {
		log.Info("user registered", zap.String("name", u.Name))
		c.send(ctx, u.Handle, formatWelcome(u.Name))
		c.deliver(ctx, u.Handle, menuResponse())
		if !msg.HasMedia() && isGreeting(text) {
			return
		}
	}

	source := task.SourceChat
	if msg.HasMedia() {
		switch media.Kind(msg.MediaMIME) {
		case media.KindAudio:
			transcript, ok := c.transcribe(ctx, log, msg)
			if !ok {
				c.send(ctx, u.Handle, msgAudioFailure)
				return
			}
			c.send(ctx, u.Handle, formatTranscript(transcript))
			text = transcript
			source = task.SourceAudio
		case media.KindImage:
			c.handleImage(ctx, log, u, msg)
			return
		default:
			if text == "" {
				c.send(ctx, u.Handle, msgUnsupportedMedia)
				return
			}
		}
	}
	if text == "" {
		return
	}

	if resp, ok := c.commands.Execute(ctx, u, text); ok {
		c.deliver(ctx, u.Handle, resp)
		return
	}

	c.converse(ctx, log, u, text, source)
}

// converse runs extraction against the persisted history and applies the
// result.
func (c *Controller) converse(ctx context.Context, log *zap.Logger, u *models.User, text, source string) {
	c.history.Append(ctx, u.ID, intent.RoleUser, text)
	turns, err := c.history.Recent(ctx, u.ID, 0)
	if err != nil || len(turns) == 0 {
		if err != nil {
			log.Warn("load history, using current message only", zap.Error(err))
		}
		turns = []intent.Turn{{Role: intent.RoleUser, Content: text}}
	}

	in := intent.PromptInput{
		Persona:  persona.Lookup(u.Persona),
		Temporal: c.resolver.Context(c.now(), u.Timezone),
		UserName: u.Name,
	}
	res, err := c.extractor.Extract(ctx, in, turns)
	if err != nil {
		log.Error("extract intents", zap.Error(err))
		c.send(ctx, u.Handle, msgProcessingFailure)
		return
	}

	var sent []string
	if len(res.Tasks) == 0 {
		reply := strings.TrimSpace(res.Reply)
		if reply == "" {
			reply = msgFallbackGreeting
		}
		c.send(ctx, u.Handle, reply)
		sent = append(sent, reply)
		if c.menuAfterChat {
			c.deliver(ctx, u.Handle, Response{Poll: &Poll{Question: msgMenuQuestion, Options: menuOptions}})
		}
	} else {
		sent = c.applyIntents(ctx, log, u, res.Tasks, in.Temporal.Location, source)
	}

	if len(sent) > 0 {
		c.history.Append(ctx, u.ID, intent.RoleAssistant, strings.Join(sent, "\n\n"))
	}
	c.prune(ctx, log, u.ID)
}

// applyIntents creates every dated intent independently and asks for the
// date of the rest. It returns the texts that were sent.
func (c *Controller) applyIntents(ctx context.Context, log *zap.Logger, u *models.User, intents []intent.TaskIntent, loc *time.Location, source string) []string {
	var (
		created    []*models.Task
		categories []intent.Category
		reminders  []int
		undated    []string
		failed     int
	)
	db := c.db.WithContext(ctx)
	for _, ti := range intents {
		if ti.DateMissing || ti.Due == nil {
			undated = append(undated, ti.Title)
			continue
		}
		t, err := task.CreateFromIntent(db, ti, u.ID, source)
		if err != nil {
			failed++
			log.Error("create task", zap.String("title", ti.Title), zap.Error(err))
			continue
		}

		lead := 0
		if ti.ReminderOffsetMinutes != nil {
			r, err := task.ScheduleReminder(db, t, *ti.ReminderOffsetMinutes)
			switch {
			case err != nil:
				log.Error("schedule reminder", zap.String("task_id", t.ID), zap.Error(err))
			case r != nil:
				lead = *ti.ReminderOffsetMinutes
			}
		}
		log.Info("task created", zap.String("task_id", t.ID), zap.String("source", source), zap.Int("reminder_min", lead))
		created = append(created, t)
		categories = append(categories, ti.Category)
		reminders = append(reminders, lead)
	}

	var sent []string
	if len(created) > 0 {
		msg := formatCreated(created, categories, reminders, loc)
		c.send(ctx, u.Handle, msg)
		sent = append(sent, msg)
	}
	if len(undated) > 0 {
		msg := formatNeedsDate(undated)
		c.send(ctx, u.Handle, msg)
		sent = append(sent, msg)
	}
	if len(sent) == 0 && failed > 0 {
		c.send(ctx, u.Handle, msgProcessingFailure)
	}
	return sent
}

// transcribe downloads and transcribes a voice note.
func (c *Controller) transcribe(ctx context.Context, log *zap.Logger, msg InboundMessage) (string, bool) {
	if c.audio == nil {
		log.Warn("voice note received but no transcriber configured")
		return "", false
	}
	data, err := msg.Media(ctx)
	if err != nil {
		log.Error("download audio", zap.Error(err))
		return "", false
	}
	text, err := c.audio.Transcribe(ctx, data, msg.MediaMIME)
	if err != nil {
		log.Error("transcribe audio", zap.Error(err))
		return "", false
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

// handleImage analyzes an image and, when it shows an event, stages it for
// confirmation instead of creating a task.
func (c *Controller) handleImage(ctx context.Context, log *zap.Logger, u *models.User, msg InboundMessage) {
	if c.image == nil {
		log.Warn("image received but no vision provider configured")
		c.send(ctx, u.Handle, msgImageFailure)
		return
	}
	data, err := msg.Media(ctx)
	if err != nil {
		log.Error("download image", zap.Error(err))
		c.send(ctx, u.Handle, msgImageFailure)
		return
	}
	tc := c.resolver.Context(c.now(), u.Timezone)
	a, err := c.image.Analyze(ctx, data, msg.MediaMIME, tc)
	if err != nil {
		log.Error("analyze image", zap.Error(err))
		c.send(ctx, u.Handle, msgImageFailure)
		return
	}

	if !a.IsEvent {
		reply := strings.TrimSpace(a.Reply)
		if reply == "" {
			reply = msgImageNoEvent
		}
		c.send(ctx, u.Handle, reply)
		return
	}

	ti := intent.TaskIntent{
		Title:       a.Title,
		Description: a.Description,
		Priority:    intent.PriorityMedium,
		Category:    intent.CategoryGeneral,
	}
	due, ok := a.Due(tc.Location)
	if !ok {
		// Without a date the suggestion cannot be confirmed; ask in the
		// conversation so the next text turn can fuse it.
		prompt := formatNeedsDate([]string{a.Title})
		c.send(ctx, u.Handle, prompt)
		c.history.Append(ctx, u.ID, intent.RoleAssistant, prompt)
		return
	}
	ti.Due = &due

	if replaced := c.pending.Propose(u.ID, PendingAction{Task: ti, Source: task.SourceImage}); replaced {
		log.Info("pending suggestion replaced")
	}
	c.deliver(ctx, u.Handle, Response{Poll: &Poll{
		Question: formatImageSuggestion(ti, tc.Location),
		Options:  []string{optImageConfirm, optImageDismiss},
	}})
}

// HandleVote resolves the voter and dispatches the selected option. Votes
// never reach the extraction model and never register new users.
func (c *Controller) HandleVote(ctx context.Context, v VoteEvent) {
	handle := user.NormalizeHandle(v.Handle)
	log := c.logger.With(zap.String("platform", v.Platform), zap.String("handle", handle))

	u, err := user.FindByHandle(c.db.WithContext(ctx), handle)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			log.Debug("vote from unknown handle ignored")
		} else {
			log.Error("resolve voter", zap.Error(err))
		}
		return
	}

	h, ok := c.votes[strings.TrimSpace(v.Option)]
	if !ok {
		log.Debug("unknown vote option", zap.String("option", v.Option))
		return
	}
	c.deliver(ctx, u.Handle, h(ctx, u))
}

func (c *Controller) prune(ctx context.Context, log *zap.Logger, userID string) {
	if c.pruneKeep <= 0 {
		return
	}
	if n, err := c.history.Prune(ctx, userID, c.pruneKeep); err != nil {
		log.Warn("prune history", zap.Error(err))
	} else if n > 0 {
		log.Debug("history pruned", zap.Int64("turns", n))
	}
}

// send delivers text. Failures are logged and not retried.
func (c *Controller) send(ctx context.Context, handle, text string) {
	if err := c.adapter.Send(ctx, OutboundMessage{Handle: handle, Text: text}); err != nil {
		c.logger.Warn("send message", zap.String("handle", handle), zap.Error(err))
	}
}

// deliver sends a Response: text first, then the poll.
func (c *Controller) deliver(ctx context.Context, handle string, r Response) {
	if r.Text != "" {
		c.send(ctx, handle, r.Text)
	}
	if r.Poll != nil {
		p := *r.Poll
		p.Handle = handle
		if err := c.adapter.SendPoll(ctx, p); err != nil {
			c.logger.Warn("send poll", zap.String("handle", handle), zap.Error(err))
		}
	}
}

// isGreeting reports whether text is only a greeting keyword.
func isGreeting(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, "!.,?😀🙂👋 ")
	return greetings[t]
}
