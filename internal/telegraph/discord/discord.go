// Package discord implements the telegraph Adapter for Discord direct
// messages using the Gateway WebSocket. Polls are rendered as message
// buttons and button clicks are reported as votes.
package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/zulandar/taskline/internal/telegraph"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for rate-limit retries.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff.
	maxBackoff = 2 * time.Minute
	// maxMessageRunes is Discord's content limit per message.
	maxMessageRunes = 2000
	// maxButtonsPerRow and maxRows bound a poll to 25 options.
	maxButtonsPerRow = 5
	maxRows          = 5
	// voteIDPrefix marks button custom IDs that carry a poll option.
	voteIDPrefix = "tl:"
	// queueSize buffers inbound events between the gateway and the daemon.
	queueSize = 100
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	Open() error
	Close() error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	AddHandler(handler interface{}) func()
}

// realSession wraps *discordgo.Session to implement the session interface.
type realSession struct {
	s *discordgo.Session
}

func (r *realSession) Open() error  { return r.s.Open() }
func (r *realSession) Close() error { return r.s.Close() }
func (r *realSession) UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return r.s.UserChannelCreate(recipientID, options...)
}
func (r *realSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	return r.s.ChannelMessageSendComplex(channelID, data, options...)
}
func (r *realSession) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	return r.s.InteractionRespond(interaction, resp, options...)
}
func (r *realSession) AddHandler(handler interface{}) func() {
	return r.s.AddHandler(handler)
}

// Adapter implements telegraph.Adapter for Discord DMs.
type Adapter struct {
	sess        session
	botToken    string
	httpClient  *http.Client
	logger      *zap.Logger
	mu          sync.Mutex
	connected   bool
	closed      bool
	botUserID   string
	dmChannels  map[string]string // user ID -> DM channel ID
	inbound     chan telegraph.InboundMessage
	votes       chan telegraph.VoteEvent
	removers    []func()
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// AdapterOpts holds parameters for creating a Discord Adapter.
type AdapterOpts struct {
	BotToken   string       // Discord bot token
	HTTPClient *http.Client // used to download attachments; defaults to http.DefaultClient
	Logger     *zap.Logger
	// For testing: inject a mock session instead of real Discord API.
	Session session
}

// New creates a Discord Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Session == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("discord: bot token is required")
	}

	a := &Adapter{
		sess:        opts.Session,
		botToken:    opts.BotToken,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		dmChannels:  make(map[string]string),
		inbound:     make(chan telegraph.InboundMessage, queueSize),
		votes:       make(chan telegraph.VoteEvent, queueSize),
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
	if a.httpClient == nil {
		a.httpClient = http.DefaultClient
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Connect establishes the Discord Gateway WebSocket connection.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("discord: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real session if not injected (production path).
	if a.sess == nil {
		dg, err := discordgo.New("Bot " + a.botToken)
		if err != nil {
			return fmt.Errorf("discord: create session: %w", err)
		}
		dg.Identify.Intents = discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
		a.sess = &realSession{s: dg}
	}

	a.removers = append(a.removers,
		a.sess.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			a.mu.Lock()
			a.botUserID = r.User.ID
			a.mu.Unlock()
			a.logger.Info("connected", zap.String("user", r.User.Username), zap.String("id", r.User.ID))
		}),
		// discordgo reconnects on its own; these are for observability.
		a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
			a.logger.Warn("gateway disconnected, discordgo will auto-reconnect")
		}),
		a.sess.AddHandler(func(_ *discordgo.Session, _ *discordgo.Resumed) {
			a.logger.Info("gateway session resumed")
		}),
	)

	if err := a.sess.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}

	a.connected = true
	return nil
}

// Listen registers the DM handler and returns the inbound message channel.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.removers = append(a.removers, a.sess.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		a.handleMessage(m)
	}))
	return a.inbound, nil
}

// Votes registers the button interaction handler and returns the vote channel.
func (a *Adapter) Votes(ctx context.Context) (<-chan telegraph.VoteEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, fmt.Errorf("discord: not connected")
	}
	a.removers = append(a.removers, a.sess.AddHandler(func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		a.handleInteraction(i)
	}))
	return a.votes, nil
}

// Send delivers text to the user's DM channel, split to fit Discord's limit.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	channelID, err := a.dmChannel(ctx, msg.Handle)
	if err != nil {
		return err
	}
	for _, chunk := range telegraph.ChunkText(msg.Text, maxMessageRunes) {
		data := &discordgo.MessageSend{Content: chunk}
		err := a.retryOnRateLimit(ctx, func() error {
			_, sendErr := a.sess.ChannelMessageSendComplex(channelID, data)
			return sendErr
		})
		if err != nil {
			return fmt.Errorf("discord: send message: %w", err)
		}
	}
	return nil
}

// SendPoll posts the question with one button per option.
func (a *Adapter) SendPoll(ctx context.Context, poll telegraph.Poll) error {
	if len(poll.Options) == 0 {
		return fmt.Errorf("discord: poll has no options")
	}
	if len(poll.Options) > maxButtonsPerRow*maxRows {
		return fmt.Errorf("discord: poll has %d options, max %d", len(poll.Options), maxButtonsPerRow*maxRows)
	}
	channelID, err := a.dmChannel(ctx, poll.Handle)
	if err != nil {
		return err
	}
	data := buildPoll(poll)
	err = a.retryOnRateLimit(ctx, func() error {
		_, sendErr := a.sess.ChannelMessageSendComplex(channelID, data)
		return sendErr
	})
	if err != nil {
		return fmt.Errorf("discord: send poll: %w", err)
	}
	return nil
}

// Close gracefully shuts down the adapter connection.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	for _, remove := range a.removers {
		remove()
	}
	a.removers = nil
	close(a.inbound)
	close(a.votes)
	if a.sess != nil {
		return a.sess.Close()
	}
	return nil
}

// BotUserID returns the bot's Discord user ID (available after Ready).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// SetBotUserID sets the bot user ID (used for self-message filtering).
func (a *Adapter) SetBotUserID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.botUserID = id
}

// dmChannel resolves (and caches) the DM channel for a user ID.
func (a *Adapter) dmChannel(ctx context.Context, userID string) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("discord: not connected")
	}
	if id, ok := a.dmChannels[userID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	if userID == "" {
		return "", fmt.Errorf("discord: no recipient")
	}
	var ch *discordgo.Channel
	err := a.retryOnRateLimit(ctx, func() error {
		var apiErr error
		ch, apiErr = a.sess.UserChannelCreate(userID)
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("discord: open dm with %s: %w", userID, err)
	}

	a.mu.Lock()
	a.dmChannels[userID] = ch.ID
	a.mu.Unlock()
	return ch.ID, nil
}

// handleMessage converts a Discord DM into an InboundMessage.
func (a *Adapter) handleMessage(m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	// Guild traffic is not ours; only DMs carry no guild ID.
	if m.GuildID != "" {
		return
	}

	a.mu.Lock()
	botID := a.botUserID
	// Remember the DM channel so replies skip a lookup.
	a.dmChannels[m.Author.ID] = m.ChannelID
	a.mu.Unlock()
	if m.Author.ID == botID {
		return
	}

	ts, _ := discordgo.SnowflakeTimestamp(m.ID)
	msg := telegraph.InboundMessage{
		Platform:  "discord",
		Handle:    m.Author.ID,
		UserName:  displayName(m.Author),
		Text:      m.Content,
		Timestamp: ts,
	}
	if len(m.Attachments) > 0 {
		att := m.Attachments[0]
		msg.MediaMIME = att.ContentType
		msg.Media = a.download(att.URL)
	}
	a.emitMessage(msg)
}

// handleInteraction converts a poll button click into a VoteEvent.
func (a *Adapter) handleInteraction(i *discordgo.InteractionCreate) {
	if i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return
	}
	data := i.MessageComponentData()
	option, ok := strings.CutPrefix(data.CustomID, voteIDPrefix)
	if !ok {
		return
	}
	u := i.User
	if u == nil && i.Member != nil {
		u = i.Member.User
	}
	if u == nil {
		return
	}

	// Acknowledge so the client does not show a failed interaction.
	err := a.sess.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		a.logger.Warn("acknowledge interaction", zap.Error(err))
	}
	a.emitVote(telegraph.VoteEvent{Platform: "discord", Handle: u.ID, Option: option})
}

func (a *Adapter) emitMessage(msg telegraph.InboundMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.inbound <- msg:
	default:
		a.logger.Warn("inbound queue full, dropping message", zap.String("handle", msg.Handle))
	}
}

func (a *Adapter) emitVote(v telegraph.VoteEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	select {
	case a.votes <- v:
	default:
		a.logger.Warn("vote queue full, dropping vote", zap.String("handle", v.Handle))
	}
}

// download returns a MediaFunc that fetches an attachment on demand.
func (a *Adapter) download(url string) telegraph.MediaFunc {
	return func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("discord: download attachment: %w", err)
		}
		resp, err := a.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("discord: download attachment: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("discord: download attachment: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
}

func displayName(u *discordgo.User) string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// buildPoll lays the options out as rows of buttons.
func buildPoll(poll telegraph.Poll) *discordgo.MessageSend {
	var rows []discordgo.MessageComponent
	var row discordgo.ActionsRow
	for _, opt := range poll.Options {
		row.Components = append(row.Components, discordgo.Button{
			Label:    opt,
			Style:    discordgo.PrimaryButton,
			CustomID: voteIDPrefix + opt,
		})
		if len(row.Components) == maxButtonsPerRow {
			rows = append(rows, row)
			row = discordgo.ActionsRow{}
		}
	}
	if len(row.Components) > 0 {
		rows = append(rows, row)
	}
	return &discordgo.MessageSend{Content: poll.Question, Components: rows}
}

// retryOnRateLimit calls fn and retries with exponential backoff on Discord
// rate limit errors. It respects context cancellation.
func (a *Adapter) retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var restErr *discordgo.RESTError
		if !errors.As(err, &restErr) || restErr.Response == nil || restErr.Response.StatusCode != http.StatusTooManyRequests {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.logger.Warn("rate limited, retrying",
			zap.Int("attempt", attempt+1), zap.Int("max", maxRetries), zap.Duration("wait", wait))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}
