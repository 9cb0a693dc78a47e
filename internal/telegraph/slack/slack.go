// Package slack implements the telegraph Adapter for Slack direct messages
// using Socket Mode. Polls are posted as Block Kit buttons.
package slack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"github.com/zulandar/taskline/internal/telegraph"
	"go.uber.org/zap"
)

const (
	// maxRetries is the max number of retries for rate-limited API calls.
	maxRetries = 3
	// baseBackoff is the initial backoff duration for reconnection.
	baseBackoff = 2 * time.Second
	// maxBackoff caps the exponential backoff for reconnection.
	maxBackoff = 2 * time.Minute
	// maxReconnectAttempts limits reconnection retries before giving up.
	maxReconnectAttempts = 10
	// maxMessageRunes keeps posts well under Slack's text limit.
	maxMessageRunes = 3000
	// maxPollOptions is the element limit of one actions block.
	maxPollOptions = 25
	// voteActionPrefix marks button action IDs that carry a poll option.
	voteActionPrefix = "tl_vote_"
	queueSize        = 100
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	AuthTest() (*slackapi.AuthTestResponse, error)
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
	OpenConversation(params *slackapi.OpenConversationParameters) (*slackapi.Channel, bool, bool, error)
	GetUserInfo(userID string) (*slackapi.User, error)
	GetFileContext(ctx context.Context, downloadURL string, writer io.Writer) error
}

// socketClient abstracts the Socket Mode client methods we use.
type socketClient interface {
	RunContext(ctx context.Context) error
	EventsChan() chan socketmode.Event
	Ack(req socketmode.Request, payload ...interface{})
}

// realSocketClient wraps *socketmode.Client to implement socketClient.
type realSocketClient struct {
	client *socketmode.Client
}

func (r *realSocketClient) RunContext(ctx context.Context) error { return r.client.RunContext(ctx) }
func (r *realSocketClient) EventsChan() chan socketmode.Event    { return r.client.Events }
func (r *realSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	r.client.Ack(req, payload...)
}

// Adapter implements telegraph.Adapter for Slack Socket Mode.
type Adapter struct {
	client       slackClient
	socket       socketClient
	logger       *zap.Logger
	botUserID    string
	appToken     string
	botToken     string
	mu           sync.Mutex
	connected    bool
	closed       bool
	dmChannels   map[string]string // user ID -> IM channel ID
	inbound      chan telegraph.InboundMessage
	votes        chan telegraph.VoteEvent
	startOnce    sync.Once
	cancelFunc   context.CancelFunc
	baseBackoff  time.Duration // reconnection base backoff (default: baseBackoff const)
	maxBackoff   time.Duration // reconnection max backoff (default: maxBackoff const)
	maxReconnect int           // max reconnection attempts (default: maxReconnectAttempts)
}

// AdapterOpts holds parameters for creating a Slack Adapter.
type AdapterOpts struct {
	AppToken string // xapp-... Slack app-level token for Socket Mode
	BotToken string // xoxb-... Slack bot token
	Logger   *zap.Logger
	// For testing: inject mock clients instead of real Slack API.
	Client slackClient
	Socket socketClient
}

// New creates a Slack Adapter.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Socket == nil && opts.AppToken == "" {
		return nil, fmt.Errorf("slack: app token is required for socket mode")
	}

	a := &Adapter{
		client:       opts.Client,
		socket:       opts.Socket,
		logger:       opts.Logger,
		appToken:     opts.AppToken,
		botToken:     opts.BotToken,
		dmChannels:   make(map[string]string),
		inbound:      make(chan telegraph.InboundMessage, queueSize),
		votes:        make(chan telegraph.VoteEvent, queueSize),
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
		maxReconnect: maxReconnectAttempts,
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a, nil
}

// Connect verifies the bot token and prepares the Socket Mode client.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("slack: adapter already closed")
	}
	if a.connected {
		return nil
	}

	// Create real clients if not injected (production path).
	if a.client == nil {
		api := slackapi.New(a.botToken, slackapi.OptionAppLevelToken(a.appToken))
		a.client = api
		a.socket = &realSocketClient{client: socketmode.New(api)}
	}

	// Get bot user ID for self-message filtering.
	auth, err := a.client.AuthTest()
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	a.botUserID = auth.UserID

	a.connected = true
	return nil
}

// Listen returns a channel of inbound messages. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	if err := a.start(ctx); err != nil {
		return nil, err
	}
	return a.inbound, nil
}

// Votes returns a channel of button selections. Must be called after Connect.
func (a *Adapter) Votes(ctx context.Context) (<-chan telegraph.VoteEvent, error) {
	if err := a.start(ctx); err != nil {
		return nil, err
	}
	return a.votes, nil
}

// start launches the Socket Mode loop and the event pump once.
func (a *Adapter) start(ctx context.Context) error {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return fmt.Errorf("slack: not connected")
	}
	a.mu.Unlock()

	a.startOnce.Do(func() {
		listenCtx, cancel := context.WithCancel(ctx)
		a.mu.Lock()
		a.cancelFunc = cancel
		a.mu.Unlock()

		go a.runWithReconnect(listenCtx)
		go a.pumpEvents(listenCtx)
	})
	return nil
}

// Send delivers text to the user's IM channel.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	channelID, err := a.imChannel(ctx, msg.Handle)
	if err != nil {
		return err
	}
	for _, chunk := range telegraph.ChunkText(msg.Text, maxMessageRunes) {
		err := retryOnRateLimit(ctx, func() error {
			_, _, postErr := a.client.PostMessage(channelID, slackapi.MsgOptionText(chunk, false))
			return postErr
		})
		if err != nil {
			return fmt.Errorf("slack: post message: %w", err)
		}
	}
	return nil
}

// SendPoll posts the question with one button per option.
func (a *Adapter) SendPoll(ctx context.Context, poll telegraph.Poll) error {
	if len(poll.Options) == 0 {
		return fmt.Errorf("slack: poll has no options")
	}
	if len(poll.Options) > maxPollOptions {
		return fmt.Errorf("slack: poll has %d options, max %d", len(poll.Options), maxPollOptions)
	}
	channelID, err := a.imChannel(ctx, poll.Handle)
	if err != nil {
		return err
	}
	options := buildPollOptions(poll)
	err = retryOnRateLimit(ctx, func() error {
		_, _, postErr := a.client.PostMessage(channelID, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post poll: %w", err)
	}
	return nil
}

// Close shuts down the adapter and closes the event channels.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	a.connected = false
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	close(a.inbound)
	close(a.votes)
	return nil
}

// BotUserID returns the bot's Slack user ID (available after Connect).
func (a *Adapter) BotUserID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.botUserID
}

// imChannel resolves (and caches) the IM channel for a user ID.
func (a *Adapter) imChannel(ctx context.Context, userID string) (string, error) {
	a.mu.Lock()
	if !a.connected {
		a.mu.Unlock()
		return "", fmt.Errorf("slack: not connected")
	}
	if id, ok := a.dmChannels[userID]; ok {
		a.mu.Unlock()
		return id, nil
	}
	a.mu.Unlock()

	if userID == "" {
		return "", fmt.Errorf("slack: no recipient")
	}
	var ch *slackapi.Channel
	err := retryOnRateLimit(ctx, func() error {
		var apiErr error
		ch, _, _, apiErr = a.client.OpenConversation(&slackapi.OpenConversationParameters{Users: []string{userID}})
		return apiErr
	})
	if err != nil {
		return "", fmt.Errorf("slack: open conversation with %s: %w", userID, err)
	}

	a.mu.Lock()
	a.dmChannels[userID] = ch.ID
	a.mu.Unlock()
	return ch.ID, nil
}

// runWithReconnect runs the Socket Mode client and retries with exponential
// backoff when it returns an error (e.g., reconnection failure).
func (a *Adapter) runWithReconnect(ctx context.Context) {
	for attempt := 0; attempt < a.maxReconnect; attempt++ {
		err := a.socket.RunContext(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}

		wait := time.Duration(math.Pow(2, float64(attempt))) * a.baseBackoff
		if wait > a.maxBackoff {
			wait = a.maxBackoff
		}
		a.logger.Warn("socket mode disconnected, reconnecting",
			zap.Int("attempt", attempt+1), zap.Int("max", a.maxReconnect),
			zap.Duration("wait", wait), zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
	a.logger.Error("socket mode exhausted reconnection attempts", zap.Int("attempts", a.maxReconnect))
}

// pumpEvents reads Socket Mode events and dispatches them.
func (a *Adapter) pumpEvents(ctx context.Context) {
	events := a.socket.EventsChan()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			a.handleSocketEvent(evt)
		}
	}
}

// handleSocketEvent processes a single Socket Mode event.
func (a *Adapter) handleSocketEvent(evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		if eventsAPIEvent.Type == slackevents.CallbackEvent {
			if ev, ok := eventsAPIEvent.InnerEvent.Data.(*slackevents.MessageEvent); ok {
				a.handleMessage(ev)
			}
		}

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slackapi.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			a.socket.Ack(*evt.Request)
		}
		a.handleInteraction(callback)

	case socketmode.EventTypeConnecting:
		a.logger.Debug("connecting to socket mode")

	case socketmode.EventTypeConnected:
		a.logger.Info("connected to socket mode")

	case socketmode.EventTypeConnectionError:
		a.logger.Warn("socket mode connection error", zap.Any("data", evt.Data))

	case socketmode.EventTypeDisconnect:
		a.logger.Info("server requested disconnect, will reconnect")
	}
}

// handleMessage converts a Slack IM message event to an InboundMessage.
func (a *Adapter) handleMessage(ev *slackevents.MessageEvent) {
	if ev.User == "" || ev.User == a.BotUserID() || ev.BotID != "" {
		return
	}
	// Edits, deletes and joins carry subtypes; uploads are still messages.
	if ev.SubType != "" && ev.SubType != "file_share" {
		return
	}
	if ev.ChannelType != "im" {
		return
	}

	a.mu.Lock()
	a.dmChannels[ev.User] = ev.Channel
	a.mu.Unlock()

	msg := telegraph.InboundMessage{
		Platform:  "slack",
		Handle:    ev.User,
		UserName:  a.resolveUserName(ev.User),
		Text:      ev.Text,
		Timestamp: parseSlackTimestamp(ev.TimeStamp),
	}
	if len(ev.Files) > 0 {
		f := ev.Files[0]
		msg.MediaMIME = f.Mimetype
		msg.Media = a.download(f.URLPrivateDownload)
	}
	a.emitMessage(msg)
}

// handleInteraction converts a poll button click into a VoteEvent.
func (a *Adapter) handleInteraction(cb slackapi.InteractionCallback) {
	if cb.Type != slackapi.InteractionTypeBlockActions || cb.User.ID == "" {
		return
	}
	for _, action := range cb.ActionCallback.BlockActions {
		if action == nil || !strings.HasPrefix(action.ActionID, voteActionPrefix) {
			continue
		}
		a.emitVote(telegraph.VoteEvent{Platform: "slack", Handle: cb.User.ID, Option: action.Value})
	}
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

// download returns a MediaFunc that fetches a private file with the bot token.
func (a *Adapter) download(url string) telegraph.MediaFunc {
	return func(ctx context.Context) ([]byte, error) {
		var buf bytes.Buffer
		if err := a.client.GetFileContext(ctx, url, &buf); err != nil {
			return nil, fmt.Errorf("slack: download file: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// resolveUserName looks up a user's display name. Falls back to user ID.
func (a *Adapter) resolveUserName(userID string) string {
	user, err := a.client.GetUserInfo(userID)
	if err != nil {
		return userID
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	return user.RealName
}

// buildPollOptions renders a poll as a section plus an actions block.
func buildPollOptions(poll telegraph.Poll) []slackapi.MsgOption {
	var buttons []slackapi.BlockElement
	for i, opt := range poll.Options {
		btn := slackapi.NewButtonBlockElement(
			voteActionPrefix+strconv.Itoa(i),
			opt,
			slackapi.NewTextBlockObject(slackapi.PlainTextType, opt, true, false),
		)
		buttons = append(buttons, btn)
	}
	question := slackapi.NewSectionBlock(
		slackapi.NewTextBlockObject(slackapi.MarkdownType, poll.Question, false, false), nil, nil)
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(poll.Question, false),
		slackapi.MsgOptionBlocks(question, slackapi.NewActionBlock("tl_poll", buttons...)),
	}
}

// retryOnRateLimit calls fn and retries with backoff on Slack rate limit errors.
// It respects context cancellation and the RetryAfter duration from Slack.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err // not a rate limit error, don't retry
		}

		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil // unreachable
}

// parseSlackTimestamp converts a Slack timestamp (e.g., "1234567890.123456")
// to a time.Time.
func parseSlackTimestamp(ts string) time.Time {
	parts := strings.SplitN(ts, ".", 2)
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
