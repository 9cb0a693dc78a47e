// Package whatsapp implements the telegraph Adapter for WhatsApp as a linked
// multi-device client. The device is paired once by scanning a QR code and
// its session lives in a local sqlite file. Polls are native WhatsApp polls
// and their encrypted votes are reported as VoteEvents.
package whatsapp

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mdp/qrterminal/v3"
	"github.com/zulandar/taskline/internal/telegraph"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

const (
	defaultSessionPath = "whatsapp-session.db"
	defaultListenAddr  = ":4000"
	// ListenOff disables the status server.
	ListenOff = "off"
	// maxTextRunes keeps each text message comfortably inside the client
	// display limit.
	maxTextRunes = 4096
	// maxPollOptions is the WhatsApp poll option limit.
	maxPollOptions = 12
	// maxTrackedPolls bounds how many sent polls can still receive votes.
	maxTrackedPolls = 256
	queueSize       = 100
	shutdownTimeout = 5 * time.Second
)

// Adapter implements telegraph.Adapter for WhatsApp.
type Adapter struct {
	sessionPath string
	listenAddr  string
	qrWriter    io.Writer
	logger      *zap.Logger
	router      *gin.Engine
	ctx         context.Context // lives until Close; scopes QR watching
	cancel      context.CancelFunc

	mu        sync.Mutex
	client    client
	handled   bool // event handler registered with client
	connected bool
	closed    bool
	ready     bool   // socket logged in
	qrCode    string // latest pairing code, empty once paired
	srv       *http.Server
	addr      net.Addr
	polls     map[string][]string // poll message ID -> option labels
	pollOrder []string
	inbound   chan telegraph.InboundMessage
	votes     chan telegraph.VoteEvent
}

// AdapterOpts holds parameters for creating a WhatsApp Adapter.
type AdapterOpts struct {
	SessionPath string    // device store file, defaults to whatsapp-session.db
	ListenAddr  string    // status server address, defaults to :4000; "off" disables
	QRWriter    io.Writer // pairing QR codes are drawn here when set
	Logger      *zap.Logger
	// For testing: inject a mock client instead of a real device session.
	Client client
}

// New creates a WhatsApp Adapter. The device store is opened on Connect.
func New(opts AdapterOpts) (*Adapter, error) {
	if opts.SessionPath == "" {
		opts.SessionPath = defaultSessionPath
	}
	if opts.ListenAddr == "" {
		opts.ListenAddr = defaultListenAddr
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Adapter{
		sessionPath: opts.SessionPath,
		listenAddr:  opts.ListenAddr,
		qrWriter:    opts.QRWriter,
		logger:      opts.Logger,
		ctx:         ctx,
		cancel:      cancel,
		client:      opts.Client,
		polls:       make(map[string][]string),
		inbound:     make(chan telegraph.InboundMessage, queueSize),
		votes:       make(chan telegraph.VoteEvent, queueSize),
	}
	a.router = a.newRouter()
	return a, nil
}

// Handler exposes the status routes, for mounting or testing.
func (a *Adapter) Handler() http.Handler {
	return a.router
}

// Connect opens the device session, starts pairing if the device is new,
// and serves the status routes.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return fmt.Errorf("whatsapp: adapter already closed")
	}
	if a.connected {
		return nil
	}

	if a.client == nil {
		c, err := newRealClient(ctx, a.sessionPath, a.logger)
		if err != nil {
			return err
		}
		a.client = c
	}
	if !a.handled {
		a.client.AddHandler(a.handleEvent)
		a.handled = true
	}
	if err := a.dial(a.client); err != nil {
		return err
	}

	if a.listenAddr != ListenOff {
		if err := a.serveStatus(ctx); err != nil {
			a.client.Disconnect()
			return err
		}
	}
	a.connected = true
	return nil
}

// dial connects the socket, requesting a QR channel first when the device
// has not been paired.
func (a *Adapter) dial(c client) error {
	if !c.Paired() {
		qr, err := c.QRChannel(a.ctx)
		if err != nil {
			return fmt.Errorf("whatsapp: qr channel: %w", err)
		}
		go a.watchQR(qr)
	}
	if err := c.Connect(); err != nil {
		return fmt.Errorf("whatsapp: connect: %w", err)
	}
	return nil
}

// restart drops and re-establishes the socket.
func (a *Adapter) restart() error {
	a.mu.Lock()
	c, ok := a.client, a.connected
	a.ready = false
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("whatsapp: not connected")
	}
	a.logger.Info("restarting whatsapp client")
	c.Disconnect()
	return a.dial(c)
}

func (a *Adapter) serveStatus(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", a.listenAddr)
	if err != nil {
		return fmt.Errorf("whatsapp: listen %s: %w", a.listenAddr, err)
	}
	a.srv = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.addr = ln.Addr()
	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status server stopped", zap.Error(err))
		}
	}(a.srv)
	a.logger.Info("status server listening", zap.String("addr", a.addr.String()))
	return nil
}

// watchQR publishes pairing codes until the device pairs or the channel
// closes.
func (a *Adapter) watchQR(qr <-chan whatsmeow.QRChannelItem) {
	for item := range qr {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			a.mu.Lock()
			a.qrCode = item.Code
			a.mu.Unlock()
			a.logger.Info("scan the QR code to pair", zap.Duration("valid_for", item.Timeout))
			if a.qrWriter != nil {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, a.qrWriter)
			}
		case whatsmeow.QRChannelSuccess.Event:
			a.mu.Lock()
			a.qrCode = ""
			a.mu.Unlock()
			a.logger.Info("device paired")
		default:
			a.mu.Lock()
			a.qrCode = ""
			a.mu.Unlock()
			a.logger.Warn("pairing ended", zap.String("event", item.Event), zap.Error(item.Error))
		}
	}
}

// Addr reports the bound status server address (available after Connect).
func (a *Adapter) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.addr == nil {
		return ""
	}
	return a.addr.String()
}

// Listen returns the inbound message channel. Must be called after Connect.
func (a *Adapter) Listen(ctx context.Context) (<-chan telegraph.InboundMessage, error) {
	if !a.isConnected() {
		return nil, fmt.Errorf("whatsapp: not connected")
	}
	return a.inbound, nil
}

// Votes returns the poll selection channel. Must be called after Connect.
func (a *Adapter) Votes(ctx context.Context) (<-chan telegraph.VoteEvent, error) {
	if !a.isConnected() {
		return nil, fmt.Errorf("whatsapp: not connected")
	}
	return a.votes, nil
}

// Send delivers text, split into chunks of maxTextRunes.
func (a *Adapter) Send(ctx context.Context, msg telegraph.OutboundMessage) error {
	c, to, err := a.target(msg.Handle)
	if err != nil {
		return err
	}
	for _, chunk := range telegraph.ChunkText(msg.Text, maxTextRunes) {
		if _, err := c.SendText(ctx, to, chunk); err != nil {
			return fmt.Errorf("whatsapp: send to %s: %w", to.User, err)
		}
	}
	return nil
}

// SendPoll sends a single-choice poll and remembers its options so votes
// can be mapped back to labels.
func (a *Adapter) SendPoll(ctx context.Context, poll telegraph.Poll) error {
	switch {
	case len(poll.Options) == 0:
		return fmt.Errorf("whatsapp: poll has no options")
	case len(poll.Options) > maxPollOptions:
		return fmt.Errorf("whatsapp: poll has %d options, max %d", len(poll.Options), maxPollOptions)
	}
	c, to, err := a.target(poll.Handle)
	if err != nil {
		return err
	}
	id, err := c.SendPoll(ctx, to, poll.Question, poll.Options)
	if err != nil {
		return fmt.Errorf("whatsapp: send poll to %s: %w", to.User, err)
	}
	a.trackPoll(id, poll.Options)
	return nil
}

func (a *Adapter) target(handle string) (client, types.JID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil, types.JID{}, fmt.Errorf("whatsapp: not connected")
	}
	user := recipient(handle)
	if user == "" {
		return nil, types.JID{}, fmt.Errorf("whatsapp: no recipient")
	}
	return a.client, types.NewJID(user, types.DefaultUserServer), nil
}

func (a *Adapter) trackPoll(id string, options []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.polls[id] = append([]string(nil), options...)
	a.pollOrder = append(a.pollOrder, id)
	if len(a.pollOrder) > maxTrackedPolls {
		delete(a.polls, a.pollOrder[0])
		a.pollOrder = a.pollOrder[1:]
	}
}

// pollOption maps a selected option hash back to its label.
func (a *Adapter) pollOption(pollID string, hash []byte) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, opt := range a.polls[pollID] {
		sum := sha256.Sum256([]byte(opt))
		if string(sum[:]) == string(hash) {
			return opt, true
		}
	}
	return "", false
}

// Close disconnects the client, stops the status server and closes the
// event channels.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.connected = false
	a.ready = false
	a.cancel()
	close(a.inbound)
	close(a.votes)
	c, srv := a.client, a.srv
	a.mu.Unlock()

	// Event handlers take the lock to emit, so disconnect outside it.
	if c != nil {
		c.Disconnect()
	}
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("whatsapp: shutdown: %w", err)
	}
	return nil
}

func (a *Adapter) isConnected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connected
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

// recipient strips chat suffixes ("@c.us", "@s.whatsapp.net") and
// formatting from a handle.
func recipient(handle string) string {
	if i := strings.IndexByte(handle, '@'); i >= 0 {
		handle = handle[:i]
	}
	var b strings.Builder
	for _, r := range handle {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
