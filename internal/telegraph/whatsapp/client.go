package whatsapp

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlstore dialect "sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// client abstracts the whatsmeow.Client methods we use, enabling test mocks.
type client interface {
	Connect() error
	Disconnect()
	Paired() bool
	QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
	AddHandler(handler func(evt interface{}))
	SendText(ctx context.Context, to types.JID, text string) (string, error)
	SendPoll(ctx context.Context, to types.JID, question string, options []string) (string, error)
	DecryptVote(ctx context.Context, evt *events.Message) ([][]byte, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// realClient wraps *whatsmeow.Client to implement the client interface.
type realClient struct {
	c *whatsmeow.Client
}

// newRealClient opens the device store at path and loads the paired device,
// or a fresh one when nothing has been paired yet.
func newRealClient(ctx context.Context, path string, logger *zap.Logger) (*realClient, error) {
	wl := zapLogger{logger.Named("whatsmeow")}
	container, err := sqlstore.New(ctx, "sqlite3", "file:"+path+"?_foreign_keys=on", wl.Sub("store"))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: open session store %s: %w", path, err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: load device: %w", err)
	}
	return &realClient{c: whatsmeow.NewClient(device, wl.Sub("client"))}, nil
}

func (r *realClient) Connect() error { return r.c.Connect() }
func (r *realClient) Disconnect()    { r.c.Disconnect() }
func (r *realClient) Paired() bool   { return r.c.Store.ID != nil }

func (r *realClient) QRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return r.c.GetQRChannel(ctx)
}

func (r *realClient) AddHandler(handler func(evt interface{})) {
	r.c.AddEventHandler(handler)
}

func (r *realClient) SendText(ctx context.Context, to types.JID, text string) (string, error) {
	resp, err := r.c.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *realClient) SendPoll(ctx context.Context, to types.JID, question string, options []string) (string, error) {
	resp, err := r.c.SendMessage(ctx, to, r.c.BuildPollCreation(question, options, 1))
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (r *realClient) DecryptVote(ctx context.Context, evt *events.Message) ([][]byte, error) {
	vote, err := r.c.DecryptPollVote(ctx, evt)
	if err != nil {
		return nil, err
	}
	return vote.GetSelectedOptions(), nil
}

func (r *realClient) Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error) {
	return r.c.Download(ctx, msg)
}

// zapLogger routes whatsmeow's printf-style logging into zap.
type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) Debugf(msg string, args ...interface{}) { z.l.Sugar().Debugf(msg, args...) }
func (z zapLogger) Infof(msg string, args ...interface{})  { z.l.Sugar().Infof(msg, args...) }
func (z zapLogger) Warnf(msg string, args ...interface{})  { z.l.Sugar().Warnf(msg, args...) }
func (z zapLogger) Errorf(msg string, args ...interface{}) { z.l.Sugar().Errorf(msg, args...) }
func (z zapLogger) Sub(module string) waLog.Logger         { return zapLogger{z.l.Named(module)} }
