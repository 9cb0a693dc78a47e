package whatsapp

import (
	"context"

	"github.com/zulandar/taskline/internal/telegraph"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// handleEvent is registered with the client and runs on its event goroutine.
func (a *Adapter) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Message:
		a.handleMessage(e)
	case *events.Connected:
		a.setReady(true)
		a.logger.Info("whatsapp connected")
	case *events.Disconnected:
		a.setReady(false)
		a.logger.Warn("whatsapp disconnected")
	case *events.LoggedOut:
		a.setReady(false)
		a.logger.Warn("whatsapp device logged out; delete the session file and pair again",
			zap.String("reason", e.Reason.String()))
	case *events.PairSuccess:
		a.logger.Info("whatsapp pair success", zap.String("jid", e.ID.String()))
	}
}

func (a *Adapter) setReady(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = v
	if v {
		a.qrCode = ""
	}
}

// handleMessage turns a direct message into an InboundMessage or, for a
// poll update, a VoteEvent. Own, group and broadcast messages are ignored.
func (a *Adapter) handleMessage(e *events.Message) {
	info := e.Info
	if info.IsFromMe || info.IsGroup || info.Chat.Server == types.BroadcastServer {
		return
	}
	handle := info.Sender.ToNonAD().User
	m := e.Message
	if m == nil || handle == "" {
		return
	}

	if upd := m.GetPollUpdateMessage(); upd != nil {
		a.handleVote(e, handle, upd.GetPollCreationMessageKey().GetID())
		return
	}

	msg := telegraph.InboundMessage{
		Platform:  "whatsapp",
		Handle:    handle,
		UserName:  info.PushName,
		Timestamp: info.Timestamp,
	}
	switch {
	case m.GetConversation() != "":
		msg.Text = m.GetConversation()
	case m.GetExtendedTextMessage() != nil:
		msg.Text = m.GetExtendedTextMessage().GetText()
	case m.GetAudioMessage() != nil:
		audio := m.GetAudioMessage()
		msg.MediaMIME = audio.GetMimetype()
		msg.Media = a.lazyMedia(audio)
	case m.GetImageMessage() != nil:
		img := m.GetImageMessage()
		msg.Text = img.GetCaption()
		msg.MediaMIME = img.GetMimetype()
		msg.Media = a.lazyMedia(img)
	default:
		a.logger.Debug("unsupported message type", zap.String("handle", handle), zap.String("id", info.ID))
		return
	}
	if msg.Text == "" && msg.Media == nil {
		return
	}
	a.emitMessage(msg)
}

// handleVote decrypts a poll update and reports each selected option that
// belongs to a poll we sent. An empty selection is a retracted vote.
func (a *Adapter) handleVote(e *events.Message, handle, pollID string) {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil {
		return
	}
	hashes, err := c.DecryptVote(a.ctx, e)
	if err != nil {
		a.logger.Warn("decrypt poll vote", zap.String("handle", handle), zap.String("poll_id", pollID), zap.Error(err))
		return
	}
	for _, h := range hashes {
		opt, ok := a.pollOption(pollID, h)
		if !ok {
			a.logger.Debug("vote for unknown poll option", zap.String("poll_id", pollID))
			continue
		}
		a.emitVote(telegraph.VoteEvent{Platform: "whatsapp", Handle: handle, Option: opt})
	}
}

// lazyMedia defers the encrypted media download until the pipeline asks.
func (a *Adapter) lazyMedia(msg whatsmeow.DownloadableMessage) telegraph.MediaFunc {
	return func(ctx context.Context) ([]byte, error) {
		a.mu.Lock()
		c := a.client
		a.mu.Unlock()
		return c.Download(ctx, msg)
	}
}

// Compile-time check that proto media messages satisfy the download port.
var (
	_ whatsmeow.DownloadableMessage = (*waE2E.AudioMessage)(nil)
	_ whatsmeow.DownloadableMessage = (*waE2E.ImageMessage)(nil)
)
