package main

import (
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/taskline/internal/config"
	"github.com/zulandar/taskline/internal/telegraph"
	"github.com/zulandar/taskline/internal/telegraph/discord"
	"github.com/zulandar/taskline/internal/telegraph/slack"
	"github.com/zulandar/taskline/internal/telegraph/whatsapp"
	"go.uber.org/zap"
)

// newAdapter builds the platform adapter named in the config. WhatsApp
// pairing QR codes are drawn on qrOut.
func newAdapter(cfg *config.Config, qrOut io.Writer, logger *zap.Logger) (telegraph.Adapter, error) {
	logger = logger.Named(cfg.Platform)
	switch cfg.Platform {
	case "whatsapp":
		gin.SetMode(gin.ReleaseMode)
		a, err := whatsapp.New(whatsapp.AdapterOpts{
			SessionPath: cfg.WhatsApp.SessionPath,
			ListenAddr:  cfg.WhatsApp.ListenAddr,
			QRWriter:    qrOut,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "discord":
		a, err := discord.New(discord.AdapterOpts{
			BotToken: cfg.Discord.BotToken,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "slack":
		a, err := slack.New(slack.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("telegraph: unsupported platform %q", cfg.Platform)
	}
}
