package whatsapp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusResponse is the pairing state served on /whatsapp/status.
type statusResponse struct {
	Ready  bool   `json:"ready"`
	Paired bool   `json:"paired"`
	QRCode string `json:"qr_code,omitempty"`
}

func (a *Adapter) newRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	wa := r.Group("/whatsapp")
	wa.GET("/status", a.handleStatus)
	wa.POST("/restart", a.handleRestart)
	return r
}

func (a *Adapter) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, a.status())
}

func (a *Adapter) status() statusResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := statusResponse{Ready: a.ready, QRCode: a.qrCode}
	if a.client != nil {
		st.Paired = a.client.Paired()
	}
	return st
}

func (a *Adapter) handleRestart(c *gin.Context) {
	if err := a.restart(); err != nil {
		a.logger.Warn("whatsapp restart failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"restarting": true})
}
