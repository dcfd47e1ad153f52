// Package server exposes the streaming endpoints over HTTP. It is a
// thin conduit: authentication, session ownership checks, and file
// upload processing all happen upstream; requests arrive here already
// validated, with any file text already extracted.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexora-ai/nexora-backend/pkg/chat"
	"github.com/nexora-ai/nexora-backend/pkg/logger"
	"github.com/nexora-ai/nexora-backend/pkg/models"
	"github.com/nexora-ai/nexora-backend/pkg/retrieval"
)

// Server owns the HTTP surface for the generation stream proxy.
type Server struct {
	log    *logger.Logger
	proxy  *chat.Proxy
	engine *gin.Engine
}

// New builds the router. mode is a gin mode string.
func New(log *logger.Logger, proxy *chat.Proxy, mode string) *Server {
	if mode != "" {
		gin.SetMode(mode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{log: log.With("component", "server"), proxy: proxy, engine: engine}

	streaming := engine.Group("/streaming")
	streaming.POST("", s.handleStream)
	streaming.POST("/with-files", s.handleStreamWithFiles)

	return s
}

// Handler returns the root handler for mounting in an http.Server.
func (s *Server) Handler() http.Handler { return s.engine }

type streamRequest struct {
	OwnerID   int64  `json:"owner_id" binding:"required"`
	SessionID int64  `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
	Mode      string `json:"mode"`
}

type streamWithFilesRequest struct {
	OwnerID     int64               `json:"owner_id" binding:"required"`
	SessionID   int64               `json:"session_id" binding:"required"`
	Message     string              `json:"message"`
	Attachments []models.Attachment `json:"attachments" binding:"required"`
}

func (s *Server) handleStream(c *gin.Context) {
	var req streamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	mode := retrieval.Conversational
	if req.Mode == "domain" {
		mode = retrieval.DomainAugmented
	}

	state, err := s.proxy.Stream(c.Request.Context(), chat.Request{
		OwnerID:   req.OwnerID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Mode:      mode,
	}, s.sendFunc(c))
	s.endStream(c, state, err)
}

func (s *Server) handleStreamWithFiles(c *gin.Context) {
	var req streamWithFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	state, err := s.proxy.StreamWithFiles(c.Request.Context(), chat.FileRequest{
		OwnerID:     req.OwnerID,
		SessionID:   req.SessionID,
		Message:     req.Message,
		Attachments: req.Attachments,
	}, s.sendFunc(c))
	s.endStream(c, state, err)
}

// sendFunc forwards one fragment to the caller and flushes it
// immediately so tokens show up as they are generated. The streaming
// headers go out with the first fragment; until then the response is
// untouched and a setup failure can still be a plain JSON error.
func (s *Server) sendFunc(c *gin.Context) chat.SendFunc {
	started := false
	return func(fragment string) error {
		if !started {
			started = true
			c.Header("Content-Type", "text/event-stream")
			c.Header("Cache-Control", "no-cache")
			c.Header("Connection", "keep-alive")
		}
		if _, err := c.Writer.WriteString(fragment); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}
}

func (s *Server) endStream(c *gin.Context, state *chat.StreamState, err error) {
	if err != nil {
		// The proxy only errors before any fragment was written, and
		// the streaming headers are deferred to the first fragment, so
		// a JSON error response is still possible here.
		s.log.Error("stream setup failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	if state.Err != nil {
		s.log.Warn("stream ended abnormally", "exchange_id", state.ExchangeID, "error", state.Err)
	}
}
