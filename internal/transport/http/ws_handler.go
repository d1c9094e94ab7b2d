package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"quiz-access-service/internal/app"
)

// WSHandler pushes live result boards to quiz owners.
type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(service *app.QuizService, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS subscribes the owner before upgrading so authorization failures are plain HTTP errors.
// Inbound frames are read only to notice the client going away.
func (h *WSHandler) ServeWS(c *gin.Context) {
	quizID := c.Query("quizId")
	if quizID == "" {
		jsonError(c, http.StatusBadRequest, "missing quizId")
		return
	}
	viewer := viewerFrom(c)

	updates, cancel, err := h.service.SubscribeResults(c.Request.Context(), viewer, quizID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "quiz_id", quizID, "error", err)
		return
	}
	defer conn.Close()
	h.logger.Info("result feed opened", "quiz_id", quizID, "owner_id", viewer.ID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer; gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write failed", "quiz_id", quizID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case board, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "results", Payload: board}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	h.logger.Info("result feed closed", "quiz_id", quizID, "owner_id", viewer.ID)
}
