package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsRequest is an intent sent by the client. Type is one of the intent names.
type wsRequest struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	Perspective string `json:"perspective"`
}

// wsEvent is sent by the server: "view" after every accepted intent, "pending"
// while an intent runs and "error" when one fails.
type wsEvent struct {
	Type   string             `json:"type"`
	Intent string             `json:"intent,omitempty"`
	View   *conversation.View `json:"view,omitempty"`
	Error  *apiError          `json:"error,omitempty"`
}

// sessionWebSocket streams a session: intents in, views out. Intents on one
// connection run sequentially.
func (s *Server) sessionWebSocket(c *gin.Context) {
	sess, err := s.sessions.get(c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.From(c.Request.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := logging.WithAttrs(context.WithoutCancel(c.Request.Context()), "session_id", sess.id)
	logger := logging.From(ctx)
	logger.Info("websocket connected")

	if err := conn.WriteJSON(&wsEvent{Type: "view", View: sess.ctrl.View(ctx)}); err != nil {
		return
	}

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed unexpectedly", "error", err)
			}
			logger.Info("websocket disconnected")
			return
		}

		if err := conn.WriteJSON(s.dispatch(ctx, conn, sess, req)); err != nil {
			logger.Warn("failed to write websocket event", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn *websocket.Conn, sess *session, req wsRequest) *wsEvent {
	in, ok := intents[req.Type]
	if !ok {
		return &wsEvent{
			Type:  "error",
			Error: &apiError{Code: codeBadRequest, Message: "unknown message type: " + req.Type},
		}
	}

	if !s.sessions.touch(sess.id) {
		return &wsEvent{
			Type:   "error",
			Intent: req.Type,
			Error:  &apiError{Code: codeSessionNotFound, Message: errSessionNotFound.Error()},
		}
	}

	if err := conn.WriteJSON(&wsEvent{Type: "pending", Intent: req.Type}); err != nil {
		logging.From(ctx).Warn("failed to write pending event", "error", err)
	}

	err := in.run(ctx, sess.ctrl, intentRequest{Text: req.Text, Perspective: req.Perspective})
	view := sess.ctrl.View(ctx)
	if err != nil {
		_, code := classify(err)
		if !errors.Is(err, model.ErrGenerationFailed) {
			logging.From(ctx).Debug("websocket intent rejected", "error", err, "intent", req.Type)
		}
		return &wsEvent{
			Type:   "error",
			Intent: req.Type,
			View:   view,
			Error:  &apiError{Code: code, Message: message(err, code)},
		}
	}

	return &wsEvent{Type: "view", Intent: req.Type, View: view}
}
