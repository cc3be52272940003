package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/usecase/history"
)

type intentRequest struct {
	Text        string `json:"text"`
	Perspective string `json:"perspective"`
}

type intent struct {
	hasBody bool
	run     func(ctx context.Context, ctrl *conversation.Controller, req intentRequest) error
}

// intents are the user actions on a conversation, keyed by route name. The
// same names are used as WebSocket message types.
var intents = map[string]intent{
	"question": {hasBody: true, run: func(ctx context.Context, ctrl *conversation.Controller, req intentRequest) error {
		return ctrl.SubmitQuestion(ctx, req.Text)
	}},
	"answer": {hasBody: true, run: func(ctx context.Context, ctrl *conversation.Controller, req intentRequest) error {
		return ctrl.AnswerFollowUp(ctx, req.Text)
	}},
	"skip": {run: func(ctx context.Context, ctrl *conversation.Controller, _ intentRequest) error {
		return ctrl.SkipGathering(ctx)
	}},
	"restart": {run: func(_ context.Context, ctrl *conversation.Controller, _ intentRequest) error {
		return ctrl.RestartGathering()
	}},
	"select": {hasBody: true, run: func(ctx context.Context, ctrl *conversation.Controller, req intentRequest) error {
		return ctrl.SelectPerspective(ctx, req.Perspective)
	}},
	"messages": {hasBody: true, run: func(ctx context.Context, ctrl *conversation.Controller, req intentRequest) error {
		return ctrl.SendInSingle(ctx, req.Text)
	}},
	"back": {run: func(_ context.Context, ctrl *conversation.Controller, _ intentRequest) error {
		return ctrl.GoBack()
	}},
	"reset": {run: func(_ context.Context, ctrl *conversation.Controller, _ intentRequest) error {
		return ctrl.Reset()
	}},
}

type sessionResponse struct {
	SessionID string             `json:"sessionId"`
	View      *conversation.View `json:"view"`
}

func (s *Server) createSession(c *gin.Context) {
	uid := userID(c)
	sess := s.sessions.create(uid, s.newController(uid))
	respond(c, http.StatusCreated, &sessionResponse{
		SessionID: sess.id,
		View:      sess.ctrl.View(c.Request.Context()),
	})
}

func (s *Server) getSession(c *gin.Context) {
	sess, err := s.sessions.get(c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respond(c, http.StatusOK, &sessionResponse{
		SessionID: sess.id,
		View:      sess.ctrl.View(c.Request.Context()),
	})
}

func (s *Server) closeSession(c *gin.Context) {
	if err := s.sessions.remove(c.Param("id"), userID(c)); err != nil {
		respondError(c, err, nil)
		return
	}
	respond(c, http.StatusOK, gin.H{"closed": true})
}

func (s *Server) handleIntent(name string) gin.HandlerFunc {
	in := intents[name]
	return func(c *gin.Context) {
		sess, err := s.sessions.get(c.Param("id"), userID(c))
		if err != nil {
			respondError(c, err, nil)
			return
		}

		var req intentRequest
		if in.hasBody {
			if err := c.ShouldBindJSON(&req); err != nil {
				fail(c, http.StatusBadRequest, codeBadRequest, "invalid request body", nil)
				return
			}
		}

		// the transition completes even if the client goes away
		ctx := context.WithoutCancel(c.Request.Context())
		if err := in.run(ctx, sess.ctrl, req); err != nil {
			var data any
			if errors.Is(err, model.ErrGenerationFailed) {
				data = &sessionResponse{SessionID: sess.id, View: sess.ctrl.View(ctx)}
			}
			respondError(c, err, data)
			return
		}

		respond(c, http.StatusOK, &sessionResponse{
			SessionID: sess.id,
			View:      sess.ctrl.View(ctx),
		})
	}
}

func (s *Server) listHistory(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, codeBadRequest, "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}

	records, err := history.List(c.Request.Context(), s.repo, userID(c), limit)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if records == nil {
		records = []*model.ConversationRecord{}
	}
	respond(c, http.StatusOK, records)
}

func (s *Server) getHistory(c *gin.Context) {
	record, err := history.Get(c.Request.Context(), s.repo, userID(c), model.RecordID(c.Param("id")))
	if err != nil {
		respondError(c, err, nil)
		return
	}
	respond(c, http.StatusOK, record)
}

func (s *Server) resumeHistory(c *gin.Context) {
	uid := userID(c)
	record, err := history.Get(c.Request.Context(), s.repo, uid, model.RecordID(c.Param("id")))
	if err != nil {
		respondError(c, err, nil)
		return
	}

	ctrl := s.newController(uid)
	if err := ctrl.Resume(record); err != nil {
		respondError(c, err, nil)
		return
	}

	sess := s.sessions.create(uid, ctrl)
	respond(c, http.StatusCreated, &sessionResponse{
		SessionID: sess.id,
		View:      ctrl.View(c.Request.Context()),
	})
}
