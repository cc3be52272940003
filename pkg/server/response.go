package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/usecase/history"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

const (
	codeBadRequest         = "BAD_REQUEST"
	codeUnauthorized       = "UNAUTHORIZED"
	codeSessionNotFound    = "SESSION_NOT_FOUND"
	codeRecordNotFound     = "RECORD_NOT_FOUND"
	codeBusy               = "BUSY"
	codeInvalidMode        = "INVALID_MODE"
	codeAdviceExists       = "ADVICE_EXISTS"
	codeEmptyInput         = "EMPTY_INPUT"
	codeUnknownPerspective = "UNKNOWN_PERSPECTIVE"
	codeGenerationFailed   = "GENERATION_FAILED"
	codeInternal           = "INTERNAL_ERROR"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, &apiResponse{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string, data any) {
	c.AbortWithStatusJSON(status, &apiResponse{
		Success: false,
		Data:    data,
		Error:   &apiError{Code: code, Message: message},
	})
}

// classify maps an error to an HTTP status and error code
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return http.StatusConflict, codeBusy
	case errors.Is(err, conversation.ErrInvalidMode):
		return http.StatusConflict, codeInvalidMode
	case errors.Is(err, conversation.ErrAdviceExists):
		return http.StatusConflict, codeAdviceExists
	case errors.Is(err, conversation.ErrEmptyInput):
		return http.StatusBadRequest, codeEmptyInput
	case errors.Is(err, conversation.ErrUnknownPerspective):
		return http.StatusBadRequest, codeUnknownPerspective
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, codeSessionNotFound
	case errors.Is(err, model.ErrRecordNotFound), errors.Is(err, history.ErrForbidden):
		return http.StatusNotFound, codeRecordNotFound
	case errors.Is(err, model.ErrGenerationFailed):
		return http.StatusBadGateway, codeGenerationFailed
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

// message hides internal details from clients
func message(err error, code string) string {
	switch code {
	case codeInternal:
		return "internal error"
	case codeRecordNotFound:
		return model.ErrRecordNotFound.Error()
	case codeGenerationFailed:
		return "could not generate advice, please try again"
	default:
		return err.Error()
	}
}

func respondError(c *gin.Context, err error, data any) {
	status, code := classify(err)
	logger := logging.From(c.Request.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err, "code", code)
	} else {
		logger.Debug("request rejected", "error", err, "code", code)
	}
	fail(c, status, code, message(err, code), data)
}
