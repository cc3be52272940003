package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/repository"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
	"github.com/romirm/advice-app/pkg/usecase/history"
	"github.com/romirm/advice-app/pkg/utils/logging"
)

const (
	serverName    = "advice-app"
	serverVersion = "0.1.0"

	defaultHistoryLimit = 10
)

// Server exposes the generation gateway and history as MCP tools. Tools are
// stateless: callers pass the whole context on every call.
type Server struct {
	gateway conversation.Gateway
	repo    repository.Repository
	userID  model.UserID
	server  *mcp.Server
}

type Option func(*Server)

// WithRepository enables the list_history tool
func WithRepository(repo repository.Repository) Option {
	return func(s *Server) {
		s.repo = repo
	}
}

// WithUserID sets the user whose history list_history returns when the caller
// does not name one
func WithUserID(id model.UserID) Option {
	return func(s *Server) {
		s.userID = id
	}
}

func New(gateway conversation.Gateway, opts ...Option) *Server {
	s := &Server{gateway: gateway}
	for _, opt := range opts {
		opt(s)
	}

	s.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "assess_information_needs",
		Description: "Decide whether a personal question has enough context for advice. Returns follow-up questions when it does not.",
	}, s.assess)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_advice",
		Description: "Generate advice for a question from several distinct perspectives",
	}, s.advise)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "continue_advice",
		Description: "Continue a conversation with one perspective",
	}, s.continueAdvice)
	if s.repo != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_history",
			Description: "List past conversations of a user, most recent first",
		}, s.listHistory)
	}

	return s
}

// MCPServer returns the underlying server for use with any transport
func (s *Server) MCPServer() *mcp.Server {
	return s.server
}

// Run serves over stdin/stdout until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return goerr.Wrap(err, "failed to run MCP server")
	}
	return nil
}

type contextEntry struct {
	Question string `json:"question" jsonschema:"Clarifying question"`
	Answer   string `json:"answer" jsonschema:"User's answer"`
}

func toUserContext(entries []contextEntry) model.UserContext {
	var uc model.UserContext
	for _, e := range entries {
		if strings.TrimSpace(e.Question) == "" {
			continue
		}
		uc = uc.Set(e.Question, e.Answer)
	}
	return uc
}

type assessParams struct {
	Question string         `json:"question" jsonschema:"The user's question"`
	Context  []contextEntry `json:"context,omitempty" jsonschema:"Clarifying answers gathered so far"`
}

func (s *Server) assess(ctx context.Context, req *mcp.CallToolRequest, params assessParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Question) == "" {
		return toolError("question is required"), nil, nil
	}

	a, err := s.gateway.AssessInformationNeeds(ctx, params.Question, toUserContext(params.Context))
	if err != nil {
		return s.fail(ctx, "assess_information_needs", err), nil, nil
	}
	return jsonResult(a)
}

type adviceParams struct {
	Question string         `json:"question" jsonschema:"The user's question"`
	Context  []contextEntry `json:"context,omitempty" jsonschema:"Clarifying answers gathered so far"`
}

func (s *Server) advise(ctx context.Context, req *mcp.CallToolRequest, params adviceParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Question) == "" {
		return toolError("question is required"), nil, nil
	}

	result, err := s.gateway.GetAdvice(ctx, params.Question, toUserContext(params.Context))
	if err != nil {
		return s.fail(ctx, "get_advice", err), nil, nil
	}
	return jsonResult(result)
}

type continueParams struct {
	Perspective string          `json:"perspective" jsonschema:"Name of the perspective to talk to"`
	History     []model.Message `json:"history,omitempty" jsonschema:"Conversation so far, oldest first"`
	Message     string          `json:"message" jsonschema:"The user's new message"`
}

type continueResult struct {
	Perspective string `json:"perspective"`
	Reply       string `json:"reply"`
}

func (s *Server) continueAdvice(ctx context.Context, req *mcp.CallToolRequest, params continueParams) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(params.Perspective) == "" || strings.TrimSpace(params.Message) == "" {
		return toolError("perspective and message are required"), nil, nil
	}

	reply, err := s.gateway.ContinueAdvice(ctx, params.Perspective, params.History, params.Message)
	if err != nil {
		return s.fail(ctx, "continue_advice", err), nil, nil
	}
	return jsonResult(&continueResult{Perspective: params.Perspective, Reply: reply})
}

type listHistoryParams struct {
	UserID string `json:"user_id,omitempty" jsonschema:"User whose history to list. Defaults to the configured user."`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of records (default 10)"`
}

func (s *Server) listHistory(ctx context.Context, req *mcp.CallToolRequest, params listHistoryParams) (*mcp.CallToolResult, any, error) {
	uid := model.UserID(params.UserID)
	if uid == "" {
		uid = s.userID
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	records, err := history.List(ctx, s.repo, uid, limit)
	if err != nil {
		return s.fail(ctx, "list_history", err), nil, nil
	}
	if records == nil {
		records = []*model.ConversationRecord{}
	}
	return jsonResult(records)
}

func (s *Server) fail(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	logging.From(ctx).Warn("MCP tool failed", "tool", tool, "error", err)
	if errors.Is(err, model.ErrEmptyUserID) {
		return toolError("user_id is required")
	}
	return toolError(err.Error())
}

func toolError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to marshal tool result")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}, nil, nil
}
