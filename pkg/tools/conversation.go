package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/twin/internal/chat"
	"github.com/comigor/twin/internal/history"
)

// Conversations is the chat surface the MCP tools drive.
type Conversations interface {
	Chat(ctx context.Context, req chat.Request) (*chat.Response, error)
	History(ctx context.Context, sessionID string) ([]history.Message, error)
}

// ChatTool sends a message to the twin and returns its reply.
type ChatTool struct {
	svc Conversations
}

// NewChatTool creates the "chat" tool.
func NewChatTool(svc Conversations) *ChatTool { return &ChatTool{svc: svc} }

func (t *ChatTool) Name() string { return "chat" }

func (t *ChatTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Send a message to the digital twin and get its reply. Pass session_id to continue a conversation."),
		mcp.WithString("message", mcp.Required(), mcp.Description("The user message")),
		mcp.WithString("session_id", mcp.Description("Existing conversation id; omit to start a new one")),
	)
}

func (t *ChatTool) Run(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	message, err := req.RequireString("message")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := t.svc.Chat(ctx, chat.Request{
		Message:   message,
		SessionID: req.GetString("session_id", ""),
	})
	if err != nil {
		return mcp.NewToolResultErrorFromErr("chat failed", err), nil
	}
	return jsonResult(resp)
}

// ConversationTool returns the stored transcript of a session.
type ConversationTool struct {
	svc Conversations
}

// NewConversationTool creates the "get_conversation" tool.
func NewConversationTool(svc Conversations) *ConversationTool {
	return &ConversationTool{svc: svc}
}

func (t *ConversationTool) Name() string { return "get_conversation" }

func (t *ConversationTool) Definition() mcp.Tool {
	return mcp.NewTool(t.Name(),
		mcp.WithDescription("Fetch every stored message of a conversation, oldest first."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Conversation id")),
	)
}

func (t *ConversationTool) Run(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	msgs, err := t.svc.History(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("load conversation failed", err), nil
	}
	return jsonResult(map[string]any{"session_id": sessionID, "messages": msgs})
}

// Register adds the conversation tools to m.
func Register(m *ToolManager, svc Conversations) {
	m.RegisterTool(NewChatTool(svc))
	m.RegisterTool(NewConversationTool(svc))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
