package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nhartono/daftar/internal/engine"
	"github.com/nhartono/daftar/internal/progress"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Engine *engine.Engine
}

// NewMCPServer creates an MCP server exposing the registration assistant as
// tools, so agent frontends can drive a form session the same way the HTTP
// API does.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"daftar",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("daftar: conversational school registration assistant for YPI Al-Azhar."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send one user message to the registration assistant and get its reply. Omit session_id to start a new session."),
			mcp.WithString("session_id", mcp.Description("Existing session id; omit for a new session")),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("get_session",
			mcp.WithDescription("Return the full state of a registration session: collected data, section, history."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpGetSession(deps),
	)

	s.AddTool(
		mcp.NewTool("form_progress",
			mcp.WithDescription("Return completion percentage and missing required fields for a session."),
			mcp.WithString("session_id", mcp.Description("Session id"), mcp.Required()),
		),
		mcpFormProgress(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"daftar://config",
			"Registration Form",
			mcp.WithResourceDescription("The active registration form definition as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceConfig(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}
		sessionID := req.GetString("session_id", "")

		res, err := deps.Engine.ProcessMessage(ctx, sessionID, message)
		if errors.Is(err, engine.ErrGenerationUnavailable) {
			return mcpError("assistant temporarily unavailable, please retry"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("processing message: %v", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session_id":            res.SessionID,
			"response":              res.Reply,
			"current_section":       res.CurrentSection,
			"completion_percentage": res.Completion,
			"can_advance":           res.CanAdvance,
			"missing_fields":        missingOrEmpty(res.MissingFields),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpGetSession(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		st, err := deps.Engine.GetSession(ctx, sessionID)
		if errors.Is(err, engine.ErrSessionNotFound) {
			return mcpError("session not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading session: %v", err)), nil
		}

		b, err := json.Marshal(st)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal session: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpFormProgress(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sessionID, err := req.RequireString("session_id")
		if err != nil {
			return mcpError("session_id is required"), nil
		}

		st, err := deps.Engine.GetSession(ctx, sessionID)
		if errors.Is(err, engine.ErrSessionNotFound) {
			return mcpError("session not found"), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("loading session: %v", err)), nil
		}

		f := deps.Engine.Schema()
		b, err := json.Marshal(map[string]any{
			"session_id":            st.SessionID,
			"current_section":       st.CurrentSection,
			"completion_percentage": progress.CompletionPercentage(f, st.Data),
			"can_advance":           progress.CanAdvance(f, st.CurrentSection, st.Data),
			"missing_fields":        missingOrEmpty(progress.MissingFields(f, st.CurrentSection, st.Data)),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal progress: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceConfig(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		f := deps.Engine.Schema()
		b, err := json.Marshal(map[string]any{
			"form_name": f.FormName,
			"version":   f.Version,
			"sections":  f.Sections,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal form config: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
