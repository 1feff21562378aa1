// Package mcp exposes the render pipeline as a Model Context Protocol tool.
package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
	"github.com/Harsh-BH/manim-sentinel/internal/receiver"
)

// ToolName is the name clients call to render a scene.
const ToolName = "execute_manim_code"

// Renderer runs one render request end to end.
type Renderer interface {
	Render(ctx context.Context, raw *domain.RenderRequest) *domain.RenderResponse
	Reject(raw *domain.RenderRequest, err error) *domain.RenderResponse
}

// ExecuteInput is the tool's argument object.
type ExecuteInput struct {
	ManimCode string `json:"manim_code" jsonschema:"Python source defining the scene class to render"`
	SceneName string `json:"scene_name,omitempty" jsonschema:"Scene class to render; inferred when the source declares exactly one scene"`
	Quality   string `json:"quality,omitempty" jsonschema:"Render quality: low, medium or high (default low)"`
	RequestID string `json:"request_id,omitempty" jsonschema:"Optional caller-chosen request id"`
}

// ExecuteOutput is the structured result of a render.
type ExecuteOutput struct {
	Status       string `json:"status"`
	RequestID    string `json:"request_id"`
	Logs         string `json:"logs"`
	DurationMs   int64  `json:"duration_ms"`
	ArtifactKey  string `json:"artifact_key,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`
	ArtifactURL  string `json:"artifact_url,omitempty"`
	Size         int64  `json:"size,omitempty"`
	SHA256       string `json:"sha256,omitempty"`
}

type toolHandler struct {
	renderer Renderer
	logger   *zap.Logger
}

// NewServer builds an MCP server with the render tool registered.
func NewServer(renderer Renderer, version string, logger *zap.Logger) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "manim-sentinel",
		Version: version,
	}, nil)

	h := &toolHandler{renderer: renderer, logger: logger}
	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolName,
		Description: "Render a Manim scene in a sandbox and return a reference to the produced video.",
	}, h.execute)

	return server
}

// NewHTTPHandler serves server over the streamable HTTP transport.
func NewHTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)
}

func (h *toolHandler) execute(ctx context.Context, _ *mcp.CallToolRequest, in ExecuteInput) (*mcp.CallToolResult, ExecuteOutput, error) {
	raw := &domain.RenderRequest{
		SourceCode: in.ManimCode,
		EntryPoint: strings.TrimSpace(in.SceneName),
		Quality:    domain.Quality(strings.ToLower(strings.TrimSpace(in.Quality))),
		RequestID:  in.RequestID,
	}

	var resp *domain.RenderResponse
	if raw.EntryPoint == "" {
		scene, err := receiver.InferEntryPoint(raw.SourceCode)
		if err != nil {
			resp = h.renderer.Reject(raw, err)
		}
		raw.EntryPoint = scene
	}
	if resp == nil {
		resp = h.renderer.Render(ctx, raw)
	}

	h.logger.Debug("MCP render finished",
		zap.String("request_id", resp.RequestID),
		zap.String("status", string(resp.Status)),
	)

	out := toOutput(resp)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: summary(raw.EntryPoint, out)}},
		IsError: resp.Status != domain.StatusOK,
	}, out, nil
}

func toOutput(resp *domain.RenderResponse) ExecuteOutput {
	out := ExecuteOutput{
		Status:     string(resp.Status),
		RequestID:  resp.RequestID,
		Logs:       resp.Logs,
		DurationMs: resp.DurationMs,
	}
	if a := resp.Artifact; a != nil {
		out.ArtifactKey = a.Key
		out.ArtifactPath = a.Path
		out.ArtifactURL = a.URL
		out.Size = a.Size
		out.SHA256 = a.SHA256
	}
	return out
}

func summary(scene string, out ExecuteOutput) string {
	var b strings.Builder
	if out.Status == string(domain.StatusOK) {
		fmt.Fprintf(&b, "Rendered %s in %d ms.\nVideo: %s\n", scene, out.DurationMs, out.ArtifactPath)
		if out.ArtifactURL != "" {
			fmt.Fprintf(&b, "Download: %s\n", out.ArtifactURL)
		}
	} else {
		fmt.Fprintf(&b, "Render failed (%s).\n", out.Status)
	}
	fmt.Fprintf(&b, "Request ID: %s\n", out.RequestID)
	if out.Logs != "" {
		b.WriteString("\n")
		b.WriteString(out.Logs)
	}
	return b.String()
}
