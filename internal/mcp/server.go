package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"chromepilot-mcp-server/internal/browser"
	"chromepilot-mcp-server/internal/config"
	"chromepilot-mcp-server/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server wires the MCP runtime, the session cache, and the tool registry.
type Server struct {
	cfg       config.Config
	cache     *session.Cache
	tools     map[string]Tool
	mcpServer *mcpserver.MCPServer
}

// Tool describes the contract for MCP tool implementations. Handlers run
// under the session's dispatch lock with the Context already resolved; they
// write their reply into the accumulator and report failures as errors.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]interface{}
	Handle(ctx context.Context, args map[string]interface{}, resp *Response, tc *browser.Context) error
}

// NewServer constructs the ChromePilot MCP server and registers all tools.
func NewServer(cfg config.Config, cache *session.Cache) (*Server, error) {
	mcpSrv := mcpserver.NewMCPServer(
		cfg.Server.Name,
		cfg.Server.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithLogging(),
		mcpserver.WithRecovery(),
	)

	server := &Server{
		cfg:       cfg,
		cache:     cache,
		tools:     make(map[string]Tool),
		mcpServer: mcpSrv,
	}

	server.registerAllTools()
	return server, nil
}

// Start launches the stdio server.
func (s *Server) Start(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// StartSSE hosts the server over HTTP using SSE endpoints with graceful shutdown.
func (s *Server) StartSSE(ctx context.Context, port int) error {
	sseServer := mcpserver.NewSSEServer(s.mcpServer, mcpserver.WithBaseURL("http://localhost:"+strconv.Itoa(port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(port),
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Printf("SSE server shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) registerAllTools() {
	// Page lifecycle
	s.registerTool(&ListPagesTool{})
	s.registerTool(&NewPageTool{})
	s.registerTool(&SelectPageTool{})
	s.registerTool(&ClosePageTool{})
	s.registerTool(&NavigatePageTool{})

	// Inspection
	s.registerTool(&ScreenshotTool{})
	s.registerTool(&EvaluateScriptTool{})
	s.registerTool(&ListConsoleMessagesTool{})
	s.registerTool(&ListNetworkRequestsTool{})
}

func (s *Server) registerTool(tool Tool) {
	s.tools[tool.Name()] = tool

	schema, err := json.Marshal(tool.InputSchema())
	if err != nil {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	mcpTool := mcp.NewToolWithRawSchema(tool.Name(), tool.Description(), schema)
	s.mcpServer.AddTool(mcpTool, s.wrapTool(tool))
}

func (s *Server) wrapTool(tool Tool) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = map[string]interface{}{}
		}
		return s.dispatch(ctx, tool, args), nil
	}
}

// dispatch is the per-call orchestration: session from config, lock, context,
// fresh accumulator, handler, finalize. Handler and finalize errors become
// error-flagged replies here; they never surface as transport faults.
func (s *Server) dispatch(ctx context.Context, tool Tool, args map[string]interface{}) *mcp.CallToolResult {
	sess, err := s.cache.GetOrCreate(s.cfg.Browser)
	if err != nil {
		return errorResult(tool.Name(), err)
	}

	var result *mcp.CallToolResult
	err = sess.WithLock(ctx, func() error {
		tc, err := sess.GetContext(ctx)
		if err != nil {
			return err
		}

		resp := NewResponse()
		if err := tool.Handle(ctx, args, resp, tc); err != nil {
			return err
		}

		out, err := resp.Finalize(tc)
		if err != nil {
			return err
		}
		result = out
		return nil
	})
	if err != nil {
		return errorResult(tool.Name(), err)
	}
	return result
}

func errorResult(toolName string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(fmt.Sprintf("tool %s failed: %v", toolName, err))},
		IsError: true,
	}
}
