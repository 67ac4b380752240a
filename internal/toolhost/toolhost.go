// Package toolhost maintains the registry of analysis tools offered to the
// oracle and dispatches tool calls by name.
//
// Tools come from two sources: in-process Go functions registered via
// [Host.RegisterBuiltin], and external MCP servers connected via
// [Host.RegisterServer] over stdio or streamable-HTTP transports using the
// official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
//
// Typical usage:
//
//	h := toolhost.New()
//
//	// Register the built-in analysis tools.
//	h.RegisterBuiltins(lexicon.Tools())
//
//	// Optionally attach an external MCP server.
//	err := h.RegisterServer(ctx, toolhost.ServerConfig{
//	    Name:      "geocode",
//	    Transport: toolhost.TransportStdio,
//	    Command:   "/usr/local/bin/mcp-geocode-server",
//	})
//
//	// Offer the catalogue to the oracle and execute its calls.
//	defs := h.AvailableTools()
//	result, err := h.ExecuteTool(ctx, "EmotionLexiconScorer", `{"text": "..."}`)
//
//	// Shut down when done.
//	h.Close()
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/evakess/callsense/internal/tools"
	"github.com/evakess/callsense/pkg/provider/llm"
)

// Transport selects how the host connects to an external MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes an external MCP server to attach.
type ServerConfig struct {
	// Name identifies the server within the host. Registering a second
	// server with the same name replaces the first.
	Name string

	// Transport selects the connection mechanism.
	Transport Transport

	// Command is the executable plus space-separated arguments for stdio
	// transport.
	Command string

	// URL is the endpoint address for streamable-HTTP transport.
	URL string

	// Env holds additional environment variables for stdio servers.
	Env map[string]string
}

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	// Content is the tool's textual output, or the error message when
	// IsError is set.
	Content string

	// IsError marks application-level tool failures. Transport and protocol
	// failures are returned as Go errors instead.
	IsError bool

	// Duration is the measured execution time.
	Duration time.Duration
}

// toolEntry holds all metadata for a single registered tool.
type toolEntry struct {
	def        llm.ToolDefinition
	serverName string

	// builtinFn is non-nil for in-process tools registered via RegisterBuiltin.
	builtinFn func(ctx context.Context, args string) (string, error)
}

// serverConn holds a live connection to an external MCP server.
type serverConn struct {
	session *mcpsdk.ClientSession
}

// Host is the concurrent-safe tool registry and dispatcher.
//
// The zero value is NOT usable; create instances with [New].
type Host struct {
	mu      sync.RWMutex
	tools   map[string]toolEntry  // key: tool name
	servers map[string]serverConn // key: server name

	// client is reused across all server connections. The official SDK allows
	// a single Client to manage multiple sessions concurrently.
	client *mcpsdk.Client
}

// New creates and returns a ready-to-use Host.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "callsense-toolhost", Version: "1.0.0"},
		nil,
	)
	return &Host{
		tools:   make(map[string]toolEntry),
		servers: make(map[string]serverConn),
		client:  client,
	}
}

// RegisterBuiltin adds an in-process tool to the registry. A tool with the
// same name replaces any previous registration.
func (h *Host) RegisterBuiltin(t tools.Tool) error {
	if t.Definition.Name == "" {
		return fmt.Errorf("toolhost: builtin tool must have a non-empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("toolhost: builtin tool %q must have a handler", t.Definition.Name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.tools[t.Definition.Name] = toolEntry{
		def:       t.Definition,
		builtinFn: t.Handler,
	}
	return nil
}

// RegisterBuiltins registers every tool in ts, stopping at the first error.
func (h *Host) RegisterBuiltins(ts []tools.Tool) error {
	for _, t := range ts {
		if err := h.RegisterBuiltin(t); err != nil {
			return err
		}
	}
	return nil
}

// RegisterServer connects to the MCP server described by cfg and imports its
// tool catalogue into the host. If a server with the same Name is already
// registered, the old connection is closed and replaced.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("toolhost: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return fmt.Errorf("toolhost: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return fmt.Errorf("toolhost: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return fmt.Errorf("toolhost: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("toolhost: failed to connect to server %q: %w", cfg.Name, err)
	}

	var discovered []mcpsdk.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return fmt.Errorf("toolhost: failed to list tools for server %q: %w", cfg.Name, err)
		}
		discovered = append(discovered, *tool)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Close the old connection if it exists and drop its tools.
	if old, ok := h.servers[cfg.Name]; ok {
		_ = old.session.Close()
		for name, t := range h.tools {
			if t.serverName == cfg.Name {
				delete(h.tools, name)
			}
		}
	}

	h.servers[cfg.Name] = serverConn{session: session}

	for _, mcpTool := range discovered {
		h.tools[mcpTool.Name] = toolEntry{
			def: llm.ToolDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  schemaToMap(mcpTool.InputSchema),
			},
			serverName: cfg.Name,
		}
	}

	return nil
}

// AvailableTools returns the registered tool definitions sorted by name.
func (h *Host) AvailableTools() []llm.ToolDefinition {
	h.mu.RLock()
	defs := make([]llm.ToolDefinition, 0, len(h.tools))
	for _, e := range h.tools {
		defs = append(defs, e.def)
	}
	h.mu.RUnlock()

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// ExecuteTool calls the named tool with JSON-encoded args and returns the
// result. name must exactly match a [llm.ToolDefinition.Name] returned by
// [Host.AvailableTools].
//
// args must be a valid JSON object string. An empty object ("{}") is valid
// for parameter-less tools.
//
// A non-nil *ToolResult is returned on success even when IsError is true
// (application-level error). A Go error is returned only on transport or
// protocol failure, or when no such tool exists.
func (h *Host) ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error) {
	h.mu.RLock()
	entry, ok := h.tools[name]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("toolhost: tool %q not found", name)
	}

	start := time.Now()

	var result *ToolResult
	var err error
	if entry.builtinFn != nil {
		result, err = h.executeBuiltin(ctx, entry, args)
	} else {
		result, err = h.executeMCPTool(ctx, entry, args)
	}
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// executeBuiltin calls the in-process handler for a builtin tool.
func (h *Host) executeBuiltin(ctx context.Context, entry toolEntry, args string) (*ToolResult, error) {
	output, err := entry.builtinFn(ctx, args)
	if err != nil {
		return &ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &ToolResult{Content: output}, nil
}

// executeMCPTool routes the call to the appropriate server session.
func (h *Host) executeMCPTool(ctx context.Context, entry toolEntry, args string) (*ToolResult, error) {
	h.mu.RLock()
	conn, ok := h.servers[entry.serverName]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("toolhost: server %q not found for tool %q", entry.serverName, entry.def.Name)
	}

	var argsMap map[string]any
	if args != "" && args != "{}" {
		if err := json.Unmarshal([]byte(args), &argsMap); err != nil {
			return nil, fmt.Errorf("toolhost: invalid args JSON for tool %q: %w", entry.def.Name, err)
		}
	}

	callResult, err := conn.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      entry.def.Name,
		Arguments: argsMap,
	})
	if err != nil {
		return nil, fmt.Errorf("toolhost: call to tool %q failed: %w", entry.def.Name, err)
	}

	// Concatenate all text content from the result.
	var sb strings.Builder
	for _, c := range callResult.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}

	return &ToolResult{
		Content: sb.String(),
		IsError: callResult.IsError,
	}, nil
}

// Close shuts down all server connections and releases associated resources.
// After Close returns the Host must not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, conn := range h.servers {
		if err := conn.session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("toolhost: error closing server %q: %w", name, err)
		}
		delete(h.servers, name)
	}

	h.tools = make(map[string]toolEntry)

	return firstErr
}

// schemaToMap converts any schema value to a map[string]any.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" yields ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
