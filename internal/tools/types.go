// Package tools defines the Tool Host interface used to expose callable
// tools to the LLM stage of the voice pipeline: server connection config,
// budget-tiered tool visibility, and tool-call execution.
//
// Grounded on internal/mcp, generalized from an NPC-scoped tool host into
// the spec's pluggable backend adapter side channel for LLM tool calling.
package tools

import (
	"context"

	"github.com/glyphoxa-sdk/runtime/pkg/types"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// BudgetTier controls which tools are visible to the LLM stage based on
// latency constraints.
type BudgetTier int

const (
	// BudgetFast allows only tools with <= 500ms estimated latency.
	BudgetFast BudgetTier = iota

	// BudgetStandard allows tools with <= 1500ms estimated latency.
	BudgetStandard

	// BudgetDeep allows all tools regardless of latency.
	BudgetDeep
)

// String returns the human-readable name of the budget tier.
func (t BudgetTier) String() string {
	switch t {
	case BudgetFast:
		return "FAST"
	case BudgetStandard:
		return "STANDARD"
	case BudgetDeep:
		return "DEEP"
	default:
		return "UNKNOWN"
	}
}

// MaxLatencyMs returns the maximum parallel tool latency for this tier.
func (t BudgetTier) MaxLatencyMs() int {
	switch t {
	case BudgetFast:
		return 500
	case BudgetStandard:
		return 1500
	case BudgetDeep:
		return 4000
	default:
		return 500
	}
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name is the human-readable identifier for this server. Must be
	// unique within a single Host. Used in log messages and errors.
	Name string

	// Transport specifies the connection mechanism.
	Transport Transport

	// Command is the executable path (and optional arguments) used when
	// Transport is TransportStdio. Ignored otherwise.
	Command string

	// URL is the endpoint address used when Transport is
	// TransportStreamableHTTP. Ignored otherwise.
	URL string

	// Env holds additional environment variables injected into the server
	// process when Transport is TransportStdio. May be nil.
	Env map[string]string
}

// ToolResult holds the outcome of a single tool execution.
type ToolResult struct {
	// Content is the tool's textual output, typically a JSON string or
	// human-readable text ready for insertion into an LLM context window.
	Content string

	// IsError indicates that the tool returned an application-level error
	// (as opposed to a transport or protocol failure returned via the Go
	// error return value). When IsError is true, Content contains the
	// error message.
	IsError bool

	// DurationMs is the wall-clock time in milliseconds from when the
	// request was dispatched until the full response was received.
	DurationMs int64
}

// ToolHealth captures the measured runtime performance of a single tool,
// populated by Host.Calibrate and used to assign BudgetTier values.
type ToolHealth struct {
	Name          string
	MeasuredP50Ms int64
	MeasuredP99Ms int64
	CallCount     int
	ErrorRate     float64
	Tier          BudgetTier
}

// Host manages connections to tool servers, routes tool calls, and tracks
// per-tool performance metrics for latency-based budget tier assignment.
//
// Implementations must be safe for concurrent use.
type Host interface {
	// RegisterServer connects to the server described by cfg and imports
	// its tool catalogue into the host. If a server with the same Name is
	// already registered it is reconnected / refreshed rather than
	// duplicated.
	RegisterServer(ctx context.Context, cfg ServerConfig) error

	// AvailableTools returns all tools whose assigned BudgetTier is <=
	// tier, sorted by estimated latency ascending (fastest first). The
	// result can be assigned directly to llm.CompletionRequest.Tools.
	AvailableTools(tier BudgetTier) []types.ToolDefinition

	// ExecuteTool calls the named tool with JSON-encoded args and returns
	// the result. A non-nil *ToolResult is returned on success even when
	// ToolResult.IsError is true (application-level error). A Go error is
	// returned only on transport or protocol failure.
	ExecuteTool(ctx context.Context, name string, args string) (*ToolResult, error)

	// Calibrate sends lightweight probe requests to every registered
	// tool, measures their round-trip latency, and updates each tool's
	// assigned BudgetTier. Probes must run concurrently and respect ctx
	// for cancellation and deadline propagation.
	Calibrate(ctx context.Context) error

	// Close shuts down all server connections and releases associated
	// resources. After Close returns the Host must not be used again.
	Close() error
}
