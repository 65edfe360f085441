// Package mcptools exposes the configuration service to MCP clients as
// tools and a resource template.
package mcptools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/configservice"
)

// Tool names.
const (
	ToolSaveConfig     = "save_config"
	ToolGetConfig      = "get_config"
	ToolConfigHistory  = "config_history"
	ToolValidateConfig = "validate_config"
)

type saveConfigInput struct {
	Service string `json:"service" jsonschema:"service name: letters, numbers, underscores and hyphens"`
	Content string `json:"content" jsonschema:"configuration document as YAML or JSON"`
}

type getConfigInput struct {
	Service string         `json:"service" jsonschema:"service name"`
	Version int            `json:"version,omitempty" jsonschema:"exact version to read; omit for the latest"`
	Render  bool           `json:"render,omitempty" jsonschema:"expand template markers using vars"`
	Vars    map[string]any `json:"vars,omitempty" jsonschema:"template variables"`
}

type configHistoryInput struct {
	Service string `json:"service" jsonschema:"service name"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum revisions to return, newest first (default 10)"`
}

type validateConfigInput struct {
	Content string `json:"content" jsonschema:"configuration document as YAML or JSON"`
}

// Toolkit registers configuration tools on an MCP server.
type Toolkit struct {
	svc    *configservice.Service
	logger *slog.Logger
}

// New creates a Toolkit over svc.
func New(svc *configservice.Service, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolkit{svc: svc, logger: logger}
}

// Tools returns the names of the registered tools.
func (*Toolkit) Tools() []string {
	return []string{ToolSaveConfig, ToolGetConfig, ToolConfigHistory, ToolValidateConfig}
}

// NewServer creates an MCP server with the toolkit registered.
func NewServer(name, version string, tk *Toolkit) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	tk.Register(s)
	return s
}

// Register adds the tools and the resource template to s.
func (t *Toolkit) Register(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: ToolSaveConfig,
		Description: "Stores a configuration document as a new immutable version of a service. " +
			"The document must contain database.host and database.port. A top-level integer " +
			"'version' is used as the version number; otherwise the next version is assigned.",
	}, t.handleSave)

	mcp.AddTool(s, &mcp.Tool{
		Name: ToolGetConfig,
		Description: "Returns the latest or an exact version of a service's configuration. " +
			"With render set, template markers such as {{ name }} are expanded from vars and " +
			"every referenced variable must be supplied.",
	}, t.handleGet)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolConfigHistory,
		Description: "Lists stored versions of a service's configuration with their creation times, newest first.",
	}, t.handleHistory)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolValidateConfig,
		Description: "Checks a configuration document without storing it and reports errors, warnings and its shape.",
	}, t.handleValidate)

	t.registerResourceTemplate(s)
}

// withRequest tags ctx as an MCP request, keeping a request ID set by an
// outer HTTP layer.
func withRequest(ctx context.Context) context.Context {
	info := configservice.RequestInfoFrom(ctx)
	if info.RequestID == "" {
		info.RequestID = uuid.NewString()
	}
	info.Transport = "mcp"
	return configservice.WithRequestInfo(ctx, info)
}

func (t *Toolkit) handleSave(ctx context.Context, _ *mcp.CallToolRequest, input saveConfigInput) (*mcp.CallToolResult, any, error) {
	result, err := t.svc.Save(withRequest(ctx), input.Service, []byte(input.Content))
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(result)
}

func (t *Toolkit) handleGet(ctx context.Context, _ *mcp.CallToolRequest, input getConfigInput) (*mcp.CallToolResult, any, error) {
	opts := configservice.GetOptions{Render: input.Render, Vars: input.Vars}
	if input.Version != 0 {
		v := input.Version
		opts.Version = &v
	}
	cfg, err := t.svc.Get(withRequest(ctx), input.Service, opts)
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(cfg)
}

func (t *Toolkit) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, input configHistoryInput) (*mcp.CallToolResult, any, error) {
	revs, err := t.svc.History(withRequest(ctx), input.Service, input.Limit)
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(revs)
}

func (t *Toolkit) handleValidate(ctx context.Context, _ *mcp.CallToolRequest, input validateConfigInput) (*mcp.CallToolResult, any, error) {
	summary, err := t.svc.Validate(withRequest(ctx), []byte(input.Content))
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return jsonResult(summary)
}

// toolError is the body of a failed tool call.
type toolError struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind"`
	Details []string `json:"details,omitempty"`
}

func errorResult(err error) *mcp.CallToolResult {
	kind := conferr.KindOf(err)
	msg := err.Error()
	if kind == conferr.Internal {
		msg = "Internal server error"
	}
	data, _ := json.Marshal(toolError{Error: msg, Kind: kind.String(), Details: conferr.DetailsOf(err)})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(conferr.Wrap(conferr.Internal, "", err)), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}
