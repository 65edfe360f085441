package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/config-service/pkg/conferr"
	"github.com/txn2/config-service/pkg/configservice"
)

// ConfigTemplateURI addresses a stored configuration. The version segment
// is a positive integer or "latest".
const ConfigTemplateURI = "config://{service}/{version}"

const latestVersion = "latest"

var configTemplate = uritemplate.MustNew(ConfigTemplateURI)

func (t *Toolkit) registerResourceTemplate(s *mcp.Server) {
	s.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: ConfigTemplateURI,
		Name:        "Service Configuration",
		Description: "A stored configuration document. Use 'latest' as the version for the newest one.",
		MIMEType:    "application/json",
	}, t.handleConfigResource)
}

// parseConfigURI extracts the service and version of a config:// URI.
// A nil version means the latest.
func parseConfigURI(uri string) (string, *int, error) {
	match := configTemplate.Match(uri)
	if match == nil {
		return "", nil, fmt.Errorf("uri %q does not match template %q", uri, ConfigTemplateURI)
	}
	service := match.Get("service").String()
	raw := match.Get("version").String()
	if service == "" || raw == "" {
		return "", nil, fmt.Errorf("uri %q is missing a service or version", uri)
	}
	if raw == latestVersion {
		return service, nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return "", nil, fmt.Errorf("uri %q has an invalid version %q", uri, raw)
	}
	return service, &v, nil
}

func (t *Toolkit) handleConfigResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	service, version, err := parseConfigURI(uri)
	if err != nil {
		return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
	}

	cfg, err := t.svc.Get(withRequest(ctx), service, configservice.GetOptions{Version: version})
	if err != nil {
		if kind := conferr.KindOf(err); kind != conferr.Internal {
			return nil, mcp.ResourceNotFoundError(uri) //nolint:wrapcheck // MCP protocol error returned as-is for SDK type matching
		}
		t.logger.Error("reading configuration resource", "uri", uri, "error", err)
		return nil, fmt.Errorf("reading %s: %w", uri, err)
	}

	data, err := json.MarshalIndent(cfg.Payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}
