// Package tools defines the actions an engine may take on the agent's
// behalf, and the registry that resolves a configured toolset into live
// tool instances, including tools served by external MCP servers.
package tools

import (
	"context"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dkozel/graphchat/config"
	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	"github.com/dkozel/graphchat/tools/mcp"
)

// Tool is any action an engine can take.
type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds the built-in tools plus clients for configured MCP servers.
type Registry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.Client
}

// NewRegistry registers the built-in tools and connects to any MCP servers
// named in the configuration. A server that fails to start is skipped with a
// logged warning rather than failing startup.
func NewRegistry(cfg *config.Config) *Registry {
	r := &Registry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.Client),
	}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&RunCommandTool{allowedCommands: cfg.AllowedCommands})

	log := logging.Named("tools")
	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(server.Name, server.Command, server.Args)
		if err != nil {
			log.WithError(err).WithField("server", server.Name).Warn("skipping MCP server")
			continue
		}
		r.mcpClients[server.Name] = client
	}

	return r
}

func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Close stops all MCP server subprocesses.
func (r *Registry) Close() {
	for _, client := range r.mcpClients {
		client.Stop()
	}
}

// Resolve returns the tool instances for a toolset. MCP tools are addressed
// as "<server>:<tool>"; "<server>:*" selects every tool the server offers.
func (r *Registry) Resolve(ts *config.Toolset) ([]Tool, error) {
	var active []Tool
	for _, name := range ts.Tools {
		if server, tool, ok := strings.Cut(name, ":"); ok {
			resolved, err := r.resolveMCP(server, tool, ts.Name)
			if err != nil {
				return nil, err
			}
			active = append(active, resolved...)
			continue
		}

		t, ok := r.Get(name)
		if !ok {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

func (r *Registry) resolveMCP(server, tool, toolset string) ([]Tool, error) {
	client, ok := r.mcpClients[server]
	if !ok {
		return nil, errors.New("MCP server '%s' from toolset '%s' is not configured", server, toolset)
	}
	if tool == "*" {
		var all []Tool
		for _, t := range client.Tools() {
			all = append(all, t)
		}
		return all, nil
	}
	t, ok := client.Tool(tool)
	if !ok {
		return nil, errors.New("MCP server '%s' does not provide tool '%s'", server, tool)
	}
	return []Tool{t}, nil
}

// pathRestricted checks whether a path matches any of the glob patterns.
func pathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, errors.Wrapf(err, "invalid glob pattern '%s'", pattern)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// commandAllowed checks a command against the allowlist, treating each entry
// as a regular expression with a literal-comparison fallback.
func commandAllowed(command string, allowed []string) bool {
	if len(strings.Fields(command)) == 0 {
		return false
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
