// Package mcp connects to external Model Context Protocol servers and
// exposes their tools behind the project's Tool interface.
package mcp

import (
	"context"
	"os"
	"os/exec"

	"github.com/dkozel/graphchat/errors"
	"github.com/dkozel/graphchat/logging"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*ServerTool
}

// NewClient starts the MCP server subprocess, connects, and discovers the
// tools it provides.
func NewClient(name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	sdkClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "graphchat", Version: "v1.0.0"}, nil)

	ctx := context.Background()
	conn, err := sdkClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}

	client := &Client{
		name:  name,
		cmd:   cmd,
		conn:  conn,
		tools: make(map[string]*ServerTool),
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools[t.Name] = &ServerTool{
				server:      name,
				name:        t.Name,
				description: t.Description,
				client:      client,
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	logging.Named("mcp").WithField("server", name).WithField("tools", len(client.tools)).Info("MCP server connected")
	return client, nil
}

// Tool returns one tool by its short name.
func (c *Client) Tool(name string) (*ServerTool, bool) {
	t, ok := c.tools[name]
	return t, ok
}

// Tools returns every tool the server offers.
func (c *Client) Tools() map[string]*ServerTool {
	return c.tools
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		logging.Named("mcp").WithField("server", c.name).Info("terminating MCP server")
		return c.cmd.Process.Kill()
	}
	return nil
}

// ServerTool adapts one remote MCP tool to the tools.Tool interface.
type ServerTool struct {
	server      string
	name        string
	description string
	client      *Client
}

// Name returns the tool's short name. Some models reject names containing
// separators, so the server prefix is not included.
func (t *ServerTool) Name() string { return t.name }

func (t *ServerTool) Description() string { return t.description }

// Execute forwards the call to the MCP server and concatenates the text
// content of the result.
func (t *ServerTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.name,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s' on MCP server '%s'", t.name, t.server)
	}
	var out string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}
