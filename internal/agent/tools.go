package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/sarkar-ai-taken/deskmate/internal/approval"
	"github.com/sarkar-ai-taken/deskmate/internal/executor"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
)

// ToolSet wires the agent's tools to the local executor. Every invocation
// passes through the approval manager first; the tool reports a denial back
// to the model as an error result rather than failing the query.
type ToolSet struct {
	approvals *approval.Manager
	exec      executor.Executor
}

// NewToolSet creates a ToolSet.
func NewToolSet(approvals *approval.Manager, exec executor.Executor) *ToolSet {
	return &ToolSet{approvals: approvals, exec: exec}
}

// Definitions returns the tool schemas advertised to the model.
func (t *ToolSet) Definitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		toolDef("run_command", "Run a shell command on the user's machine and return its output.", map[string]any{
			"command": map[string]any{"type": "string", "description": "The shell command to run"},
		}, []string{"command"}),
		toolDef("read_file", "Read a file and return its contents.", map[string]any{
			"path": map[string]any{"type": "string", "description": "Path to the file, absolute or relative to the working directory"},
		}, []string{"path"}),
		toolDef("write_file", "Write content to a file, creating it if needed.", map[string]any{
			"path":    map[string]any{"type": "string", "description": "Path to the file"},
			"content": map[string]any{"type": "string", "description": "Full file content to write"},
		}, []string{"path", "content"}),
		toolDef("list_directory", "List the entries of a directory.", map[string]any{
			"path": map[string]any{"type": "string", "description": "Directory path, defaults to the working directory"},
		}, nil),
	}
}

func toolDef(name, description string, properties map[string]any, required []string) anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        name,
			Description: anthropic.String(description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		},
	}
}

// Invoke runs the named tool and returns its result text. isError reports
// a failed or denied invocation; the text then describes what went wrong.
func (t *ToolSet) Invoke(ctx context.Context, name string, input json.RawMessage) (result string, isError bool) {
	var args struct {
		Command string `json:"command"`
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return fmt.Sprintf("invalid tool input: %v", err), true
	}

	L_debug("agent: tool invoked", "tool", name)

	switch name {
	case "run_command":
		if strings.TrimSpace(args.Command) == "" {
			return "run_command requires a command", true
		}
		if !t.approvals.RequestApproval(ctx, approval.ActionCommand,
			fmt.Sprintf("Run command: %s", args.Command), args.Command, approval.RequestOptions{}) {
			return "The user did not approve running this command.", true
		}
		res, err := t.exec.RunCommand(ctx, args.Command)
		if err != nil {
			return err.Error(), true
		}
		if res.ExitCode != 0 {
			return fmt.Sprintf("exit code %d\n%s", res.ExitCode, res.Output), true
		}
		return res.Output, false

	case "read_file":
		if args.Path == "" {
			return "read_file requires a path", true
		}
		if !t.approvals.RequestFolderAccess(ctx, args.Path) {
			return "The user did not approve access to this folder.", true
		}
		content, err := t.exec.ReadFile(args.Path)
		if err != nil {
			return err.Error(), true
		}
		return content, false

	case "write_file":
		if args.Path == "" {
			return "write_file requires a path", true
		}
		if !t.approvals.RequestFolderAccess(ctx, args.Path) {
			return "The user did not approve access to this folder.", true
		}
		if !t.approvals.RequestApproval(ctx, approval.ActionWriteFile,
			fmt.Sprintf("Write file: %s", args.Path), args.Path, approval.RequestOptions{}) {
			return "The user did not approve writing this file.", true
		}
		if err := t.exec.WriteFile(args.Path, args.Content); err != nil {
			return err.Error(), true
		}
		return fmt.Sprintf("wrote %d bytes to %s", len(args.Content), args.Path), false

	case "list_directory":
		path := args.Path
		if path == "" {
			path = "."
		}
		if !t.approvals.RequestFolderAccess(ctx, path) {
			return "The user did not approve access to this folder.", true
		}
		entries, err := t.exec.ListDirectory(path)
		if err != nil {
			return err.Error(), true
		}
		var b strings.Builder
		for _, e := range entries {
			if e.IsDir {
				fmt.Fprintf(&b, "%s/\n", e.Name)
			} else {
				fmt.Fprintf(&b, "%s (%d bytes)\n", e.Name, e.Size)
			}
		}
		if b.Len() == 0 {
			return "(empty directory)", false
		}
		return b.String(), false

	default:
		return fmt.Sprintf("unknown tool: %s", name), true
	}
}
