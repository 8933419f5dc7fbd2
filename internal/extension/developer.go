package extension

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/goosehq/goose/pkg/types"
)

const (
	defaultShellTimeout = 120 * time.Second
	maxShellTimeout     = 10 * time.Minute
	maxOutputLength     = 30000
)

const shellDescription = `Executes a shell command and returns its combined output.

Usage:
- command is required
- Optional timeout in milliseconds (max 600000)
- Output is captured from stdout and stderr
- Commands run in their own process group for proper cleanup`

const textEditorDescription = `Views and edits files.

Commands:
- view: read a file, optionally a line range
- write: create or overwrite a file with the given text
- str_replace: replace one exact occurrence of old_str with new_str`

// NewDeveloperExtension builds the bundled developer extension: a shell
// tool and a text editor.
func NewDeveloperExtension() *Builtin {
	return &Builtin{
		Name:         "developer",
		Instructions: "The developer extension runs shell commands and edits files in the working directory.",
		Tools: []BuiltinTool{
			{
				Tool: types.Tool{
					Name:        "shell",
					Description: shellDescription,
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"command": {"type": "string", "description": "The command to execute"},
							"timeout": {"type": "integer", "description": "Optional timeout in milliseconds (max 600000)"}
						},
						"required": ["command"]
					}`),
				},
				Run: runShell,
			},
			{
				Tool: types.Tool{
					Name:        "text_editor",
					Description: textEditorDescription,
					InputSchema: json.RawMessage(`{
						"type": "object",
						"properties": {
							"command": {"type": "string", "description": "view, write, or str_replace"},
							"path": {"type": "string", "description": "Absolute or working-dir-relative file path"},
							"file_text": {"type": "string", "description": "Content for write"},
							"old_str": {"type": "string", "description": "Exact text to replace for str_replace"},
							"new_str": {"type": "string", "description": "Replacement text for str_replace"}
						},
						"required": ["command", "path"]
					}`),
				},
				Run: runTextEditor,
			},
		},
	}
}

type shellInput struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"` // milliseconds
}

func runShell(ctx context.Context, args json.RawMessage, notify func(JSONRPCMessage)) ([]types.Content, error) {
	var input shellInput
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.Command == "" {
		return nil, fmt.Errorf("command is required")
	}

	timeout := defaultShellTimeout
	if input.Timeout > 0 {
		timeout = time.Duration(input.Timeout) * time.Millisecond
		if timeout > maxShellTimeout {
			timeout = maxShellTimeout
		}
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, shellPath(), "/c", input.Command)
	} else {
		cmd = exec.CommandContext(cmdCtx, shellPath(), "-c", input.Command)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	cmd.Env = os.Environ()

	notify(notifyMessage("info", fmt.Sprintf("running: %s", input.Command)))

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > maxOutputLength {
		result = result[:maxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		return nil, fmt.Errorf("command timed out after %v:\n%s", timeout, result)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("command exited with code %d:\n%s", exitErr.ExitCode(), result)
		}
		return nil, fmt.Errorf("command failed: %v", err)
	}

	return []types.Content{types.NewTextContent(result)}, nil
}

func shellPath() string {
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if s := os.Getenv("SHELL"); s != "" && !strings.HasSuffix(s, "fish") && !strings.HasSuffix(s, "nu") {
		return s
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}

type textEditorInput struct {
	Command  string `json:"command"`
	Path     string `json:"path"`
	FileText string `json:"file_text,omitempty"`
	OldStr   string `json:"old_str,omitempty"`
	NewStr   string `json:"new_str,omitempty"`
}

func runTextEditor(ctx context.Context, args json.RawMessage, notify func(JSONRPCMessage)) ([]types.Content, error) {
	var input textEditorInput
	if err := json.Unmarshal(args, &input); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	if input.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	path := input.Path
	if !filepath.IsAbs(path) {
		wd, _ := os.Getwd()
		path = filepath.Join(wd, path)
	}

	switch input.Command {
	case "view":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		text := string(data)
		if len(text) > maxOutputLength {
			text = text[:maxOutputLength] + "\n\n(File truncated)"
		}
		return []types.Content{types.NewTextContent(text)}, nil

	case "write":
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, []byte(input.FileText), 0644); err != nil {
			return nil, err
		}
		return []types.Content{types.NewTextContent(fmt.Sprintf("Wrote %d bytes to %s", len(input.FileText), path))}, nil

	case "str_replace":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		content := string(data)

		count := strings.Count(content, input.OldStr)
		if input.OldStr == "" || count == 0 {
			return nil, fmt.Errorf("old_str not found in %s", path)
		}
		if count > 1 {
			return nil, fmt.Errorf("old_str matches %d locations in %s; provide more context", count, path)
		}

		updated := strings.Replace(content, input.OldStr, input.NewStr, 1)
		if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
			return nil, err
		}

		return []types.Content{types.NewTextContent(
			fmt.Sprintf("Edited %s:\n%s", path, unifiedPreview(content, updated)),
		)}, nil

	default:
		return nil, fmt.Errorf("unknown text_editor command: %s", input.Command)
	}
}

// unifiedPreview renders a compact diff of an edit for the model to
// confirm what changed.
func unifiedPreview(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	dmp.DiffCleanupSemantic(diffs)

	var sb strings.Builder
	for _, d := range diffs {
		text := d.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			sb.WriteString("+ " + text + "\n")
		case diffmatchpatch.DiffDelete:
			sb.WriteString("- " + text + "\n")
		}
	}
	if sb.Len() == 0 {
		return "(no visible change)"
	}
	return sb.String()
}
