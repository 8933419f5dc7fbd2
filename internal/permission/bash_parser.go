package permission

import (
	"encoding/json"
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ShellCommand represents one parsed command with its arguments.
type ShellCommand struct {
	Name       string   // Command name (e.g., "rm", "git")
	Args       []string // Command arguments
	Subcommand string   // First non-flag argument (e.g., "status" in "git status")
}

// ParseShellCommand parses a shell command line into structured commands.
// Pipelines, lists, and substitutions all contribute their calls.
func ParseShellCommand(command string) ([]ShellCommand, error) {
	parser := syntax.NewParser(
		syntax.Variant(syntax.LangBash),
		syntax.KeepComments(false),
	)

	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}

	var commands []ShellCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})

	return commands, nil
}

// extractCommand extracts command name and arguments from a CallExpr.
func extractCommand(call *syntax.CallExpr) *ShellCommand {
	if len(call.Args) == 0 {
		return nil
	}

	cmd := &ShellCommand{}

	cmd.Name = wordToString(call.Args[0])
	if cmd.Name == "" {
		return nil
	}

	for _, arg := range call.Args[1:] {
		argStr := wordToString(arg)
		cmd.Args = append(cmd.Args, argStr)

		if cmd.Subcommand == "" && !strings.HasPrefix(argStr, "-") {
			cmd.Subcommand = argStr
		}
	}

	return cmd
}

// wordToString converts a syntax.Word to a string.
func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			// Command substitution content is handled as its own call.
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// readOnlyCommands never modify state and are safe to auto-approve in
// smart_approve mode.
var readOnlyCommands = map[string]bool{
	"cat":      true,
	"date":     true,
	"df":       true,
	"du":       true,
	"echo":     true,
	"env":      true,
	"file":     true,
	"find":     true,
	"grep":     true,
	"head":     true,
	"hostname": true,
	"id":       true,
	"ls":       true,
	"printenv": true,
	"ps":       true,
	"pwd":      true,
	"rg":       true,
	"sort":     true,
	"stat":     true,
	"tail":     true,
	"tr":       true,
	"uname":    true,
	"uniq":     true,
	"uptime":   true,
	"wc":       true,
	"which":    true,
	"whoami":   true,
}

// readOnlySubcommands covers tools whose safety depends on the
// subcommand.
var readOnlySubcommands = map[string]map[string]bool{
	"git": {"status": true, "log": true, "diff": true, "show": true, "branch": true, "remote": true},
	"go":  {"version": true, "env": true, "list": true},
}

// IsReadOnlyCommand reports whether a single parsed command is on the
// read-only list.
func IsReadOnlyCommand(cmd ShellCommand) bool {
	if readOnlyCommands[cmd.Name] {
		return true
	}
	if subs, ok := readOnlySubcommands[cmd.Name]; ok {
		return subs[cmd.Subcommand]
	}
	return false
}

// IsReadOnlyShellCall inspects a shell tool call's JSON arguments and
// reports whether every command in it is read-only. Unparseable input is
// never read-only.
func IsReadOnlyShellCall(arguments json.RawMessage) bool {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(arguments, &input); err != nil || input.Command == "" {
		return false
	}

	commands, err := ParseShellCommand(input.Command)
	if err != nil || len(commands) == 0 {
		return false
	}
	for _, cmd := range commands {
		if !IsReadOnlyCommand(cmd) {
			return false
		}
	}
	return true
}
