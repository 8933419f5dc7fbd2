// Command goose-mcp serves the bundled memory tool server over stdio.
// Configure it as a stdio extension:
//
//	extensions:
//	  memory:
//	    enabled: true
//	    config:
//	      kind: stdio
//	      cmd: goose-mcp
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/goosehq/goose/internal/config"
	"github.com/goosehq/goose/pkg/mcpserver/memory"
)

func main() {
	dir := os.Getenv("GOOSE_MEMORY_DIR")
	if dir == "" {
		dir = filepath.Join(config.GetPaths().Data, "memory")
	}

	store, err := memory.NewStore(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "goose-mcp: %v\n", err)
		os.Exit(1)
	}

	if err := server.ServeStdio(memory.NewServer(store)); err != nil {
		fmt.Fprintf(os.Stderr, "goose-mcp: %v\n", err)
		os.Exit(1)
	}
}
