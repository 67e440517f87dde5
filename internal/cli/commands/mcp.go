package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EPICLab/synectic/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server",
	Long: `Serve the engine's repository, branch and metafile operations as Model
Context Protocol tools over stdio.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	server := mcp.NewServer(c, Version)
	if err := server.ServeStdio(); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
