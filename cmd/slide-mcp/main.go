package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/ironsheep/slide-tools-mcp/internal/config"
	"github.com/ironsheep/slide-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	flags := pflag.NewFlagSet("slide-tools-mcp", pflag.ContinueOnError)
	configPath := flags.String("config", config.Path(), "path to the YAML configuration file")
	showVersion := flags.BoolP("version", "v", false, "print version information")
	showHelp := flags.BoolP("help", "h", false, "print this help message")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("slide-tools-mcp %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	}
	if *showHelp {
		fmt.Println("slide-tools-mcp - MCP server for tiled slide images")
		fmt.Println()
		fmt.Println("Usage: slide-tools-mcp [options]")
		fmt.Println()
		fmt.Println("Options:")
		flags.SetOutput(os.Stdout)
		flags.PrintDefaults()
		fmt.Println()
		fmt.Println("Environment variables:")
		fmt.Printf("  %s=<path>     Configuration file\n", config.EnvConfigPath)
		fmt.Printf("  %s=debug   Enable debug logging\n", config.EnvLogLevel)
		fmt.Println()
		fmt.Println("This server communicates via MCP protocol over stdin/stdout.")
		fmt.Println("Configure it in your MCP client (e.g., Claude Desktop).")
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Logging goes to stderr; stdout is for MCP protocol
	logger := cfg.NewLogger()
	logger.Debug("starting slide MCP server",
		"version", Version, "built", BuildTime, "commit", GitCommit, "config", *configPath)

	server.Version = Version
	srv := server.New(cfg, logger)
	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
