package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/quire/internal/config"
	"github.com/hpungsan/quire/internal/db"
	"github.com/hpungsan/quire/internal/logging"
	"github.com/hpungsan/quire/internal/mcp"
	"github.com/hpungsan/quire/internal/ops"
	"github.com/hpungsan/quire/internal/template"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"session": true, "context": true, "draft": true, "finalize": true,
	"turn": true, "task": true, "insights": true, "search": true,
	"entries": true, "template": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func printBanner() {
	fmt.Println(`
    ___  _   _ ___ ____  _____
   / _ \| | | |_ _|  _ \| ____|
  | | | | | | || || |_) |  _|
  | |_| | |_| || ||  _ <| |___
   \__\_\\___/|___|_| \_\_____|

  Conversational journal drafting

  Usage: quire <command> [options]
         quire --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'quire --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fatal("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".quire")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		fatal("invalid logging config: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown disabled_tools entries", zap.Strings("names", unknown))
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown disabled_types entries", zap.Strings("names", unknown))
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	registry, err := template.NewRegistry(template.FileLoader(cfg.TemplatePath), logger.Named("template"))
	if err != nil {
		fatal("failed to load template: %v", err)
	}

	svc := ops.New(database, cfg, registry, ops.Options{BaseDir: baseDir, Logger: logger})

	if isCLIMode() {
		app := newCLIApp(svc, logger)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopWatch, err := svc.WatchTemplate(ctx)
	if err != nil {
		logger.Warn("template watcher disabled", zap.Error(err))
		stopWatch = func() {}
	}
	defer stopWatch()

	if err := mcp.Run(svc, cfg, Version, logger); err != nil {
		logger.Error("mcp server stopped", zap.Error(err))
		os.Exit(1)
	}
}
