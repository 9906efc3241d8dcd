package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/csm-companion/internal/bridge"
	"github.com/hpungsan/csm-companion/internal/config"
	"github.com/hpungsan/csm-companion/internal/gateway"
	"github.com/hpungsan/csm-companion/internal/logging"
	"github.com/hpungsan/csm-companion/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"evaluate": true, "pulse": true, "automations": true,
	"templates": true, "quickview": true, "analytics": true,
	"serve": true, "backend": true,
	"help": true,
}

// runMode is what main does with its arguments.
type runMode int

const (
	modeMCP     runMode = iota // piped stdin, no command
	modeBanner                 // interactive, no command
	modeInfo                   // help or version, no config needed
	modeCLI                    // known command
	modeUnknown                // unknown argument on a terminal
)

func isInfoFlag(arg string) bool {
	switch arg {
	case "--help", "-h", "--version", "-v":
		return true
	}
	return false
}

// selectMode decides between the CLI and the MCP server. Unknown arguments
// only reach the MCP server when stdin is piped.
func selectMode(args []string, interactive bool) runMode {
	if len(args) < 2 {
		if interactive {
			return modeBanner
		}
		return modeMCP
	}
	arg := args[1]
	switch {
	case isInfoFlag(arg) || arg == "help":
		return modeInfo
	case cliCommands[arg]:
		return modeCLI
	case interactive:
		return modeUnknown
	default:
		return modeMCP
	}
}

// deps carries what commands need to reach the host and the backends.
type deps struct {
	cfg     *config.Config
	log     *logging.Logger
	host    bridge.Bridge
	baseDir string
}

// gateway builds a client over the host bridge.
func (d *deps) gateway(opts ...gateway.Option) *gateway.Client {
	return gateway.New(d.host, d.cfg, d.log, opts...)
}

// loadDeps reads config from ~/.companion and the repo in cwd.
func loadDeps() (*deps, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, config.DirName)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not determine working directory: %w", err)
	}

	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn("unknown tools in disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		log.Warn("unknown types in disabled_types", "types", unknown)
	}

	return &deps{
		cfg:     cfg,
		log:     log,
		host:    bridge.NewHTTPHost(cfg, log),
		baseDir: baseDir,
	}, nil
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ ___  __  __ ___  _   _  _ ___ ___  _  _
  / __/ _ \|  \/  | _ \/_\ | \| |_ _/ _ \| \| |
 | (_| (_) | |\/| |  _/ _ \| .' || | (_) | .' |
  \___\___/|_|  |_|_|/_/ \_\_|\_|___\___/|_|\_|

  Pulse checklist and guided engineering companion

  Usage: companion <command> [options]
         companion --help

  MCP server mode requires piped input.`)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {
	mode := selectMode(os.Args, isTerminal())

	switch mode {
	case modeBanner:
		printBanner()
		return
	case modeInfo:
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fail(err)
		}
		return
	case modeUnknown:
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'companion --help' for usage.\n")
		os.Exit(1)
	}

	d, err := loadDeps()
	if err != nil {
		fail(err)
	}
	defer d.log.Sync()

	if mode == modeCLI {
		if err := newCLIApp(d).Run(os.Args); err != nil {
			d.log.Sync()
			fail(err)
		}
		return
	}

	if err := mcp.Run(d.gateway(), d.cfg, Version); err != nil {
		d.log.Sync()
		fail(err)
	}
}
