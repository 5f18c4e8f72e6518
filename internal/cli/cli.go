// cli.go - argument parsing and usage for the chatvault CLI.

// Package cli implements the chatvault command line interface: argument
// parsing, configuration and one handler per command.
package cli

import (
	"fmt"
	"os"
	"strings"
)

// Version information (can be overridden at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command identifies the CLI command to execute.
type Command int

const (
	CmdList Command = iota
	CmdShow
	CmdSearch
	CmdBranch
	CmdTitle
	CmdDelete
	CmdStats
	CmdCheck
	CmdExport
	CmdImport
	CmdConfig
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	DBPath  string // --db
	JSON    bool   // --json
	Verbose bool   // --verbose
	Confirm bool   // --confirm, required by destructive commands

	// Command-specific flags
	Format    string // --format for show
	Narrative string // --narrative for branch
	Title     string // --title for branch

	// Subcommand is the first positional after the command, for
	// commands that take one (config show|init).
	Subcommand string

	// Raw holds the positional arguments after the command name.
	Raw []string
}

const usageText = `chatvault - local conversation archive

Chatvault keeps chat conversations, their attachments and branch
history in one SQLite file, with full-text search across every message.

Usage:
  chatvault [flags] <command> [arguments]

Commands:
  list, ls                   List conversations, most recent first
  show <id>                  Print one conversation
    --format md|json         Output format (default: md)
  search <query>             Full-text prefix search with snippets
  branch <id> <index>        Fork a conversation after message <index>
    --narrative TEXT         Why the branch was created
    --title TEXT             Title for the branch
  title <id> <text>          Rename a conversation
  delete <id> --confirm      Delete a conversation and its messages
  stats                      Show row counts and database mode
  check                      Run a database integrity check
  export [file]              Write a full JSON export (default: stdout)
  import <file> --confirm    Replace all data from a JSON export
  config [show|init]         Show resolved config or write the default file
  version                    Print version information
  help                       Show this help

Flags:
  --db PATH                  Database file (default: ~/.chatvault/chatvault.db)
  --json                     Machine readable output where supported
  --verbose, -v              Debug logging to stderr
  --confirm                  Required for destructive commands

Examples:
  chatvault list
  chatvault search "solar panel"
  chatvault show 2f1c... --format json
  chatvault branch 2f1c... 4 --narrative "Trying the other approach"
  chatvault export backup.json

Config file: ~/.chatvault/config.toml
`

// PrintUsage writes the usage text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// Parse reads os.Args into a command and its arguments.
func Parse() (Command, Args) {
	return parseArgs(os.Args[1:])
}

func parseArgs(argv []string) (Command, Args) {
	var args Args
	var positionals []string

	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		switch {
		case arg == "--db" && i+1 < len(argv):
			args.DBPath = argv[i+1]
			i++
		case strings.HasPrefix(arg, "--db="):
			args.DBPath = strings.TrimPrefix(arg, "--db=")
		case arg == "--format" && i+1 < len(argv):
			args.Format = argv[i+1]
			i++
		case strings.HasPrefix(arg, "--format="):
			args.Format = strings.TrimPrefix(arg, "--format=")
		case arg == "--narrative" && i+1 < len(argv):
			args.Narrative = argv[i+1]
			i++
		case strings.HasPrefix(arg, "--narrative="):
			args.Narrative = strings.TrimPrefix(arg, "--narrative=")
		case arg == "--title" && i+1 < len(argv):
			args.Title = argv[i+1]
			i++
		case strings.HasPrefix(arg, "--title="):
			args.Title = strings.TrimPrefix(arg, "--title=")
		case arg == "--json":
			args.JSON = true
		case arg == "--verbose" || arg == "-v":
			args.Verbose = true
		case arg == "--confirm":
			args.Confirm = true
		case arg == "--help" || arg == "-h":
			return CmdHelp, args
		default:
			positionals = append(positionals, arg)
		}
	}

	if len(positionals) == 0 {
		return CmdList, args
	}

	cmd := strings.ToLower(positionals[0])
	args.Raw = positionals[1:]
	if len(args.Raw) > 0 {
		args.Subcommand = args.Raw[0]
	}

	switch cmd {
	case "list", "ls":
		return CmdList, args
	case "show":
		return CmdShow, args
	case "search", "find":
		return CmdSearch, args
	case "branch", "fork":
		return CmdBranch, args
	case "title", "rename":
		return CmdTitle, args
	case "delete", "rm":
		return CmdDelete, args
	case "stats":
		return CmdStats, args
	case "check", "integrity":
		return CmdCheck, args
	case "export":
		return CmdExport, args
	case "import":
		return CmdImport, args
	case "config":
		return CmdConfig, args
	case "version", "-v", "--version":
		return CmdVersion, args
	case "help":
		return CmdHelp, args
	default:
		fmt.Fprintf(os.Stderr, "chatvault: unknown command %q\n\n", cmd)
		return CmdHelp, args
	}
}

// HandleVersion prints version information.
func HandleVersion(args Args) error {
	if args.JSON {
		fmt.Printf("{\"version\":%q,\"commit\":%q,\"built\":%q}\n", Version, GitCommit, BuildDate)
		return nil
	}
	fmt.Printf("chatvault %s (commit %s, built %s)\n", Version, GitCommit, BuildDate)
	return nil
}
