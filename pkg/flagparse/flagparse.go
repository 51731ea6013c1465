package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/logsweep/logsweep/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	Config   *string
	LogLevel *string

	// Daemon
	Tick     *int
	StateDir *string

	// Run
	Job            *string
	DryRun         *bool
	ExcludeFiles   *string
	ExcludeFolders *string

	// Test-connect
	Target *string

	// History
	Limit *int

	// Init / Run safety override
	Force *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Config = fs.String("config", "", "Path to the configuration file (JSON or YAML).")
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
}

func registerDaemonFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Tick = fs.Int("tick", 0, "Scheduler polling interval in seconds.")
	f.StateDir = fs.String("state-dir", "", "Directory for the lock file, reports and history database.")
	f.DryRun = fs.Bool("dry-run", false, "Force dry-run for every scheduled job; nothing is deleted.")
}

func registerRunFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Job = fs.String("job", "", "Name of the job to run. (Required)")
	f.DryRun = fs.Bool("dry-run", false, "Override the job's dry-run flag for this invocation.")
	f.ExcludeFiles = fs.String("exclude-files", "", "Comma-separated list of extra case-insensitive file patterns to exclude.")
	f.ExcludeFolders = fs.String("exclude-folders", "", "Comma-separated list of extra case-insensitive folder names to exclude.")
	f.Force = fs.Bool("force", false, "Allow cleaning a filesystem root path.")
}

func registerTestConnectFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Target = fs.String("target", "", "Name of the FTP target to test. (Required)")
}

func registerHistoryFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Job = fs.String("job", "", "Only show runs of this job.")
	f.Limit = fs.Int("limit", 20, "Maximum number of runs to show.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Force = fs.Bool("force", false, "Overwrite an existing configuration file.")
	f.StateDir = fs.String("state-dir", "", "Directory for the lock file, reports and history database.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Daemon:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerDaemonFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Run the scheduler daemon, firing due jobs until interrupted.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Run:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerRunFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Run one job immediately, bypassing the scheduler.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case List:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "List configured jobs with their schedules.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case TestConnect:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerTestConnectFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Connect to an FTP target, authenticate, and disconnect.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case History:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerHistoryFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Show recent job runs from the history database.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Write a starter configuration file.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		flagMap, err := flagsToMap(fs, f)
		return command, flagMap, err

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) (map[string]interface{}, error) {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base configuration.
	usedFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { usedFlags[f.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "config", f.Config)
	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)

	addIfUsed(flagMap, usedFlags, "tick", f.Tick)
	addIfUsed(flagMap, usedFlags, "state-dir", f.StateDir)

	addIfUsed(flagMap, usedFlags, "job", f.Job)
	addIfUsed(flagMap, usedFlags, "dry-run", f.DryRun)
	addIfUsed(flagMap, usedFlags, "target", f.Target)
	addIfUsed(flagMap, usedFlags, "limit", f.Limit)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	// Handle flags that require parsing/validation.
	addParsedIfUsed(flagMap, usedFlags, "exclude-files", f.ExcludeFiles, ParseExcludeList)
	addParsedIfUsed(flagMap, usedFlags, "exclude-folders", f.ExcludeFolders, ParseExcludeList)

	return flagMap, nil
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// addParsedIfUsed adds the parsed value of ptr to flagMap if ptr is not nil and the flag was set.
func addParsedIfUsed(flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *string, parser func(string) []string) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = parser(*ptr)
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Scheduled retention cleanup for local and FTP directories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  daemon        Run the scheduler daemon\n")
	fmt.Fprintf(fs.Output(), "  run           Run one job immediately\n")
	fmt.Fprintf(fs.Output(), "  list          List configured jobs\n")
	fmt.Fprintf(fs.Output(), "  test-connect  Test an FTP target connection\n")
	fmt.Fprintf(fs.Output(), "  history       Show recent job runs\n")
	fmt.Fprintf(fs.Output(), "  init          Write a starter configuration\n")
	fmt.Fprintf(fs.Output(), "  version       Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {

	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Scheduled retention cleanup for local and FTP directories.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}

// ParseCmdList parses a comma-separated list of shell-like commands.
// It preserves quotes and handles backslash escapes so they can be interpreted by the shell.
func ParseCmdList(s string) []string {
	return parseListInternal(s, true, true)
}

// ParseExcludeList parses a comma-separated list of file or directory patterns.
// It removes quotes, as they are only used for grouping items with spaces.
// It treats backslashes as literal characters for Windows path compatibility.
func ParseExcludeList(s string) []string {
	return parseListInternal(s, false, false)
}

// parseListInternal is the core implementation for parsing a comma-separated list. It supports
// both single (') and double (") quotes to allow items to contain commas or spaces.
// - `keepQuotes`: Preserves quote characters in the output.
// - `handleEscapes`: Treats backslashes as escape characters.
func parseListInternal(s string, keepQuotes, handleEscapes bool) []string {
	var list []string
	var current strings.Builder
	var quoteChar rune

	// Helper to add the current buffered item to the list after trimming whitespace.
	appendItem := func() {
		trimmed := strings.TrimSpace(current.String())
		if trimmed != "" {
			list = append(list, trimmed)
		}
		current.Reset()
	}

	var isEscaped bool
	for _, r := range s {
		if isEscaped {
			current.WriteRune(r)
			isEscaped = false
			continue
		}

		switch {
		case r == '\\' && handleEscapes:
			isEscaped = true
			// For commands, we also keep the backslash for the shell to interpret.
			current.WriteRune(r)
		case r == '\'' || r == '"':
			if quoteChar == 0 { // Start of a new quoted section.
				quoteChar = r
				if keepQuotes {
					current.WriteRune(r)
				}
			} else if quoteChar == r { // End of the current quoted section.
				quoteChar = 0
				if keepQuotes {
					current.WriteRune(r)
				}
			} else { // A different quote character inside an existing quoted section.
				current.WriteRune(r) // Treat it as a literal character.
			}
		case r == ',' && quoteChar == 0: // Comma outside of any quotes.
			appendItem()
		default:
			current.WriteRune(r)
		}
	}
	appendItem() // Add the final item after the loop finishes.
	return list
}
