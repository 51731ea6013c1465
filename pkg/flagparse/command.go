package flagparse

import (
	"fmt"

	"github.com/logsweep/logsweep/pkg/util"
)

// Command defines the command to execute.
type Command int

const (
	None = iota
	Daemon
	Run
	List
	TestConnect
	History
	Init
	Version
)

var commandToString = map[Command]string{
	None:        "none",
	Daemon:      "daemon",
	Run:         "run",
	List:        "list",
	TestConnect: "test-connect",
	History:     "history",
	Init:        "init",
	Version:     "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'daemon', 'run', 'list', 'test-connect', 'history', 'init', or 'version'", s)
}
