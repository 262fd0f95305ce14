package service

import "strings"

// CommandMode selects how ad-hoc command execution is handled for a service.
type CommandMode int

const (
	// CommandsDisabled rejects every execution request.
	CommandsDisabled CommandMode = iota
	// CommandsAny allows free-form execution against any discovered
	// sub-service: the command id names the sub-service and the extra
	// arguments form the argv.
	CommandsAny
	// CommandsList allows only the explicitly configured commands.
	CommandsList
)

// Command is a named, parameterizable argv template scoped to one
// sub-service.
type Command struct {
	ID         string   `json:"id"`
	SubService string   `json:"sub_service"`
	Argv       []string `json:"argv"`
	Label      string   `json:"label"`
}

// NewCommand builds a Command, defaulting the label to the joined argv.
func NewCommand(id, subService string, argv []string, label string) Command {
	if label == "" {
		label = strings.Join(argv, " ")
	}
	return Command{ID: id, SubService: subService, Argv: argv, Label: label}
}

// Commands is the tagged variant for a service's execution policy.
type Commands struct {
	Mode CommandMode
	List []Command // populated only in CommandsList mode
}

// Find looks a command up by id in CommandsList mode.
func (c Commands) Find(id string) (Command, bool) {
	for _, cmd := range c.List {
		if cmd.ID == id {
			return cmd, true
		}
	}
	return Command{}, false
}
