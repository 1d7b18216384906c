package models

import "strings"

// CommandType enumerates supported worker command categories.
type CommandType string

const (
	CommandFeed      CommandType = "feed"
	CommandMortality CommandType = "mortality"
	CommandWeight    CommandType = "weight"
	CommandEggs      CommandType = "eggs"
	CommandWater     CommandType = "water"
	CommandStatus    CommandType = "status"
	CommandHelp      CommandType = "help"
	CommandUnknown   CommandType = "unknown"
)

// Command represents a parsed worker instruction extracted from WhatsApp text.
// Tokens of the form key=value land in Options, everything else in Args.
type Command struct {
	Type    CommandType
	Raw     string
	Args    []string
	Options map[string]string
}

// Metric returns the metric a recording command targets.
func (c Command) Metric() (MetricKind, bool) {
	switch c.Type {
	case CommandFeed, CommandMortality, CommandWeight, CommandEggs, CommandWater:
		return MetricKind(c.Type), true
	default:
		return "", false
	}
}

// ParseCommand derives a Command instance from free-form text messages.
func ParseCommand(message string) Command {
	cmd := Command{Raw: message, Type: CommandUnknown}

	tokens := strings.Fields(strings.TrimSpace(message))
	if len(tokens) == 0 {
		return cmd
	}

	head := strings.ToLower(strings.TrimPrefix(tokens[0], "/"))
	switch CommandType(head) {
	case CommandFeed, CommandMortality, CommandWeight, CommandEggs, CommandWater, CommandStatus, CommandHelp:
		cmd.Type = CommandType(head)
	}

	for _, tok := range tokens[1:] {
		if key, value, ok := strings.Cut(tok, "="); ok && key != "" {
			if cmd.Options == nil {
				cmd.Options = make(map[string]string)
			}
			cmd.Options[strings.ToLower(key)] = value
			continue
		}
		cmd.Args = append(cmd.Args, tok)
	}

	return cmd
}
