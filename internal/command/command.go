// Package command recognizes and executes structured slash commands.
package command

import (
	"strings"
)

// Command names.
const (
	NameBacktest = "backtest"
	NameResults  = "results"
	NameRecent   = "recent"
	NameLogs     = "logs"
	NameHelp     = "help"
)

// Error classifications carried on failed results.
const (
	ErrKindMissingArgument = "missing_argument"
	ErrKindInvalidArgument = "invalid_argument"
	ErrKindRequestFailed   = "request_failed"
	ErrKindNotFound        = "not_found"
)

// Command is a parsed structured instruction. It exists only for the
// duration of one dispatch.
type Command struct {
	Name string
	Args []string
	Raw  string
}

// Result is the outcome of executing a Command.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
	Payload any    `json:"payload,omitempty"`
	ErrKind string `json:"error,omitempty"`
}

// knownNames maps accepted command tokens to canonical names.
var knownNames = map[string]string{
	NameBacktest: NameBacktest,
	NameResults:  NameResults,
	NameRecent:   NameRecent,
	NameLogs:     NameLogs,
	NameHelp:     NameHelp,
	"commands":   NameHelp,
}

// Parse extracts a Command from raw turn text. The match is a case-insensitive
// prefix on a leading /<name> token followed by whitespace-delimited
// arguments. Text that is not a known command returns (nil, false) so the
// turn falls through to generation.
func Parse(text string) (*Command, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, false
	}

	fields := strings.Fields(trimmed)
	token := strings.ToLower(strings.TrimPrefix(fields[0], "/"))

	name, ok := knownNames[token]
	if !ok {
		return nil, false
	}

	return &Command{
		Name: name,
		Args: fields[1:],
		Raw:  trimmed,
	}, true
}
