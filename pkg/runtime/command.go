package runtime

import (
	"fmt"
	"strings"
)

// CommandResult represents the result of a command execution
type CommandResult struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
}

func NewCommandResult(command string, exitCode int, stdout, stderr string) *CommandResult {
	return &CommandResult{
		Command:  command,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
}

// Failed reports whether the command exited non-zero.
func (cr *CommandResult) Failed() bool {
	return cr.ExitCode != 0
}

// CommandOptions holds configuration for command execution
type CommandOptions struct {
	BecomeUser string
	UseShell   bool
}

// WithBecomeUser sets the user the command runs as via sudo
func (co *CommandOptions) WithBecomeUser(username string) *CommandOptions {
	co.BecomeUser = username
	return co
}

// WithShell enables shell execution
func (co *CommandOptions) WithShell() *CommandOptions {
	co.UseShell = true
	return co
}

// escapeShellCommand properly escapes a command for use within bash -c '...'
func escapeShellCommand(command string) string {
	escaped := strings.ReplaceAll(command, "\r\n", "\n")
	// Escape single quotes by replacing ' with '\''
	return strings.ReplaceAll(escaped, "'", "'\\''")
}

// buildCommand constructs the final command string based on options
func buildCommand(command string, opts *CommandOptions) string {
	if command == "" {
		return ""
	}
	if opts == nil {
		opts = &CommandOptions{}
	}

	if opts.UseShell {
		command = fmt.Sprintf("/bin/bash -c '%s'", escapeShellCommand(command))
	}

	if opts.BecomeUser != "" {
		return fmt.Sprintf("sudo -n -u %s %s", opts.BecomeUser, command)
	}
	return command
}

// checkSudoPasswordError checks if the stderr indicates sudo asked for a password
func checkSudoPasswordError(stderrOutput, host string) error {
	if strings.Contains(stderrOutput, "[sudo] password") ||
		strings.Contains(stderrOutput, "sudo: no tty present") ||
		strings.Contains(stderrOutput, "sudo: a password is required") {
		return &AuthError{Host: host, Err: fmt.Errorf("sudo requires a password but the session is non-interactive")}
	}
	return nil
}

// isTransientExecError reports whether a transport error looks retryable
func isTransientExecError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "EOF")
}
