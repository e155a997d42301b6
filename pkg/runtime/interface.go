package runtime

import "os"

// Connection is one authenticated channel to a target host. It is owned
// exclusively by a single execution engine instance for the duration of a
// run and released at run end.
type Connection interface {
	// Host returns the name of the host this connection targets.
	Host() string
	// Execute runs a command on the host and returns its result. A non-zero
	// exit code is reported in the result, not as an error; the error return
	// covers transport-level failures only.
	Execute(command string, opts *CommandOptions) (*CommandResult, error)
	// WriteFile writes content to a file on the host, applying owner and
	// mode when non-empty.
	WriteFile(path, content, owner, mode string) error
	// ReadFile reads the content of a file on the host.
	ReadFile(path string) ([]byte, error)
	// Stat retrieves file information for a path on the host.
	Stat(path string) (os.FileInfo, error)
	Close() error
}
