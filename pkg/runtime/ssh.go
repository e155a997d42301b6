package runtime

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/convergerun/converge/pkg/common"
	"github.com/convergerun/converge/pkg/config"
	"github.com/convergerun/converge/pkg/sshpool"
	desopssshpool "github.com/desops/sshpool"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHConnection multiplexes command and file-transfer sessions to one remote
// host over a pooled SSH transport.
type SSHConnection struct {
	host       string
	addr       string
	manager    *sshpool.Manager
	pool       *desopssshpool.Pool
	sftpClient *sftp.Client
	cfg        *config.Config
}

// All SSH connections in a process share one pool manager, so parallel host
// runs against the same address reuse transports.
var (
	poolManagerMu sync.Mutex
	poolManager   *sshpool.Manager
)

func sharedPoolManager(cfg *config.Config) *sshpool.Manager {
	poolManagerMu.Lock()
	defer poolManagerMu.Unlock()
	if poolManager == nil {
		poolManager = sshpool.NewManager(cfg)
	}
	return poolManager
}

// ClosePools tears down every pooled SSH transport. Call once after all host
// runs finish.
func ClosePools() error {
	poolManagerMu.Lock()
	defer poolManagerMu.Unlock()
	if poolManager == nil {
		return nil
	}
	err := poolManager.Close()
	poolManager = nil
	return err
}

// NewSSHConnection opens a pooled SSH connection to the given host. Transient
// dial failures are retried with exponential backoff up to the configured
// number of connect retries; authentication failures abort immediately.
func NewSSHConnection(host, address string, hostVars map[string]interface{}, cfg *config.Config) (*SSHConnection, error) {
	port := 22
	if cfg != nil && cfg.SSH.Port != 0 {
		port = cfg.SSH.Port
	}
	if v, ok := hostVars["ssh_port"].(int); ok && v != 0 {
		port = v
	}
	if address == "" {
		address = host
	}
	addr := net.JoinHostPort(address, strconv.Itoa(port))

	manager := sharedPoolManager(cfg)
	pool, err := manager.GetPool(addr, hostVars)
	if err != nil {
		return nil, err
	}

	c := &SSHConnection{
		host:    host,
		addr:    addr,
		manager: manager,
		pool:    pool,
		cfg:     cfg,
	}

	retries := 3
	backoff := 500 * time.Millisecond
	if cfg != nil {
		if cfg.SSH.ConnectRetries > 0 {
			retries = cfg.SSH.ConnectRetries
		}
		if cfg.Retry.BaseBackoff > 0 {
			backoff = cfg.Retry.BaseBackoff
		}
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			common.LogWarn("Retrying SSH connection", map[string]interface{}{
				"host":    host,
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   lastErr.Error(),
			})
			time.Sleep(backoff)
			backoff *= 2
		}
		sftpSession, err := pool.GetSFTP(addr)
		if err != nil {
			lastErr = classifyDialError(host, err)
			var authErr *AuthError
			if errors.As(lastErr, &authErr) {
				return nil, lastErr
			}
			continue
		}
		// The sshpool SFTP session embeds the underlying sftp.Client
		c.sftpClient = sftpSession.Client
		return c, nil
	}
	return nil, lastErr
}

func (c *SSHConnection) Host() string { return c.host }

// Execute runs a command on the remote host using a pooled session.
func (c *SSHConnection) Execute(command string, opts *CommandOptions) (*CommandResult, error) {
	if command == "" {
		return nil, fmt.Errorf("command is empty")
	}

	session, err := c.pool.Get(c.addr)
	if err != nil {
		return nil, classifyDialError(c.host, err)
	}
	defer session.Put()

	cmdToRun := buildCommand(command, opts)
	common.DebugOutput("Running remote command on %s: %s", c.host, cmdToRun)

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	rc := 0
	if err := session.Run(cmdToRun); err != nil {
		if exitError, ok := err.(*ssh.ExitError); ok {
			rc = exitError.ExitStatus()
		} else if isTransientExecError(err) {
			return nil, &ConnectionError{Host: c.host, Err: err}
		} else {
			return nil, fmt.Errorf("failed to run remote command %q on host %s: %w", cmdToRun, c.host, err)
		}
	}

	if sudoErr := checkSudoPasswordError(stderr.String(), c.host); sudoErr != nil {
		return NewCommandResult(cmdToRun, rc, stdout.String(), stderr.String()), sudoErr
	}
	return NewCommandResult(cmdToRun, rc, stdout.String(), stderr.String()), nil
}

// WriteFile writes content to a remote file over SFTP, then applies mode and
// owner.
func (c *SSHConnection) WriteFile(path, content, owner, mode string) error {
	remoteDir := filepath.Dir(path)
	if err := c.sftpClient.MkdirAll(remoteDir); err != nil && !os.IsExist(err) {
		return fmt.Errorf("failed to create remote directory %s on %s: %w", remoteDir, c.host, err)
	}

	f, err := c.sftpClient.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create remote file %s on %s: %w", path, c.host, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			common.LogWarn("Failed to close remote file", map[string]interface{}{
				"file":  path,
				"host":  c.host,
				"error": err.Error(),
			})
		}
	}()

	if _, err := f.Write([]byte(content)); err != nil {
		return fmt.Errorf("failed to write data to remote file %s on %s: %w", path, c.host, err)
	}

	if mode != "" {
		parsed, err := ParseFileMode(mode)
		if err != nil {
			return err
		}
		if err := c.sftpClient.Chmod(path, parsed); err != nil {
			return fmt.Errorf("failed to set mode %s on remote file %s on %s: %w", mode, path, c.host, err)
		}
	}
	if owner != "" {
		result, err := c.Execute(fmt.Sprintf("chown %s %s", owner, path), nil)
		if err != nil {
			return err
		}
		if result.Failed() {
			return fmt.Errorf("failed to chown %s to %s on %s: %s", path, owner, c.host, result.Stderr)
		}
	}
	return nil
}

// ReadFile reads the content of a remote file over SFTP.
func (c *SSHConnection) ReadFile(path string) ([]byte, error) {
	f, err := c.sftpClient.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file not found: %s on host %s", path, c.host)
		}
		return nil, fmt.Errorf("failed to open remote file %s on %s: %w", path, c.host, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			common.LogWarn("Failed to close remote file", map[string]interface{}{
				"file":  path,
				"host":  c.host,
				"error": err.Error(),
			})
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read data from remote file %s on %s: %w", path, c.host, err)
	}
	return data, nil
}

// Stat retrieves remote file information. Uses Lstat to handle symlinks.
func (c *SSHConnection) Stat(path string) (os.FileInfo, error) {
	return c.sftpClient.Lstat(path)
}

func (c *SSHConnection) Close() error {
	if c.manager != nil {
		c.manager.CloseHost(c.addr)
		c.manager = nil
		c.pool = nil
	}
	return nil
}
