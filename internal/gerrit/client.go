package gerrit

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrNoAuth indicates no usable SSH authentication method was found.
var ErrNoAuth = errors.New("no SSH key or agent available")

// PassphraseFunc prompts the user for an SSH key passphrase.
type PassphraseFunc func(prompt string) ([]byte, error)

// ClientConfig holds the connection parameters for a Gerrit SSH endpoint.
type ClientConfig struct {
	Host     string
	Port     int
	Username string

	// KeyPath is an explicit private key. When empty, the default
	// ~/.ssh identity files are tried.
	KeyPath string

	// Passphrase is invoked once when the private key is encrypted.
	// A nil func turns an encrypted key into a connection error.
	Passphrase PassphraseFunc

	// Timeout bounds the TCP dial. Zero means 10 seconds.
	Timeout time.Duration
}

// Client is an established SSH connection to Gerrit.
type Client struct {
	conn *ssh.Client
}

// defaultKeyNames are tried under ~/.ssh when no key path is configured.
var defaultKeyNames = []string{"id_ed25519", "id_rsa", "id_ecdsa"}

// Dial connects and authenticates to the Gerrit SSH port.
func Dial(cfg ClientConfig) (*Client, error) {
	auth, err := authMethods(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	conn, err := ssh.Dial("tcp", addr, sshCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close tears down the SSH connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// run executes a single command and returns its stdout.
func (c *Client) run(command string) ([]byte, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening SSH session: %w", err)
	}
	defer session.Close()

	out, err := session.Output(command)
	if err != nil {
		return nil, fmt.Errorf("running %q: %w", command, err)
	}
	return out, nil
}

// authMethods assembles SSH auth in preference order: agent, then key files.
func authMethods(cfg ClientConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	for _, path := range keyCandidates(cfg.KeyPath) {
		signer, err := loadSigner(path, cfg.Passphrase)
		if err != nil {
			// An explicitly configured key that fails to load is fatal;
			// a missing default identity is not.
			if cfg.KeyPath != "" {
				return nil, fmt.Errorf("loading SSH key %s: %w", path, err)
			}
			continue
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, ErrNoAuth
	}
	return methods, nil
}

// keyCandidates returns the key paths to try, most specific first.
func keyCandidates(explicit string) []string {
	if explicit != "" {
		return []string{expandHome(explicit)}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	paths := make([]string, 0, len(defaultKeyNames))
	for _, name := range defaultKeyNames {
		paths = append(paths, filepath.Join(home, ".ssh", name))
	}
	return paths
}

// loadSigner parses a private key file, prompting for a passphrase once if
// the key is encrypted.
func loadSigner(path string, prompt PassphraseFunc) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}

	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, err
	}
	if prompt == nil {
		return nil, err
	}

	passphrase, perr := prompt(fmt.Sprintf("Passphrase for %s: ", path))
	if perr != nil {
		return nil, perr
	}
	return ssh.ParsePrivateKeyWithPassphrase(data, passphrase)
}

// hostKeyCallback verifies against ~/.ssh/known_hosts when present. Hosts
// not yet in the file are accepted (trust on first use); a key mismatch for
// a known host is still rejected.
func hostKeyCallback() ssh.HostKeyCallback {
	home, err := os.UserHomeDir()
	if err != nil {
		return ssh.InsecureIgnoreHostKey()
	}

	known, err := knownhosts.New(filepath.Join(home, ".ssh", "known_hosts"))
	if err != nil {
		return ssh.InsecureIgnoreHostKey()
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := known(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) && len(keyErr.Want) == 0 {
			// Unknown host, not a mismatch.
			return nil
		}
		return err
	}
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
