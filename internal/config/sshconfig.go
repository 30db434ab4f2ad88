package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/kevinburke/ssh_config"
)

// MergeSSHConfig fills still-unset username and key values from the user's
// ~/.ssh/config entry for the target host. A missing ssh config file is not
// an error; there is simply nothing to merge.
func MergeSSHConfig(r *Resolved) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	f, err := os.Open(filepath.Join(home, ".ssh", "config"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	return mergeSSHConfig(f, r)
}

func mergeSSHConfig(rd io.Reader, r *Resolved) error {
	cfg, err := ssh_config.Decode(rd)
	if err != nil {
		return err
	}

	if r.Username == "" {
		if user, err := cfg.Get(r.Host, "User"); err == nil && user != "" {
			r.Username = user
		}
	}
	if r.Key == "" {
		if key, err := cfg.Get(r.Host, "IdentityFile"); err == nil && key != "" {
			r.Key = key
		}
	}

	return nil
}
