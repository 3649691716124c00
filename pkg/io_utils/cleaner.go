package output

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SecureCleaner deletes session artifacts. The deletion surface is a
// prefix allowlist: only paths whose resolved real path starts with one
// of the configured temp prefixes are touched. Symbolic links and paths
// containing ".." are refused before resolution even starts.
type SecureCleaner struct {
	allowedPrefixes []string
}

// NewSecureCleaner builds a cleaner for the given temp roots. Prefixes
// are resolved to absolute paths up front.
func NewSecureCleaner(prefixes ...string) (*SecureCleaner, error) {
	if len(prefixes) == 0 {
		return nil, fmt.Errorf("no allowed prefixes configured")
	}
	resolved := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return nil, fmt.Errorf("resolve prefix %s: %w", prefix, err)
		}
		resolved = append(resolved, abs)
	}
	return &SecureCleaner{allowedPrefixes: resolved}, nil
}

// Delete removes a file, optionally overwriting its content first so
// raw scan output does not linger on disk.
func (c *SecureCleaner) Delete(path string, secure bool) error {
	if err := c.checkPath(path); err != nil {
		log.Warnf("Refusing to delete %s: %v", path, err)
		return err
	}

	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}

	if secure {
		if err := overwrite(path); err != nil {
			log.Warnf("Secure overwrite of %s failed: %v", path, err)
		}
	}
	return os.Remove(path)
}

// DeleteTree removes an entire session directory.
func (c *SecureCleaner) DeleteTree(dir string) error {
	if err := c.checkPath(dir); err != nil {
		log.Warnf("Refusing to delete tree %s: %v", dir, err)
		return err
	}
	return os.RemoveAll(dir)
}

func (c *SecureCleaner) checkPath(path string) error {
	if strings.Contains(path, "..") {
		return fmt.Errorf("path traversal detected")
	}

	fi, err := os.Lstat(path)
	if err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("refusing to follow symlink")
	}

	real, err := filepath.EvalSymlinks(filepath.Dir(path))
	if err != nil {
		real, err = filepath.Abs(filepath.Dir(path))
		if err != nil {
			return fmt.Errorf("resolve path: %w", err)
		}
	}
	resolved := filepath.Join(real, filepath.Base(path))

	for _, prefix := range c.allowedPrefixes {
		if strings.HasPrefix(resolved, prefix) {
			return nil
		}
	}
	return fmt.Errorf("path outside allowed temp prefixes")
}

// overwrite fills the file with random bytes before deletion.
func overwrite(path string) error {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return err
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer file.Close()

	buf := make([]byte, 64*1024)
	remaining := fi.Size()
	for remaining > 0 {
		chunk := int64(len(buf))
		if remaining < chunk {
			chunk = remaining
		}
		if _, err := rand.Read(buf[:chunk]); err != nil {
			return err
		}
		if _, err := file.Write(buf[:chunk]); err != nil {
			return err
		}
		remaining -= chunk
	}
	return file.Sync()
}
