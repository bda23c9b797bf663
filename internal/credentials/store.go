package credentials

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store persists credentials between runs.
type Store interface {
	// Load returns the stored credentials, or zero credentials when
	// nothing is stored.
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

// FileStore keeps credentials in a YAML file readable only by its owner.
// Integration with an OS keyring is left to external tooling; the file
// format is deliberately plain so it stays inspectable.
type FileStore struct {
	Path string
}

// NewFileStore returns a store backed by the given file.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// DefaultStorePath returns the credential file under the user's
// configuration directory.
func DefaultStorePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "checkit", "credentials.yaml"), nil
}

func (s *FileStore) Load() (Credentials, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("read credential file: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("parse credential file %s: %w", s.Path, err)
	}
	return creds, nil
}

func (s *FileStore) Save(creds Credentials) error {
	data, err := yaml.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	// WriteFile only applies the mode on creation.
	if err := os.Chmod(s.Path, 0o600); err != nil {
		return fmt.Errorf("restrict credential file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}
