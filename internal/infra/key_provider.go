package infra

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliteGoblin/focusd/focustab/internal/domain"
)

const (
	storeKeyFileName = ".records.key"
	storeKeySize     = 32

	// StoreKeyEnv supplies the record key directly, bypassing the key file.
	StoreKeyEnv = "FOCUSTAB_STORE_KEY"
)

// ErrKeyPermissions is returned when the key file is readable by group or others.
var ErrKeyPermissions = errors.New("record key file must only be accessible by its owner")

// FileKeyProvider keeps the record store key hex-encoded in the data directory.
type FileKeyProvider struct {
	keyPath string
}

// NewFileKeyProvider creates a FileKeyProvider for the given data directory.
func NewFileKeyProvider(dataDir string) *FileKeyProvider {
	return &FileKeyProvider{
		keyPath: filepath.Join(dataDir, storeKeyFileName),
	}
}

// GetKey returns the key from StoreKeyEnv when set, otherwise from the key file.
func (p *FileKeyProvider) GetKey() ([]byte, error) {
	if v := os.Getenv(StoreKeyEnv); v != "" {
		return decodeStoreKey(v)
	}

	info, err := os.Stat(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("stat key file: %w", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return nil, fmt.Errorf("%w: %s has mode %o", ErrKeyPermissions, p.keyPath, info.Mode().Perm())
	}

	raw, err := os.ReadFile(p.keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return decodeStoreKey(string(raw))
}

// StoreKey writes the key file (0600) through a temp file and rename.
func (p *FileKeyProvider) StoreKey(key []byte) error {
	if len(key) != storeKeySize {
		return fmt.Errorf("invalid key size: got %d, want %d", len(key), storeKeySize)
	}
	dir := filepath.Dir(p.keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, storeKeyFileName+".*")
	if err != nil {
		return fmt.Errorf("create temp key file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(hex.EncodeToString(key) + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("write key file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.keyPath)
}

// KeyExists reports whether a key is available from the environment or the key file.
func (p *FileKeyProvider) KeyExists() bool {
	if os.Getenv(StoreKeyEnv) != "" {
		return true
	}
	_, err := os.Stat(p.keyPath)
	return err == nil
}

func decodeStoreKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(key) != storeKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(key), storeKeySize)
	}
	return key, nil
}

// GenerateKey returns a fresh random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, storeKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// EnsureKey returns the existing key or creates and stores a new one.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var _ domain.KeyProvider = (*FileKeyProvider)(nil)
