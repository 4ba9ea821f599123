package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Account holds the validated cookies of one platform identity
type Account struct {
	Identity     string            `json:"identity"`
	DisplayName  string            `json:"display_name,omitempty"`
	Cookies      map[string]string `json:"cookies"`
	UserAgent    string            `json:"user_agent,omitempty"`
	LastModified time.Time         `json:"last_modified"`
}

// Store is the interface for storing and retrieving credentials
type Store interface {
	// Store saves credentials for an identity
	Store(account *Account) error

	// Retrieve gets credentials for a specific identity
	Retrieve(identity string) (*Account, error)

	// List returns all stored accounts
	List() ([]*Account, error)

	// Delete removes credentials for a specific identity
	Delete(identity string) error

	// Exists checks if credentials exist for an identity
	Exists(identity string) bool
}

// Manager layers several stores with fallback: keyring first, encrypted
// file second, optionally Redis.
type Manager struct {
	stores []Store
}

// NewManager creates a credential manager with the default storage backends
func NewManager() (*Manager, error) {
	var stores []Store

	// Keyring first (system keychain), skipped when unavailable
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := configDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a Manager with an explicit store chain
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// AddStore appends a store to the end of the fallback chain
func (m *Manager) AddStore(store Store) {
	m.stores = append(m.stores, store)
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(account *Account) error {
	if account == nil || account.Identity == "" {
		return ErrInvalidCredentials
	}
	if len(account.Cookies) == 0 {
		return errors.New("cookies are required")
	}

	account.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(account); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(identity string) (*Account, error) {
	for _, store := range m.stores {
		if account, err := store.Retrieve(identity); err == nil && account != nil {
			return account, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for identity: %s", identity)
}

// List returns all stored accounts across all stores, newest version wins
func (m *Manager) List() ([]*Account, error) {
	accountMap := make(map[string]*Account)

	for _, store := range m.stores {
		accounts, err := store.List()
		if err != nil {
			continue
		}
		for _, account := range accounts {
			if existing, ok := accountMap[account.Identity]; !ok || account.LastModified.After(existing.LastModified) {
				accountMap[account.Identity] = account
			}
		}
	}

	var result []*Account
	for _, account := range accountMap {
		result = append(result, account)
	}

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(identity string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(identity); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for identity: %s", identity)
	}

	return nil
}

// Exists reports whether any store has credentials for the identity
func (m *Manager) Exists(identity string) bool {
	for _, store := range m.stores {
		if store.Exists(identity) {
			return true
		}
	}
	return false
}

// configDirectory returns the configuration directory path
func configDirectory() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "snscraper")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "snscraper")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "snscraper")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "snscraper")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize creates a copy of the account with cookie values masked for
// display
func Sanitize(account *Account) *Account {
	if account == nil {
		return nil
	}

	masked := make(map[string]string, len(account.Cookies))
	for k, v := range account.Cookies {
		masked[k] = maskString(v)
	}

	return &Account{
		Identity:     account.Identity,
		DisplayName:  account.DisplayName,
		Cookies:      masked,
		UserAgent:    account.UserAgent,
		LastModified: account.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
