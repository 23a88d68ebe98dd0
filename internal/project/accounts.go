package project

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/manifest-network/trampoline/sdk/account"
)

var ErrAccountNotFound = errors.New("account not found")

// Keystore is the exported, password protected form of an account.
type Keystore struct {
	LockArg string          `json:"lock_arg"`
	Crypto  *account.Crypto `json:"crypto"`
}

// AccountManager stores accounts as files named after their lock arg and
// holding the hex secret key.
type AccountManager struct {
	RootDir string
}

func NewAccountManager(rootDir string) *AccountManager {
	return &AccountManager{RootDir: rootDir}
}

func (m *AccountManager) CreateAccount() (*account.Account, error) {
	a, err := account.NewAccount()
	if err != nil {
		return nil, err
	}
	return a, m.write(a)
}

// ImportAccount saves the account of a hex secret key.
func (m *AccountManager) ImportAccount(sk string) (*account.Account, error) {
	a, err := account.AccountFromHex(sk)
	if err != nil {
		return nil, err
	}
	return a, m.write(a)
}

func (m *AccountManager) write(a *account.Account) error {
	if err := os.MkdirAll(m.RootDir, 0o700); err != nil {
		return fmt.Errorf("failed to create accounts directory: %w", err)
	}
	path := filepath.Join(m.RootDir, a.LockArgHex())
	if err := os.WriteFile(path, []byte(a.SecretHex()), 0o600); err != nil {
		return fmt.Errorf("failed to write account %s: %w", a.LockArgHex(), err)
	}
	return nil
}

func (m *AccountManager) Get(lockArg string) (*account.Account, error) {
	b, err := os.ReadFile(filepath.Join(m.RootDir, lockArg))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, lockArg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read account %s: %w", lockArg, err)
	}
	return account.AccountFromHex(string(b))
}

// List returns the lock args of every stored account, sorted.
func (m *AccountManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.RootDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if b, err := hex.DecodeString(e.Name()); err != nil || len(b) != 20 {
			continue
		}
		out = append(out, e.Name())
	}
	slices.Sort(out)
	return out, nil
}

func (m *AccountManager) ExportKeystore(lockArg string, password []byte) (*Keystore, error) {
	a, err := m.Get(lockArg)
	if err != nil {
		return nil, err
	}
	c, err := account.EncryptKey(a.Secret(), password)
	if err != nil {
		return nil, err
	}
	return &Keystore{LockArg: lockArg, Crypto: c}, nil
}

// ImportKeystore decrypts a keystore file and stores the account.
func (m *AccountManager) ImportKeystore(b []byte, password []byte) (*account.Account, error) {
	var ks Keystore
	if err := json.Unmarshal(b, &ks); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}
	if ks.Crypto == nil {
		return nil, errors.New("keystore has no crypto section")
	}
	secret, err := ks.Crypto.DecryptKey(password)
	if err != nil {
		return nil, err
	}
	return m.ImportAccount(hex.EncodeToString(secret))
}
