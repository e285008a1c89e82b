package account

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/launchkit/pkg/descriptor"
	"github.com/provide-io/launchkit/pkg/launcherr"
	"github.com/provide-io/launchkit/pkg/logging"
)

// FileName is the account list inside the data directory.
const FileName = "accounts.json"

// Store keeps the account list and the selected account id, mirrored to
// a JSON file after every change.
type Store struct {
	path   string
	logger hclog.Logger

	mu       sync.Mutex
	accounts []Account
	selected string
}

type storeFile struct {
	Selected string    `json:"selected"`
	Accounts []Account `json:"accounts"`
}

// OpenStore reads the store at path. A missing file is an empty store.
func OpenStore(path string, logger hclog.Logger) (*Store, error) {
	s := &Store{path: path, logger: logging.OrNull(logger).Named("account")}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts: %w", err)
	}
	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	s.accounts, s.selected = f.Accounts, f.Selected
	return s, nil
}

// List returns a copy of every account.
func (s *Store) List() []Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.accounts)
}

// Add stores a, replacing an account with the same id. The first account
// added becomes the selected one.
func (s *Store) Add(a Account) error {
	s.mu.Lock()
	if i := s.indexLocked(a.ID); i >= 0 {
		s.accounts[i] = a
	} else {
		s.accounts = append(s.accounts, a)
	}
	if s.selected == "" {
		s.selected = a.ID
	}
	f := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("👤 account stored", "id", a.ID, "kind", a.Kind, "name", a.Name)
	return s.write(f)
}

// Remove deletes the account with id. Removing the selected account
// clears the selection.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", launcherr.ErrAccountNotFound, id)
	}
	s.accounts = slices.Delete(s.accounts, i, i+1)
	if s.selected == id {
		s.selected = ""
	}
	f := s.snapshotLocked()
	s.mu.Unlock()
	return s.write(f)
}

// Select makes id the selected account.
func (s *Store) Select(id string) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", launcherr.ErrAccountNotFound, id)
	}
	s.selected = id
	f := s.snapshotLocked()
	s.mu.Unlock()
	return s.write(f)
}

// Selected returns the selected account. override, when not empty,
// replaces the stored selection.
func (s *Store) Selected(override string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.selected
	if override != "" {
		id = override
	}
	if id == "" {
		return Account{}, launcherr.ErrAccountNotFound
	}
	i := s.indexLocked(id)
	if i < 0 {
		return Account{}, fmt.Errorf("%w: %s", launcherr.ErrAccountNotFound, id)
	}
	return s.accounts[i], nil
}

// Find returns the account whose id or name matches.
func (s *Store) Find(idOrName string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == idOrName || strings.EqualFold(a.Name, idOrName) {
			return a, nil
		}
	}
	return Account{}, fmt.Errorf("%w: %s", launcherr.ErrAccountNotFound, idOrName)
}

func (s *Store) indexLocked(id string) int {
	return slices.IndexFunc(s.accounts, func(a Account) bool { return a.ID == id })
}

func (s *Store) snapshotLocked() storeFile {
	return storeFile{Selected: s.selected, Accounts: slices.Clone(s.accounts)}
}

func (s *Store) write(f storeFile) error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := descriptor.WriteFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("persist accounts: %w", err)
	}
	return nil
}
