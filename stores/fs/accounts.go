// Package fs stores accounts and posts as JSON files. It is meant for
// development and single-process deployments; a mutex serializes writers.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	authservice "github.com/Matidza/Auth-Service"
)

// emailIndexEntry maps a normalized email to its account.
type emailIndexEntry struct {
	AccountID string `json:"account_id"`
}

// FSAccountStore stores one file per account plus one index file per email.
type FSAccountStore struct {
	StoragePath string
	mu          sync.Mutex
}

func NewFSAccountStore(storagePath string) *FSAccountStore {
	return &FSAccountStore{StoragePath: storagePath}
}

func (s *FSAccountStore) getAccountPath(id string) string {
	// Base prevents path traversal through crafted ids.
	return filepath.Join(s.StoragePath, "accounts", filepath.Base(id)+".json")
}

func (s *FSAccountStore) getEmailPath(email string) string {
	return filepath.Join(s.StoragePath, "emails", url.PathEscape(email)+".json")
}

func (s *FSAccountStore) CreateAccount(ctx context.Context, account *authservice.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account.Email = authservice.NormalizeEmail(account.Email)
	emailPath := s.getEmailPath(account.Email)
	if _, err := os.Stat(emailPath); err == nil {
		return authservice.ErrDuplicateEmail
	} else if !os.IsNotExist(err) {
		return err
	}

	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if err := writeJSON(s.getAccountPath(account.ID), account); err != nil {
		return err
	}
	return writeJSON(emailPath, emailIndexEntry{AccountID: account.ID})
}

func (s *FSAccountStore) GetAccountByID(ctx context.Context, id string) (*authservice.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAccount(id)
}

func (s *FSAccountStore) GetAccountByEmail(ctx context.Context, email string) (*authservice.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var entry emailIndexEntry
	if err := readJSON(s.getEmailPath(authservice.NormalizeEmail(email)), &entry); err != nil {
		if os.IsNotExist(err) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, err
	}
	return s.readAccount(entry.AccountID)
}

func (s *FSAccountStore) SaveAccount(ctx context.Context, account *authservice.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.readAccount(account.ID)
	if err != nil {
		return err
	}
	if existing.Email != account.Email {
		return fmt.Errorf("account email cannot change: %s", account.ID)
	}
	return writeJSON(s.getAccountPath(account.ID), account)
}

func (s *FSAccountStore) readAccount(id string) (*authservice.Account, error) {
	if id == "" {
		return nil, authservice.ErrAccountNotFound
	}
	var account authservice.Account
	if err := readJSON(s.getAccountPath(id), &account); err != nil {
		if os.IsNotExist(err) {
			return nil, authservice.ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}
