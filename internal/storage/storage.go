package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sessionhub/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrSessionNotFound    = errors.New("session not found")
)

// UserRecord is the persisted form of a user. The password hash stays on the
// record; Repository methods return the embedded models.User, so the hash
// never reaches handler code or response encoding.
type UserRecord struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

type dataset struct {
	Users    map[string]UserRecord     `json:"users"`
	Sessions map[string]models.Session `json:"sessions"`
}

// Storage is a JSON-file backed Repository used for development and tests.
// Mutations operate on a clone of the dataset and swap it in only after the
// file write succeeds, so a failed persist never leaves partial state behind.
type Storage struct {
	mu       sync.RWMutex
	filePath string
	data     dataset
	// persistOverride allows tests to intercept persist operations.
	persistOverride func(dataset) error
}

func newDataset() dataset {
	return dataset{
		Users:    make(map[string]UserRecord),
		Sessions: make(map[string]models.Session),
	}
}

// CreateUserParams captures the attributes that can be set when creating a user.
type CreateUserParams struct {
	Email    string
	Password string
}

// UpsertSessionParams carries the writable fields of a session document. When
// ID is empty a new session is created; otherwise the identified session is
// updated iff it belongs to the calling user.
type UpsertSessionParams struct {
	ID          string
	Title       string
	Tags        []string
	JSONFileURL string
	Status      models.SessionStatus
}

// PublishedSession is a session row joined with its owner's email for the
// public listing. No other owner fields are exposed.
type PublishedSession struct {
	models.Session
	OwnerEmail string `json:"owner_email"`
}

func NewStorage(path string) (*Storage, error) {
	store := &Storage{filePath: path}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Storage) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newDataset()
		return nil
	} else if err != nil {
		return fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newDataset()
			return nil
		}
		return fmt.Errorf("decode store file: %w", err)
	}

	if s.data.Users == nil {
		s.data.Users = make(map[string]UserRecord)
	}
	if s.data.Sessions == nil {
		s.data.Sessions = make(map[string]models.Session)
	}
	return nil
}

func (s *Storage) persist() error {
	return s.persistDataset(s.data)
}

func (s *Storage) persistDataset(data dataset) error {
	if s.persistOverride != nil {
		if err := s.persistOverride(data); err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "store-*.json")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode store file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush store file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	success = true
	return nil
}

func cloneDataset(src dataset) dataset {
	clone := newDataset()
	for id, user := range src.Users {
		clone.Users[id] = user
	}
	for id, session := range src.Sessions {
		cloned := session
		if session.Tags != nil {
			cloned.Tags = append([]string(nil), session.Tags...)
		}
		clone.Sessions[id] = cloned
	}
	return clone
}

func generateID() string {
	return uuid.NewString()
}

// NormalizeEmail lowercases and trims an email address so lookups and the
// uniqueness check are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// Ping reports whether the backing file location is usable.
func (s *Storage) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := os.Stat(filepath.Dir(s.filePath))
	return err
}

// User operations

func (s *Storage) CreateUser(params CreateUserParams) (models.User, error) {
	normalizedEmail := NormalizeEmail(params.Email)
	if normalizedEmail == "" {
		return models.User{}, errors.New("email is required")
	}
	if len(params.Password) < minPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	// Hash outside the lock; bcrypt is deliberately slow.
	passwordHash, err := hashPassword(params.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.data.Users {
		if user.Email == normalizedEmail {
			return models.User{}, ErrEmailInUse
		}
	}

	record := UserRecord{
		User: models.User{
			ID:        generateID(),
			Email:     normalizedEmail,
			CreatedAt: time.Now().UTC(),
		},
		PasswordHash: passwordHash,
	}

	s.data.Users[record.ID] = record
	if err := s.persist(); err != nil {
		delete(s.data.Users, record.ID)
		return models.User{}, err
	}

	return record.User, nil
}

func (s *Storage) GetUser(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.data.Users[id]
	return record.User, ok
}

func (s *Storage) FindUserByEmail(email string) (models.User, bool) {
	record, ok := s.findUserRecordByEmail(email)
	return record.User, ok
}

func (s *Storage) findUserRecordByEmail(email string) (UserRecord, bool) {
	normalized := NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.data.Users {
		if record.Email == normalized {
			return record, true
		}
	}
	return UserRecord{}, false
}
