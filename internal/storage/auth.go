package storage

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"sessionhub/internal/models"
)

const minPasswordLength = 8

// AuthenticateUser verifies credentials and returns the matching user on
// success. An unknown email and a wrong password fail with the same
// ErrInvalidCredentials so callers cannot tell which check tripped.
func (s *Storage) AuthenticateUser(email, password string) (models.User, error) {
	if password == "" {
		return models.User{}, ErrInvalidCredentials
	}
	record, ok := s.findUserRecordByEmail(email)
	if !ok {
		return models.User{}, ErrInvalidCredentials
	}
	if err := verifyPassword(record.PasswordHash, password); err != nil {
		return models.User{}, err
	}
	return record.User, nil
}

// SetUserPassword replaces the stored password hash for the provided user.
// This and CreateUser are the only operations that run the hash; writes that
// leave the password untouched never rehash.
func (s *Storage) SetUserPassword(id, password string) (models.User, error) {
	if len(password) < minPasswordLength {
		return models.User{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}

	hashed, err := hashPassword(password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updatedData := cloneDataset(s.data)

	record, ok := updatedData.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user %s not found", id)
	}

	record.PasswordHash = hashed
	updatedData.Users[id] = record

	if err := s.persistDataset(updatedData); err != nil {
		return models.User{}, err
	}

	s.data = updatedData

	return record.User, nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func verifyPassword(encodedHash, candidate string) error {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(candidate))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return fmt.Errorf("verify password: %w", err)
}
