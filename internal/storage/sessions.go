package storage

import (
	"errors"
	"sort"
	"strings"
	"time"

	"sessionhub/internal/models"
)

// Session operations

// ListPublishedSessions returns published sessions newest first by creation
// time, each joined with the owner's email.
func (s *Storage) ListPublishedSessions() ([]PublishedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]PublishedSession, 0)
	for _, session := range s.data.Sessions {
		if session.Status != models.StatusPublished {
			continue
		}
		entry := PublishedSession{Session: session}
		entry.Tags = append([]string(nil), session.Tags...)
		if owner, ok := s.data.Users[session.UserID]; ok {
			entry.OwnerEmail = owner.Email
		}
		sessions = append(sessions, entry)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// ListUserSessions returns the user's drafts and published sessions newest
// first by last update.
func (s *Storage) ListUserSessions(userID string) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]models.Session, 0)
	for _, session := range s.data.Sessions {
		if session.UserID != userID {
			continue
		}
		cloned := session
		cloned.Tags = append([]string(nil), session.Tags...)
		sessions = append(sessions, cloned)
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].UpdatedAt.Equal(sessions[j].UpdatedAt) {
			return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
		}
		return sessions[i].ID < sessions[j].ID
	})
	return sessions, nil
}

// GetUserSession fetches a single session owned by the user. A session that
// exists but belongs to someone else reports ErrSessionNotFound, identical to
// an absent id.
func (s *Storage) GetUserSession(userID, sessionID string) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.data.Sessions[sessionID]
	if !ok || session.UserID != userID {
		return models.Session{}, ErrSessionNotFound
	}
	session.Tags = append([]string(nil), session.Tags...)
	return session, nil
}

// UpsertSession creates or updates a session document owned by userID. The
// supplied status is forced unconditionally, so re-saving a published session
// as a draft demotes it. UpdatedAt is refreshed as part of the same write.
func (s *Storage) UpsertSession(userID string, params UpsertSessionParams) (models.Session, error) {
	if err := validateSessionParams(params); err != nil {
		return models.Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	tags := append([]string(nil), params.Tags...)
	if tags == nil {
		tags = []string{}
	}

	var session models.Session
	if params.ID != "" {
		existing, ok := s.data.Sessions[params.ID]
		if !ok || existing.UserID != userID {
			return models.Session{}, ErrSessionNotFound
		}
		session = existing
		session.Title = params.Title
		session.Tags = tags
		session.JSONFileURL = params.JSONFileURL
		session.Status = params.Status
		session.UpdatedAt = now
	} else {
		session = models.Session{
			ID:          generateID(),
			UserID:      userID,
			Title:       params.Title,
			Tags:        tags,
			JSONFileURL: params.JSONFileURL,
			Status:      params.Status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	updatedData := cloneDataset(s.data)
	updatedData.Sessions[session.ID] = session
	if err := s.persistDataset(updatedData); err != nil {
		return models.Session{}, err
	}
	s.data = updatedData

	return session, nil
}

func validateSessionParams(params UpsertSessionParams) error {
	if strings.TrimSpace(params.Title) == "" {
		return errors.New("title is required")
	}
	if strings.TrimSpace(params.JSONFileURL) == "" {
		return errors.New("json_file_url is required")
	}
	if !params.Status.Valid() {
		return errors.New("status must be draft or published")
	}
	return nil
}
