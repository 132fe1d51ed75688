package storage

import (
	"context"

	"sessionhub/internal/models"
)

// Repository exposes the datastore operations required by the API handlers.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(params CreateUserParams) (models.User, error)
	AuthenticateUser(email, password string) (models.User, error)
	GetUser(id string) (models.User, bool)
	FindUserByEmail(email string) (models.User, bool)
	SetUserPassword(id, password string) (models.User, error)

	ListPublishedSessions() ([]PublishedSession, error)
	ListUserSessions(userID string) ([]models.Session, error)
	GetUserSession(userID, sessionID string) (models.Session, error)
	UpsertSession(userID string, params UpsertSessionParams) (models.Session, error)
}

var _ Repository = (*Storage)(nil)
