package api

import (
	"sessionhub/internal/auth"
	"sessionhub/internal/storage"
)

type Handler struct {
	Store  storage.Repository
	Tokens *auth.Manager
}

func NewHandler(store storage.Repository, tokens *auth.Manager) *Handler {
	return &Handler{Store: store, Tokens: tokens}
}
