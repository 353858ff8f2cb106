// Package chat connects to Telegram via MTProto, ingests channel/group/
// folder content into the store, and performs the daemon's one permitted
// write operation against Telegram: marking consumed messages as read.
package chat

import (
	"context"

	"github.com/pail-dev/pail/internal/store"
)

// sessionStorage adapts the store's single-row chat_sessions table to the
// session.Storage interface the chat client expects. A second sqlite
// binding cannot coexist with the pure-Go driver the rest of the daemon
// uses, so the session blob lives in the same database and connection
// pool as everything else instead of its own file.
type sessionStorage struct {
	repo store.Repository
}

func newSessionStorage(repo store.Repository) *sessionStorage {
	return &sessionStorage{repo: repo}
}

func (s *sessionStorage) LoadSession(ctx context.Context) ([]byte, error) {
	data, err := s.repo.LoadChatSession(ctx)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func (s *sessionStorage) StoreSession(ctx context.Context, data []byte) error {
	return s.repo.StoreChatSession(ctx, data)
}
