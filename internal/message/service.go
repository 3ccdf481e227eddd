package message

import (
	"context"
	"strings"

	"chatterbox/internal/apperr"
	"chatterbox/internal/models"
	"chatterbox/internal/store"
)

const (
	maxSubjectLen = 100
	maxBodyLen    = 1000
)

// Service orchestrates message delivery and retrieval. All operations are
// scoped to an already-authenticated identity; the service never touches
// session state itself.
type Service struct {
	store *store.Store
}

// NewService builds a message service over the shared store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Send validates and persists one message from the identity to toUser.
// Recipient existence is deliberately not checked: messages to unknown
// usernames are accepted and simply never show up in anyone's inbox.
func (s *Service) Send(ctx context.Context, identity *models.Identity, toUser, subject, body string) (*models.Message, error) {
	if identity == nil || identity.Username == "" {
		return nil, apperr.Auth("authentication required")
	}
	toUser = strings.TrimSpace(toUser)
	subject = strings.TrimSpace(subject)
	body = strings.TrimSpace(body)
	switch {
	case toUser == "":
		return nil, apperr.Validation("recipient is required")
	case subject == "":
		return nil, apperr.Validation("subject is required")
	case body == "":
		return nil, apperr.Validation("body is required")
	case len(subject) > maxSubjectLen:
		return nil, apperr.Validation("subject exceeds 100 characters")
	case len(body) > maxBodyLen:
		return nil, apperr.Validation("body exceeds 1000 characters")
	case toUser == identity.Username:
		return nil, apperr.Validation("cannot send a message to yourself")
	}

	msg, err := s.store.AddMessage(ctx, identity.Username, toUser, subject, body)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return msg, nil
}

// Inbox returns all messages addressed to the identity, newest first.
func (s *Service) Inbox(ctx context.Context, identity *models.Identity) ([]*models.Message, error) {
	if identity == nil || identity.Username == "" {
		return nil, apperr.Auth("authentication required")
	}
	messages, err := s.store.MessagesForUser(ctx, identity.Username)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return messages, nil
}

// Sent returns all messages authored by the identity, newest first.
func (s *Service) Sent(ctx context.Context, identity *models.Identity) ([]*models.Message, error) {
	if identity == nil || identity.Username == "" {
		return nil, apperr.Auth("authentication required")
	}
	messages, err := s.store.MessagesFromUser(ctx, identity.Username)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return messages, nil
}

// ListRecipients returns every known username except the caller's own,
// ascending, for populating recipient choices.
func (s *Service) ListRecipients(ctx context.Context, identity *models.Identity) ([]string, error) {
	if identity == nil || identity.Username == "" {
		return nil, apperr.Auth("authentication required")
	}
	usernames, err := s.store.ListOtherUsernames(ctx, identity.Username)
	if err != nil {
		return nil, apperr.Store(err)
	}
	return usernames, nil
}
