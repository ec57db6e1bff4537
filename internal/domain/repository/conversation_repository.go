package repository

import (
	"context"

	"letschat/internal/domain/entity"
)

type ConversationRepository interface {
	// Create persists the conversation and all of its participant rows in a
	// single transaction; either everything commits or nothing does.
	Create(ctx context.Context, conversation *entity.Conversation, participants []*entity.Participant) error
	GetByID(ctx context.Context, id string) (*entity.Conversation, error)
	// List returns every conversation. Membership filtering happens in the
	// usecase against the authoritative participant rows, not here.
	List(ctx context.Context) ([]*entity.Conversation, error)
	// Delete removes the conversation together with all of its participant
	// and message rows in a single transaction (cascade).
	Delete(ctx context.Context, id string) error

	ListParticipants(ctx context.Context, conversationID string) ([]*entity.Participant, error)
	GetParticipant(ctx context.Context, conversationID, userID string) (*entity.Participant, error)
	SetParticipantSeen(ctx context.Context, conversationID, userID string, seen bool) error

	// CreateMessage persists the message, points the conversation's latest
	// message at it, and resets every other participant's read marker, all in
	// one transaction.
	CreateMessage(ctx context.Context, message *entity.Message) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*entity.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error)
}
