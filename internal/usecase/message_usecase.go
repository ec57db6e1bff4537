package usecase

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"letschat/internal/domain/entity"
	"letschat/internal/domain/repository"
	"letschat/internal/infrastructure/eventbus"
	"letschat/internal/infrastructure/ratelimit"
	"letschat/pkg/errors"
)

type MessageUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	bus              *eventbus.Bus
	rateLimiter      *ratelimit.RateLimiter
}

func NewMessageUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	bus *eventbus.Bus,
) *MessageUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &MessageUseCase{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		bus:              bus,
		rateLimiter:      rateLimiter,
	}
}

type SendMessageInput struct {
	ConversationID string
	Body           string
}

// SendMessage appends a message to a conversation the sender belongs to. The
// message row, the conversation's latest-message pointer and every read marker
// move in one transaction: the sender's marker is set, everyone else's is
// cleared. On commit both a message event and a conversation-updated event are
// published, each carrying the post-send snapshot.
func (uc *MessageUseCase) SendMessage(ctx context.Context, senderID string, input SendMessageInput) (string, error) {
	if senderID == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	if input.Body == "" {
		return "", errors.BadRequest("body must not be empty", nil)
	}

	if allowed, waitTime := uc.rateLimiter.Allow(senderID, "send_message"); !allowed {
		log.Printf("SendMessage Rate Limited: User %s must wait %v", senderID, waitTime)
		return "", errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message")
	}

	if _, err := uc.conversationRepo.GetParticipant(ctx, input.ConversationID, senderID); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return "", errors.Forbidden("You are not a participant of this conversation", err)
		}
		log.Printf("SendMessage Error: Participant (%s, %s) lookup failed: %v", input.ConversationID, senderID, err)
		return "", err
	}

	message := &entity.Message{
		ID:             uuid.New().String(),
		ConversationID: input.ConversationID,
		SenderID:       senderID,
		Body:           input.Body,
		CreatedAt:      time.Now(),
	}

	if err := uc.conversationRepo.CreateMessage(ctx, message); err != nil {
		log.Printf("SendMessage Error: Failed to create message in conversation %s: %v", input.ConversationID, err)
		return "", errors.Internal("Error sending message", err)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, input.ConversationID)
	if err != nil {
		log.Printf("SendMessage Error: Conversation %s lookup failed after send: %v", input.ConversationID, err)
		return "", err
	}

	populated, err := populateConversation(ctx, uc.conversationRepo, uc.userRepo, conversation)
	if err != nil {
		log.Printf("SendMessage Error: Failed to populate conversation %s: %v", input.ConversationID, err)
		return "", err
	}

	// The message event carries the message this call wrote, not the
	// conversation's latest-message pointer: another send may have committed
	// since, and its event is its own sender's to publish.
	var senderSummary *entity.UserSummary
	for _, p := range populated.Participants {
		if p.UserID == senderID {
			senderSummary = p.User
			break
		}
	}

	uc.bus.Publish(TopicMessageSent, &entity.MessageEvent{
		Message:      &entity.MessagePopulated{Message: message, Sender: senderSummary},
		Conversation: populated,
	})
	uc.bus.Publish(TopicConversationUpdated, &entity.ConversationEvent{
		Kind:         entity.ConversationUpdated,
		Conversation: populated,
	})

	return message.ID, nil
}

// ListMessages returns a conversation's messages newest first. Only current
// participants may read them.
func (uc *MessageUseCase) ListMessages(ctx context.Context, userID, conversationID string, limit, offset int) ([]*entity.MessagePopulated, int64, error) {
	if userID == "" {
		return nil, 0, errors.Unauthorized("Authentication required", nil)
	}

	if _, err := uc.conversationRepo.GetParticipant(ctx, conversationID, userID); err != nil {
		if errors.Is(err, "NOT_FOUND") {
			return nil, 0, errors.Forbidden("You are not a participant of this conversation", err)
		}
		return nil, 0, err
	}

	messages, total, err := uc.conversationRepo.ListMessages(ctx, conversationID, limit, offset)
	if err != nil {
		log.Printf("ListMessages Error: Failed to list messages for conversation %s: %v", conversationID, err)
		return nil, 0, err
	}

	senderIDs := make([]string, 0, len(messages))
	for _, m := range messages {
		senderIDs = append(senderIDs, m.SenderID)
	}

	users, err := uc.userRepo.ListByIDs(ctx, lo.Uniq(senderIDs))
	if err != nil {
		return nil, 0, err
	}
	summaries := make(map[string]*entity.UserSummary, len(users))
	for _, u := range users {
		summaries[u.ID] = u.Summary()
	}

	result := make([]*entity.MessagePopulated, 0, len(messages))
	for _, m := range messages {
		result = append(result, &entity.MessagePopulated{
			Message: m,
			Sender:  summaries[m.SenderID],
		})
	}

	return result, total, nil
}
