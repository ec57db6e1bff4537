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

// Bus topics, one per event kind.
const (
	TopicConversationCreated = "conversation.created"
	TopicConversationUpdated = "conversation.updated"
	TopicConversationDeleted = "conversation.deleted"
	TopicMessageSent         = "message.sent"
)

type ConversationUseCase struct {
	conversationRepo repository.ConversationRepository
	userRepo         repository.UserRepository
	bus              *eventbus.Bus
	rateLimiter      *ratelimit.RateLimiter
}

func NewConversationUseCase(
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	bus *eventbus.Bus,
) *ConversationUseCase {
	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine()

	return &ConversationUseCase{
		conversationRepo: conversationRepo,
		userRepo:         userRepo,
		bus:              bus,
		rateLimiter:      rateLimiter,
	}
}

type CreateConversationInput struct {
	ParticipantIDs []string
}

// ListConversations returns every populated conversation the user belongs to.
// The repository hands back all candidate rows; membership is decided here
// against the participant rows, never by a storage-side filter.
func (uc *ConversationUseCase) ListConversations(ctx context.Context, userID string) ([]*entity.ConversationPopulated, error) {
	if userID == "" {
		return nil, errors.Unauthorized("Authentication required", nil)
	}

	conversations, err := uc.conversationRepo.List(ctx)
	if err != nil {
		log.Printf("ListConversations Error: Failed to list conversations for user %s: %v", userID, err)
		return nil, err
	}

	result := make([]*entity.ConversationPopulated, 0, len(conversations))
	for _, conversation := range conversations {
		populated, err := populateConversation(ctx, uc.conversationRepo, uc.userRepo, conversation)
		if err != nil {
			log.Printf("ListConversations Error: Failed to populate conversation %s: %v", conversation.ID, err)
			return nil, err
		}
		if populated.HasParticipant(userID) {
			result = append(result, populated)
		}
	}

	return result, nil
}

// CreateConversation creates the conversation and one participant row per id
// in a single transaction. Only the creator's row starts with the read marker
// set. On commit the populated snapshot is published to subscribers.
func (uc *ConversationUseCase) CreateConversation(ctx context.Context, userID string, input CreateConversationInput) (string, error) {
	if userID == "" {
		return "", errors.Unauthorized("Authentication required", nil)
	}
	if len(input.ParticipantIDs) == 0 {
		return "", errors.BadRequest("participant_ids must not be empty", nil)
	}

	if allowed, waitTime := uc.rateLimiter.Allow(userID, "create_conversation"); !allowed {
		log.Printf("CreateConversation Rate Limited: User %s must wait %v", userID, waitTime)
		return "", errors.TooManyRequests("Rate limit exceeded. Please wait before creating another conversation")
	}

	participantIDs := lo.Uniq(input.ParticipantIDs)

	// Profiles are fetched up front and the published snapshot is assembled
	// from the rows written below, so once the transaction commits nothing can
	// keep the event from going out.
	users, err := uc.userRepo.ListByIDs(ctx, participantIDs)
	if err != nil {
		log.Printf("CreateConversation Error: Failed to load participant profiles for user %s: %v", userID, err)
		return "", err
	}
	summaries := lo.SliceToMap(users, func(u *entity.User) (string, *entity.UserSummary) {
		return u.ID, u.Summary()
	})

	now := time.Now()
	conversation := &entity.Conversation{
		ID:             uuid.New().String(),
		ParticipantIDs: participantIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	participants := lo.Map(participantIDs, func(id string, _ int) *entity.Participant {
		return &entity.Participant{
			ConversationID:       conversation.ID,
			UserID:               id,
			HasSeenLatestMessage: id == userID,
			CreatedAt:            now,
		}
	})

	if err := uc.conversationRepo.Create(ctx, conversation, participants); err != nil {
		log.Printf("CreateConversation Error: Failed to create conversation for user %s: %v", userID, err)
		return "", errors.Internal("Error creating conversation", err)
	}

	populated := &entity.ConversationPopulated{
		Conversation: conversation,
		Participants: lo.Map(participants, func(p *entity.Participant, _ int) *entity.ParticipantPopulated {
			return &entity.ParticipantPopulated{
				Participant: p,
				User:        summaries[p.UserID],
			}
		}),
	}

	uc.bus.Publish(TopicConversationCreated, &entity.ConversationEvent{
		Kind:         entity.ConversationCreated,
		Conversation: populated,
	})

	return conversation.ID, nil
}

// MarkConversationAsRead flips the read marker for exactly one (conversation,
// user) row. It is a private state change: no event is published, other
// participants are not told about someone else's read state.
func (uc *ConversationUseCase) MarkConversationAsRead(ctx context.Context, callerID, userID, conversationID string) error {
	if callerID == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	// The row should always exist for a live conversation; tolerate its
	// absence with a NotFound instead of corrupting another row.
	if _, err := uc.conversationRepo.GetParticipant(ctx, conversationID, userID); err != nil {
		log.Printf("MarkConversationAsRead Error: Participant (%s, %s) lookup failed: %v", conversationID, userID, err)
		return err
	}

	if err := uc.conversationRepo.SetParticipantSeen(ctx, conversationID, userID, true); err != nil {
		log.Printf("MarkConversationAsRead Error: Failed to update participant (%s, %s): %v", conversationID, userID, err)
		return err
	}

	return nil
}

// DeleteConversation removes the conversation with all of its participant and
// message rows in one transaction, then publishes the pre-deletion snapshot so
// former participants see what disappeared.
func (uc *ConversationUseCase) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if userID == "" {
		return errors.Unauthorized("Authentication required", nil)
	}

	conversation, err := uc.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		log.Printf("DeleteConversation Error: Conversation %s lookup failed: %v", conversationID, err)
		return err
	}

	snapshot, err := populateConversation(ctx, uc.conversationRepo, uc.userRepo, conversation)
	if err != nil {
		log.Printf("DeleteConversation Error: Failed to snapshot conversation %s: %v", conversationID, err)
		return err
	}

	if err := uc.conversationRepo.Delete(ctx, conversationID); err != nil {
		log.Printf("DeleteConversation Error: Failed to delete conversation %s: %v", conversationID, err)
		return errors.Internal("Failed to delete conversation", err)
	}

	uc.bus.Publish(TopicConversationDeleted, &entity.ConversationEvent{
		Kind:         entity.ConversationDeleted,
		Conversation: snapshot,
	})

	return nil
}

// populateConversation hydrates a conversation row into the snapshot shape
// carried by events and API responses: participant rows joined with public
// profiles, plus the latest message and its sender.
func populateConversation(
	ctx context.Context,
	conversationRepo repository.ConversationRepository,
	userRepo repository.UserRepository,
	conversation *entity.Conversation,
) (*entity.ConversationPopulated, error) {
	participants, err := conversationRepo.ListParticipants(ctx, conversation.ID)
	if err != nil {
		return nil, err
	}

	userIDs := lo.Map(participants, func(p *entity.Participant, _ int) string {
		return p.UserID
	})

	var latestMessage *entity.Message
	if conversation.LatestMessageID != "" {
		latestMessage, err = conversationRepo.GetMessage(ctx, conversation.ID, conversation.LatestMessageID)
		if err != nil && !errors.Is(err, "NOT_FOUND") {
			return nil, err
		}
		if latestMessage != nil {
			userIDs = append(userIDs, latestMessage.SenderID)
		}
	}

	users, err := userRepo.ListByIDs(ctx, lo.Uniq(userIDs))
	if err != nil {
		return nil, err
	}
	summaries := lo.SliceToMap(users, func(u *entity.User) (string, *entity.UserSummary) {
		return u.ID, u.Summary()
	})

	populated := &entity.ConversationPopulated{
		Conversation: conversation,
		Participants: lo.Map(participants, func(p *entity.Participant, _ int) *entity.ParticipantPopulated {
			return &entity.ParticipantPopulated{
				Participant: p,
				User:        summaries[p.UserID],
			}
		}),
	}

	if latestMessage != nil {
		populated.LatestMessage = &entity.MessagePopulated{
			Message: latestMessage,
			Sender:  summaries[latestMessage.SenderID],
		}
	}

	return populated, nil
}
