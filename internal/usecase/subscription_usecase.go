package usecase

import (
	"context"

	"letschat/internal/domain/entity"
	"letschat/internal/infrastructure/eventbus"
	"letschat/pkg/errors"
)

// SubscriptionUseCase is the per-caller entry point to live events. Every
// stream it hands out is already authenticated and participant-filtered:
// a payload reaches the caller only when that payload's own participant
// snapshot lists them, re-evaluated event by event.
type SubscriptionUseCase struct {
	bus *eventbus.Bus
}

func NewSubscriptionUseCase(bus *eventbus.Bus) *SubscriptionUseCase {
	return &SubscriptionUseCase{bus: bus}
}

// ConversationCreated streams populated conversations the user is added to as
// they are created. The returned cancel func stops delivery and releases the
// underlying subscription; it is safe to call more than once.
func (uc *SubscriptionUseCase) ConversationCreated(ctx context.Context, userID string) (<-chan *entity.ConversationPopulated, func(), error) {
	return uc.conversationStream(ctx, userID, TopicConversationCreated)
}

// ConversationUpdated streams conversations the user belongs to as their
// content changes (latest message, read markers of the snapshot).
func (uc *SubscriptionUseCase) ConversationUpdated(ctx context.Context, userID string) (<-chan *entity.ConversationPopulated, func(), error) {
	return uc.conversationStream(ctx, userID, TopicConversationUpdated)
}

// ConversationDeleted streams the pre-deletion snapshot of conversations the
// user belonged to.
func (uc *SubscriptionUseCase) ConversationDeleted(ctx context.Context, userID string) (<-chan *entity.ConversationPopulated, func(), error) {
	return uc.conversationStream(ctx, userID, TopicConversationDeleted)
}

func (uc *SubscriptionUseCase) conversationStream(ctx context.Context, userID, topic string) (<-chan *entity.ConversationPopulated, func(), error) {
	if userID == "" {
		return nil, nil, errors.Unauthorized("Authentication required", nil)
	}

	sub := uc.bus.Subscribe(topic)
	out := make(chan *entity.ConversationPopulated)

	go func() {
		defer close(out)
		for {
			select {
			case payload, ok := <-sub.Events():
				if !ok {
					return
				}
				event, ok := payload.(*entity.ConversationEvent)
				if !ok || !event.HasParticipant(userID) {
					continue
				}
				select {
				case out <- event.Conversation:
				case <-ctx.Done():
					sub.Close()
					return
				}
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}()

	return out, sub.Close, nil
}

// MessageSent streams populated messages for every conversation the user
// participates in, filtered against the participant set each event carries.
func (uc *SubscriptionUseCase) MessageSent(ctx context.Context, userID string) (<-chan *entity.MessagePopulated, func(), error) {
	if userID == "" {
		return nil, nil, errors.Unauthorized("Authentication required", nil)
	}

	sub := uc.bus.Subscribe(TopicMessageSent)
	out := make(chan *entity.MessagePopulated)

	go func() {
		defer close(out)
		for {
			select {
			case payload, ok := <-sub.Events():
				if !ok {
					return
				}
				event, ok := payload.(*entity.MessageEvent)
				if !ok || !event.HasParticipant(userID) {
					continue
				}
				select {
				case out <- event.Message:
				case <-ctx.Done():
					sub.Close()
					return
				}
			case <-ctx.Done():
				sub.Close()
				return
			}
		}
	}()

	return out, sub.Close, nil
}
