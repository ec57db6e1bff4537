package entity

type ConversationEventKind string

const (
	ConversationCreated ConversationEventKind = "conversation_created"
	ConversationUpdated ConversationEventKind = "conversation_updated"
	ConversationDeleted ConversationEventKind = "conversation_deleted"
)

// ConversationEvent is the payload published for every conversation lifecycle
// change. All kinds carry the populated snapshot at the same level, so a
// single predicate serves every topic.
type ConversationEvent struct {
	Kind         ConversationEventKind  `json:"kind"`
	Conversation *ConversationPopulated `json:"conversation"`
}

// Participants returns the participant set embedded in the event's snapshot.
func (e *ConversationEvent) Participants() []*ParticipantPopulated {
	if e.Conversation == nil {
		return nil
	}
	return e.Conversation.Participants
}

func (e *ConversationEvent) HasParticipant(userID string) bool {
	return IsParticipant(e.Participants(), userID)
}

// MessageEvent is published when a message lands in a conversation. It carries
// the conversation snapshot taken after the send, so subscribers are filtered
// against the same participant set the message was delivered to.
type MessageEvent struct {
	Message      *MessagePopulated      `json:"message"`
	Conversation *ConversationPopulated `json:"conversation"`
}

func (e *MessageEvent) HasParticipant(userID string) bool {
	if e.Conversation == nil {
		return false
	}
	return e.Conversation.HasParticipant(userID)
}
