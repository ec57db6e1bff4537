package entity

import "time"

type Conversation struct {
	ID              string    `json:"id" firestore:"id"`
	ParticipantIDs  []string  `json:"participant_ids" firestore:"participantIds"`
	LatestMessageID string    `json:"latest_message_id,omitempty" firestore:"latestMessageId,omitempty"`
	CreatedAt       time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Participant is a user's membership record in a conversation. There is
// exactly one row per (conversation, user) pair; HasSeenLatestMessage is the
// per-user read marker.
type Participant struct {
	ConversationID       string    `json:"conversation_id" firestore:"conversationId"`
	UserID               string    `json:"user_id" firestore:"userId"`
	HasSeenLatestMessage bool      `json:"has_seen_latest_message" firestore:"hasSeenLatestMessage"`
	CreatedAt            time.Time `json:"created_at" firestore:"createdAt"`
}

// ParticipantPopulated enriches a participant row with the public profile of
// its user, so clients never need a second lookup.
type ParticipantPopulated struct {
	*Participant
	User *UserSummary `json:"user,omitempty"`
}

type MessagePopulated struct {
	*Message
	Sender *UserSummary `json:"sender,omitempty"`
}

// ConversationPopulated is a conversation snapshot fully hydrated with its
// participants and latest message. Events carry this shape; it is never
// persisted as-is.
type ConversationPopulated struct {
	*Conversation
	Participants  []*ParticipantPopulated `json:"participants"`
	LatestMessage *MessagePopulated       `json:"latest_message,omitempty"`
}

// IsParticipant reports whether userID appears in the given participant set.
func IsParticipant(participants []*ParticipantPopulated, userID string) bool {
	for _, p := range participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *ConversationPopulated) HasParticipant(userID string) bool {
	return IsParticipant(c.Participants, userID)
}
