package usecase

import (
	"context"
	"sort"
	"sync"

	"letschat/internal/domain/entity"
	"letschat/pkg/errors"
)

// fakeConversationRepo is an in-memory stand-in for the transactional store.
// Multi-row mutations either apply fully or, when a failure is injected, not
// at all, matching the contract of the Firestore adapter.
type fakeConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]*entity.Conversation
	participants  map[string]map[string]*entity.Participant
	messages      map[string]map[string]*entity.Message

	failCreate           bool
	failDelete           bool
	failCreateMessage    bool
	failListParticipants bool

	// Invoked before each GetByID, outside the lock, so tests can interleave
	// another write between a commit and the re-read that follows it.
	onGetByID func(id string)
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{
		conversations: make(map[string]*entity.Conversation),
		participants:  make(map[string]map[string]*entity.Participant),
		messages:      make(map[string]map[string]*entity.Message),
	}
}

func (r *fakeConversationRepo) Create(ctx context.Context, conversation *entity.Conversation, participants []*entity.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failCreate {
		return errors.Internal("Failed to create conversation", nil)
	}

	stored := *conversation
	r.conversations[conversation.ID] = &stored
	rows := make(map[string]*entity.Participant, len(participants))
	for _, participant := range participants {
		row := *participant
		rows[participant.UserID] = &row
	}
	r.participants[conversation.ID] = rows
	r.messages[conversation.ID] = make(map[string]*entity.Message)
	return nil
}

func (r *fakeConversationRepo) GetByID(ctx context.Context, id string) (*entity.Conversation, error) {
	if r.onGetByID != nil {
		r.onGetByID(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[id]
	if !ok {
		return nil, errors.NotFound("Conversation", nil)
	}
	copied := *conversation
	return &copied, nil
}

func (r *fakeConversationRepo) List(ctx context.Context) ([]*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]*entity.Conversation, 0, len(r.conversations))
	for _, conversation := range r.conversations {
		copied := *conversation
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	return result, nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conversations[id]; !ok {
		return errors.NotFound("Conversation", nil)
	}
	if r.failDelete {
		return errors.Internal("Failed to delete conversation", nil)
	}

	delete(r.conversations, id)
	delete(r.participants, id)
	delete(r.messages, id)
	return nil
}

func (r *fakeConversationRepo) ListParticipants(ctx context.Context, conversationID string) ([]*entity.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failListParticipants {
		return nil, errors.Internal("Failed to list participants", nil)
	}

	rows := r.participants[conversationID]
	result := make([]*entity.Participant, 0, len(rows))
	for _, participant := range rows {
		copied := *participant
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result, nil
}

func (r *fakeConversationRepo) GetParticipant(ctx context.Context, conversationID, userID string) (*entity.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[conversationID][userID]
	if !ok {
		return nil, errors.NotFound("Participant", nil)
	}
	copied := *participant
	return &copied, nil
}

func (r *fakeConversationRepo) SetParticipantSeen(ctx context.Context, conversationID, userID string, seen bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	participant, ok := r.participants[conversationID][userID]
	if !ok {
		return errors.NotFound("Participant", nil)
	}
	participant.HasSeenLatestMessage = seen
	return nil
}

func (r *fakeConversationRepo) CreateMessage(ctx context.Context, message *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conversation, ok := r.conversations[message.ConversationID]
	if !ok {
		return errors.NotFound("Conversation", nil)
	}
	if r.failCreateMessage {
		return errors.Internal("Failed to create message", nil)
	}

	stored := *message
	r.messages[message.ConversationID][message.ID] = &stored
	conversation.LatestMessageID = message.ID
	conversation.UpdatedAt = message.CreatedAt
	for _, participant := range r.participants[message.ConversationID] {
		participant.HasSeenLatestMessage = participant.UserID == message.SenderID
	}
	return nil
}

func (r *fakeConversationRepo) GetMessage(ctx context.Context, conversationID, messageID string) (*entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	message, ok := r.messages[conversationID][messageID]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	copied := *message
	return &copied, nil
}

func (r *fakeConversationRepo) ListMessages(ctx context.Context, conversationID string, limit, offset int) ([]*entity.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*entity.Message, 0, len(r.messages[conversationID]))
	for _, message := range r.messages[conversationID] {
		copied := *message
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	total := int64(len(all))
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*entity.User
}

func newFakeUserRepo(users ...*entity.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*entity.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, errors.NotFound("User", nil)
	}
	return user, nil
}

func (r *fakeUserRepo) ListByIDs(ctx context.Context, ids []string) ([]*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]*entity.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			result = append(result, user)
		}
	}
	return result, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}
