package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"letschat/internal/domain/entity"
	"letschat/pkg/errors"
)

func receiveMessage(t *testing.T, stream <-chan *entity.MessagePopulated) *entity.MessagePopulated {
	t.Helper()
	select {
	case message, ok := <-stream:
		require.True(t, ok, "stream closed unexpectedly")
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
		return nil
	}
}

func assertNoMessage(t *testing.T, stream <-chan *entity.MessagePopulated) {
	t.Helper()
	select {
	case message := <-stream:
		t.Fatalf("unexpected message event: %+v", message)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendMessageResetsReadMarkers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob", "carol"},
	})
	require.NoError(t, err)
	require.NoError(t, f.conversations.MarkConversationAsRead(ctx, "bob", "bob", conversationID))

	messageID, err := f.messages.SendMessage(ctx, "bob", SendMessageInput{
		ConversationID: conversationID,
		Body:           "anyone around?",
	})
	require.NoError(t, err)
	require.NotEmpty(t, messageID)

	conversation, err := f.convRepo.GetByID(ctx, conversationID)
	require.NoError(t, err)
	assert.Equal(t, messageID, conversation.LatestMessageID)

	participants, err := f.convRepo.ListParticipants(ctx, conversationID)
	require.NoError(t, err)
	seen := make(map[string]bool)
	for _, participant := range participants {
		seen[participant.UserID] = participant.HasSeenLatestMessage
	}
	assert.Equal(t, map[string]bool{"alice": false, "bob": true, "carol": false}, seen,
		"the sender has seen the message they just sent, everyone else has not")
}

func TestSendMessagePublishesMessageAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	bobMessages, cancelMessages, err := f.subscriptions.MessageSent(ctx, "bob")
	require.NoError(t, err)
	defer cancelMessages()
	bobUpdates, cancelUpdates, err := f.subscriptions.ConversationUpdated(ctx, "bob")
	require.NoError(t, err)
	defer cancelUpdates()
	carolMessages, cancelCarol, err := f.subscriptions.MessageSent(ctx, "carol")
	require.NoError(t, err)
	defer cancelCarol()

	messageID, err := f.messages.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conversationID,
		Body:           "hi bob",
	})
	require.NoError(t, err)

	message := receiveMessage(t, bobMessages)
	assert.Equal(t, messageID, message.ID)
	assert.Equal(t, "hi bob", message.Body)
	require.NotNil(t, message.Sender)
	assert.Equal(t, "Alice", message.Sender.Username)

	update := receiveConversation(t, bobUpdates)
	assert.Equal(t, conversationID, update.ID)
	require.NotNil(t, update.LatestMessage)
	assert.Equal(t, messageID, update.LatestMessage.ID)
	assert.Equal(t, map[string]bool{"alice": true, "bob": false}, seenByUser(update))

	assertNoMessage(t, carolMessages)
}

func TestSendMessagePublishesOwnMessageWhenAnotherSendLandsFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	stream, cancel, err := f.subscriptions.MessageSent(ctx, "alice")
	require.NoError(t, err)
	defer cancel()

	// Sneak bob's send in between alice's commit and the snapshot re-read, so
	// the conversation's latest-message pointer no longer names alice's
	// message by the time her send publishes.
	f.convRepo.onGetByID = func(string) {
		f.convRepo.onGetByID = nil
		_, err := f.messages.SendMessage(ctx, "bob", SendMessageInput{
			ConversationID: conversationID,
			Body:           "B from bob",
		})
		require.NoError(t, err)
	}

	aliceMessageID, err := f.messages.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conversationID,
		Body:           "A from alice",
	})
	require.NoError(t, err)

	first := receiveMessage(t, stream)
	assert.Equal(t, "B from bob", first.Body)

	second := receiveMessage(t, stream)
	assert.Equal(t, aliceMessageID, second.ID, "each send announces the message it wrote")
	assert.Equal(t, "A from alice", second.Body)
	require.NotNil(t, second.Sender)
	assert.Equal(t, "Alice", second.Sender.Username)

	assertNoMessage(t, stream)
}

func TestSendMessageOrderingPerSubscriber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	stream, cancel, err := f.subscriptions.MessageSent(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	bodies := []string{"one", "two", "three", "four", "five"}
	for _, body := range bodies {
		_, err := f.messages.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: conversationID,
			Body:           body,
		})
		require.NoError(t, err)
	}

	for _, body := range bodies {
		assert.Equal(t, body, receiveMessage(t, stream).Body)
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	_, err = f.messages.SendMessage(ctx, "carol", SendMessageInput{
		ConversationID: conversationID,
		Body:           "let me in",
	})
	assert.True(t, errors.Is(err, "FORBIDDEN"))

	_, total, listErr := f.convRepo.ListMessages(ctx, conversationID, 0, 0)
	require.NoError(t, listErr)
	assert.Zero(t, total)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.messages.SendMessage(ctx, "", SendMessageInput{ConversationID: "x", Body: "hi"})
	assert.True(t, errors.Is(err, "UNAUTHORIZED"))

	_, err = f.messages.SendMessage(ctx, "alice", SendMessageInput{ConversationID: "x"})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestSendMessageFailurePublishesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	stream, cancel, err := f.subscriptions.MessageSent(ctx, "bob")
	require.NoError(t, err)
	defer cancel()

	f.convRepo.failCreateMessage = true
	_, err = f.messages.SendMessage(ctx, "alice", SendMessageInput{
		ConversationID: conversationID,
		Body:           "doomed",
	})
	assert.True(t, errors.Is(err, "INTERNAL_ERROR"))
	assertNoMessage(t, stream)
}

func TestListMessagesNewestFirstWithPaging(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	for _, body := range []string{"first", "second", "third"} {
		_, err := f.messages.SendMessage(ctx, "alice", SendMessageInput{
			ConversationID: conversationID,
			Body:           body,
		})
		require.NoError(t, err)
		// Distinct timestamps keep the ordering deterministic.
		time.Sleep(2 * time.Millisecond)
	}

	messages, total, err := f.messages.ListMessages(ctx, "bob", conversationID, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, messages, 2)
	assert.Equal(t, "third", messages[0].Body)
	assert.Equal(t, "second", messages[1].Body)
	require.NotNil(t, messages[0].Sender)
	assert.Equal(t, "Alice", messages[0].Sender.Username)

	rest, total, err := f.messages.ListMessages(ctx, "bob", conversationID, 2, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, rest, 1)
	assert.Equal(t, "first", rest[0].Body)
}

func TestListMessagesRejectsNonParticipant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	conversationID, err := f.conversations.CreateConversation(ctx, "alice", CreateConversationInput{
		ParticipantIDs: []string{"alice", "bob"},
	})
	require.NoError(t, err)

	_, _, err = f.messages.ListMessages(ctx, "carol", conversationID, 50, 0)
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}
