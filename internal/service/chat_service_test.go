package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"minchat/internal/event"
	"minchat/internal/ledger"
	"minchat/internal/model"
	"minchat/internal/presence"
	"minchat/internal/repo"
	apperrors "minchat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countChange struct {
	ownerID string
	peerID  string
	count   int
	isRead  bool
}

type recordedEvent struct {
	kind        string
	message     *model.Message
	messageID   string
	countChange countChange
	userID      string
	isActive    bool
	status      string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (n *recordingNotifier) NotifyNewMessage(msg *model.Message) {
	n.append(recordedEvent{kind: event.EventNewMessage, message: msg})
}

func (n *recordingNotifier) NotifyEdited(messageID, newContent string, editedAt time.Time) {
	n.append(recordedEvent{kind: event.EventEditedMessage, messageID: messageID, status: newContent})
}

func (n *recordingNotifier) NotifyDeleted(messageID string) {
	n.append(recordedEvent{kind: event.EventDeletedMessage, messageID: messageID})
}

func (n *recordingNotifier) NotifyCountChanged(ownerID, peerID string, count int, isRead bool) {
	n.append(recordedEvent{kind: event.EventCountChanged, countChange: countChange{
		ownerID: ownerID,
		peerID:  peerID,
		count:   count,
		isRead:  isRead,
	}})
}

func (n *recordingNotifier) NotifyPresenceChanged(userID string, isActive bool) {
	n.append(recordedEvent{kind: event.EventPresenceChanged, userID: userID, isActive: isActive})
}

func (n *recordingNotifier) NotifyStatusMessage(userID, statusMessage string) {
	n.append(recordedEvent{kind: event.EventStatusMessage, userID: userID, status: statusMessage})
}

func (n *recordingNotifier) append(e recordedEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	kinds := make([]string, len(n.events))
	for i, e := range n.events {
		kinds[i] = e.kind
	}
	return kinds
}

func (n *recordingNotifier) countChanges() []countChange {
	n.mu.Lock()
	defer n.mu.Unlock()

	var changes []countChange
	for _, e := range n.events {
		if e.kind == event.EventCountChanged {
			changes = append(changes, e.countChange)
		}
	}
	return changes
}

func (n *recordingNotifier) reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}

type failingCounters struct {
	repo.CounterRepository
}

func (f *failingCounters) Upsert(ctx context.Context, counter *model.UnreadCounter) error {
	return assert.AnError
}

type fixture struct {
	service  ChatService
	notifier *recordingNotifier
	messages repo.MessageRepository
	counters repo.CounterRepository
	tracker  *presence.Tracker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCounters(t, repo.NewMemoryCounterRepository())
}

func newFixtureWithCounters(t *testing.T, counters repo.CounterRepository) *fixture {
	t.Helper()

	logger := zap.NewNop()
	messages := repo.NewMemoryMessageRepository()
	tracker := presence.NewTracker(repo.NewMemoryPresenceRepository(), logger)
	notifier := &recordingNotifier{}
	counterLedger := ledger.NewLedger(counters, tracker, logger)

	return &fixture{
		service:  NewChatService(messages, counterLedger, tracker, notifier, logger),
		notifier: notifier,
		messages: messages,
		counters: counters,
		tracker:  tracker,
	}
}

func (f *fixture) send(t *testing.T, sender, receiver, content string) *model.Message {
	t.Helper()
	msg, err := f.service.SendMessage(context.Background(), SendMessageInput{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    &content,
	})
	require.NoError(t, err)
	return msg
}

func (f *fixture) requireCounter(t *testing.T, ownerID, peerID string, count int, isRead bool) {
	t.Helper()
	counter, err := f.counters.Get(context.Background(), ownerID, peerID)
	require.NoError(t, err)
	require.NotNil(t, counter)
	assert.Equal(t, count, counter.Count)
	assert.Equal(t, isRead, counter.IsRead)
}

func TestChatService_SendMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - text message persists and fans out in order", func(t *testing.T) {
		f := newFixture(t)

		msg := f.send(t, "alice", "bob", "hello")
		require.NotEmpty(t, msg.ID)
		require.NotNil(t, msg.Content)
		assert.Equal(t, "hello", *msg.Content)
		assert.False(t, msg.SentAt.IsZero())
		assert.Nil(t, msg.EditedAt)

		assert.Equal(t, []string{event.EventNewMessage, event.EventCountChanged}, f.notifier.kinds())

		changes := f.notifier.countChanges()
		require.Len(t, changes, 1)
		assert.Equal(t, countChange{ownerID: "bob", peerID: "alice", count: 1, isRead: false}, changes[0])

		f.requireCounter(t, "bob", "alice", 1, false)
	})

	t.Run("happy path - gif message", func(t *testing.T) {
		f := newFixture(t)
		gif := "https://media.example/wave.gif"

		msg, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "bob",
			GifURL:     &gif,
		})
		require.NoError(t, err)
		assert.True(t, msg.IsGif())
		assert.Nil(t, msg.Content)

		f.requireCounter(t, "bob", "alice", 1, false)
	})

	t.Run("happy path - focused receiver reads instantly and still gets the count event", func(t *testing.T) {
		f := newFixture(t)
		f.tracker.SetActive(ctx, "bob", true)
		f.tracker.SetFocus(ctx, "bob", "alice")

		f.send(t, "alice", "bob", "seen immediately")

		changes := f.notifier.countChanges()
		require.Len(t, changes, 1)
		assert.Equal(t, countChange{ownerID: "bob", peerID: "alice", count: 0, isRead: true}, changes[0])
	})

	t.Run("happy path - timestamps are strictly increasing per sender", func(t *testing.T) {
		f := newFixture(t)

		var previous time.Time
		for i := 0; i < 5; i++ {
			msg := f.send(t, "alice", "bob", "tick")
			assert.True(t, msg.SentAt.After(previous))
			previous = msg.SentAt
		}
	})

	t.Run("sad path - both content and gif empty creates no record", func(t *testing.T) {
		f := newFixture(t)
		empty := ""

		_, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    &empty,
		})
		assert.ErrorIs(t, err, apperrors.ErrContentConflict)
		assert.Empty(t, f.notifier.kinds())

		window, err := f.messages.ListBetween(ctx, "alice", "bob", time.Now().Add(time.Hour), 10, repo.SortDescending)
		require.NoError(t, err)
		assert.Empty(t, window)
	})

	t.Run("sad path - content and gif together rejected", func(t *testing.T) {
		f := newFixture(t)
		content, gif := "hi", "https://media.example/hi.gif"

		_, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    &content,
			GifURL:     &gif,
		})
		assert.ErrorIs(t, err, apperrors.ErrContentConflict)
	})

	t.Run("sad path - self conversation rejected", func(t *testing.T) {
		f := newFixture(t)
		content := "talking to myself"

		_, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "alice",
			Content:    &content,
		})
		assert.ErrorIs(t, err, apperrors.ErrSelfConversation)
	})

	t.Run("sad path - missing ids rejected", func(t *testing.T) {
		f := newFixture(t)
		content := "hi"

		_, err := f.service.SendMessage(ctx, SendMessageInput{ReceiverID: "bob", Content: &content})
		assert.ErrorIs(t, err, apperrors.ErrMissingUserID)
	})

	t.Run("sad path - counter failure surfaces but message and event stand", func(t *testing.T) {
		f := newFixtureWithCounters(t, &failingCounters{CounterRepository: repo.NewMemoryCounterRepository()})
		content := "survives"

		_, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "bob",
			Content:    &content,
		})
		require.Error(t, err)
		assert.Equal(t, apperrors.CodeInternal, apperrors.CodeOf(err))

		assert.Equal(t, []string{event.EventNewMessage}, f.notifier.kinds())

		window, err := f.messages.ListBetween(ctx, "alice", "bob", time.Now().Add(time.Hour), 10, repo.SortDescending)
		require.NoError(t, err)
		assert.Len(t, window, 1)
	})
}

func TestChatService_EditMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - owner edits content only", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "draft")
		f.notifier.reset()

		edited, err := f.service.EditMessage(ctx, msg.ID, "alice", "final")
		require.NoError(t, err)
		assert.Equal(t, "final", *edited.Content)
		require.NotNil(t, edited.EditedAt)
		assert.Equal(t, msg.SentAt, edited.SentAt)

		assert.Equal(t, []string{event.EventEditedMessage}, f.notifier.kinds())
		f.requireCounter(t, "bob", "alice", 1, false)
	})

	t.Run("sad path - non-owner gets forbidden and record is untouched", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "mine")

		_, err := f.service.EditMessage(ctx, msg.ID, "bob", "hijacked")
		assert.ErrorIs(t, err, apperrors.ErrNotMessageOwner)

		stored, err := f.messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "mine", *stored.Content)
		assert.Nil(t, stored.EditedAt)
	})

	t.Run("sad path - unknown message", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.EditMessage(ctx, "ghost", "alice", "new")
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
	})

	t.Run("sad path - empty content", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "text")

		_, err := f.service.EditMessage(ctx, msg.ID, "alice", "")
		assert.ErrorIs(t, err, apperrors.ErrEmptyContent)
	})

	t.Run("sad path - gif messages are not editable", func(t *testing.T) {
		f := newFixture(t)
		gif := "https://media.example/wave.gif"
		msg, err := f.service.SendMessage(ctx, SendMessageInput{
			SenderID:   "alice",
			ReceiverID: "bob",
			GifURL:     &gif,
		})
		require.NoError(t, err)

		_, err = f.service.EditMessage(ctx, msg.ID, "alice", "caption")
		assert.ErrorIs(t, err, apperrors.ErrGifNotEditable)
	})
}

func TestChatService_DeleteMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - delete nets the unread counter back out", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "oops")
		f.notifier.reset()

		err := f.service.DeleteMessage(ctx, msg.ID, "alice")
		require.NoError(t, err)

		assert.Equal(t, []string{event.EventDeletedMessage, event.EventCountChanged}, f.notifier.kinds())

		changes := f.notifier.countChanges()
		require.Len(t, changes, 1)
		assert.Equal(t, countChange{ownerID: "bob", peerID: "alice", count: 0, isRead: false}, changes[0])

		stored, err := f.messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})

	t.Run("happy path - no counter event when nothing to roll back", func(t *testing.T) {
		f := newFixture(t)
		f.tracker.SetActive(ctx, "bob", true)
		f.tracker.SetFocus(ctx, "bob", "alice")

		msg := f.send(t, "alice", "bob", "read on arrival")
		f.notifier.reset()

		err := f.service.DeleteMessage(ctx, msg.ID, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{event.EventDeletedMessage}, f.notifier.kinds())
	})

	t.Run("sad path - non-owner cannot delete", func(t *testing.T) {
		f := newFixture(t)
		msg := f.send(t, "alice", "bob", "keep")

		err := f.service.DeleteMessage(ctx, msg.ID, "bob")
		assert.ErrorIs(t, err, apperrors.ErrNotMessageOwner)

		stored, err := f.messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
	})

	t.Run("sad path - unknown message", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.DeleteMessage(ctx, "ghost", "alice")
		assert.ErrorIs(t, err, apperrors.ErrMessageNotFound)
	})
}

func TestChatService_GetConversationHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - newest first with peer presence", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "one")
		f.send(t, "bob", "alice", "two")
		f.send(t, "alice", "bob", "three")
		f.tracker.SetActive(ctx, "bob", true)

		history, err := f.service.GetConversationHistory(ctx, HistoryQuery{
			UserID: "alice",
			PeerID: "bob",
			Limit:  20,
		})
		require.NoError(t, err)
		require.Len(t, history.Messages, 3)
		assert.Equal(t, "three", *history.Messages[0].Content)
		assert.Equal(t, "one", *history.Messages[2].Content)
		assert.True(t, history.PeerIsActive)
	})

	t.Run("happy path - ascending order and limit", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "one")
		f.send(t, "alice", "bob", "two")
		f.send(t, "alice", "bob", "three")

		history, err := f.service.GetConversationHistory(ctx, HistoryQuery{
			UserID:    "alice",
			PeerID:    "bob",
			Limit:     2,
			SortOrder: "asc",
		})
		require.NoError(t, err)
		require.Len(t, history.Messages, 2)
		assert.Equal(t, "one", *history.Messages[0].Content)
		assert.Equal(t, "two", *history.Messages[1].Content)
	})

	t.Run("happy path - identical queries return identical windows", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "one")
		f.send(t, "alice", "bob", "two")
		before := time.Now().UTC().Add(time.Minute)

		query := HistoryQuery{UserID: "alice", PeerID: "bob", Before: before, Limit: 10}
		first, err := f.service.GetConversationHistory(ctx, query)
		require.NoError(t, err)
		second, err := f.service.GetConversationHistory(ctx, query)
		require.NoError(t, err)

		assert.Equal(t, first.Messages, second.Messages)
	})

	t.Run("happy path - empty conversation is an empty window", func(t *testing.T) {
		f := newFixture(t)

		history, err := f.service.GetConversationHistory(ctx, HistoryQuery{
			UserID: "alice",
			PeerID: "stranger",
			Limit:  10,
		})
		require.NoError(t, err)
		assert.NotNil(t, history.Messages)
		assert.Empty(t, history.Messages)
		assert.False(t, history.PeerIsActive)
	})

	t.Run("sad path - non-positive limit", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.GetConversationHistory(ctx, HistoryQuery{UserID: "alice", PeerID: "bob"})
		assert.ErrorIs(t, err, apperrors.ErrInvalidLimit)
	})

	t.Run("sad path - unknown sort order", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.GetConversationHistory(ctx, HistoryQuery{
			UserID:    "alice",
			PeerID:    "bob",
			Limit:     10,
			SortOrder: "newest",
		})
		assert.ErrorIs(t, err, apperrors.ErrInvalidSortOrder)
	})
}

func TestChatService_SearchConversations(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - case-insensitive match in own conversations", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "Deploy finished")
		f.send(t, "bob", "alice", "rollback the deploy")
		f.send(t, "carol", "dave", "deploy elsewhere")

		matches, err := f.service.SearchConversations(ctx, "alice", "DEPLOY")
		require.NoError(t, err)
		assert.Len(t, matches, 2)
	})

	t.Run("happy path - no match is an empty result", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "alice", "bob", "hello")

		matches, err := f.service.SearchConversations(ctx, "alice", "nothing like this")
		require.NoError(t, err)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})

	t.Run("sad path - empty query", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.SearchConversations(ctx, "alice", "")
		assert.ErrorIs(t, err, apperrors.ErrEmptyQuery)
	})
}

func TestChatService_ChangeFocus(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - focusing a backlog marks it read", func(t *testing.T) {
		f := newFixture(t)
		f.send(t, "bob", "alice", "one")
		f.send(t, "bob", "alice", "two")
		f.send(t, "bob", "alice", "three")
		f.requireCounter(t, "alice", "bob", 3, false)
		f.notifier.reset()

		err := f.service.ChangeFocus(ctx, "alice", "bob")
		require.NoError(t, err)

		changes := f.notifier.countChanges()
		require.Len(t, changes, 1)
		assert.Equal(t, countChange{ownerID: "alice", peerID: "bob", count: 0, isRead: true}, changes[0])
		f.requireCounter(t, "alice", "bob", 0, true)
	})

	t.Run("happy path - switching focus settles both pairs", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.ChangeFocus(ctx, "alice", "bob"))
		f.notifier.reset()

		require.NoError(t, f.service.ChangeFocus(ctx, "alice", "carol"))

		changes := f.notifier.countChanges()
		require.Len(t, changes, 2)
		assert.Equal(t, countChange{ownerID: "alice", peerID: "bob", count: 0, isRead: false}, changes[0])
		assert.Equal(t, countChange{ownerID: "alice", peerID: "carol", count: 0, isRead: true}, changes[1])

		f.requireCounter(t, "alice", "bob", 0, false)
		f.requireCounter(t, "alice", "carol", 0, true)
	})

	t.Run("happy path - closing focus emits the leave-side event only", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.ChangeFocus(ctx, "alice", "bob"))
		f.notifier.reset()

		require.NoError(t, f.service.ChangeFocus(ctx, "alice", ""))

		changes := f.notifier.countChanges()
		require.Len(t, changes, 1)
		assert.Equal(t, countChange{ownerID: "alice", peerID: "bob", count: 0, isRead: false}, changes[0])
	})

	t.Run("sad path - focusing yourself rejected", func(t *testing.T) {
		f := newFixture(t)

		err := f.service.ChangeFocus(ctx, "alice", "alice")
		assert.ErrorIs(t, err, apperrors.ErrSelfConversation)
	})
}

func TestChatService_Presence(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path - presence events fire even when nothing changed", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.service.SetActive(ctx, "alice", true))
		require.NoError(t, f.service.SetActive(ctx, "alice", true))

		kinds := f.notifier.kinds()
		assert.Equal(t, []string{event.EventPresenceChanged, event.EventPresenceChanged}, kinds)
	})

	t.Run("happy path - going offline stops the instant-read path", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.SetActive(ctx, "bob", true))
		require.NoError(t, f.service.ChangeFocus(ctx, "bob", "alice"))

		f.send(t, "alice", "bob", "seen live")
		f.requireCounter(t, "bob", "alice", 0, true)

		require.NoError(t, f.service.SetActive(ctx, "bob", false))

		f.send(t, "alice", "bob", "missed")
		f.requireCounter(t, "bob", "alice", 1, false)
	})

	t.Run("happy path - reconnect does not resume the old focus", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.service.SetActive(ctx, "bob", true))
		require.NoError(t, f.service.ChangeFocus(ctx, "bob", "alice"))
		require.NoError(t, f.service.SetActive(ctx, "bob", false))
		require.NoError(t, f.service.SetActive(ctx, "bob", true))

		f.send(t, "alice", "bob", "after reconnect")
		f.requireCounter(t, "bob", "alice", 1, false)
	})

	t.Run("happy path - status message fans out", func(t *testing.T) {
		f := newFixture(t)

		require.NoError(t, f.service.SetStatusMessage(ctx, "alice", "in a meeting"))

		kinds := f.notifier.kinds()
		require.Len(t, kinds, 1)
		assert.Equal(t, event.EventStatusMessage, kinds[0])
	})

	t.Run("sad path - missing user id", func(t *testing.T) {
		f := newFixture(t)

		assert.ErrorIs(t, f.service.SetActive(ctx, "", true), apperrors.ErrMissingUserID)
		assert.ErrorIs(t, f.service.SetStatusMessage(ctx, "", "x"), apperrors.ErrMissingUserID)
		assert.ErrorIs(t, f.service.ChangeFocus(ctx, "", "bob"), apperrors.ErrMissingUserID)
	})
}

func TestChatService_ConcurrentSends(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const sends = 10

	var wg sync.WaitGroup
	wg.Add(sends)
	for i := 0; i < sends; i++ {
		go func() {
			defer wg.Done()
			content := "racing"
			_, err := f.service.SendMessage(ctx, SendMessageInput{
				SenderID:   "alice",
				ReceiverID: "bob",
				Content:    &content,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	f.requireCounter(t, "bob", "alice", sends, false)
}
