package repo

import (
	"context"
	"testing"
	"time"

	"minchat/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func seedMessage(t *testing.T, messages MessageRepository, sender, receiver, content string, sentAt time.Time) *model.Message {
	t.Helper()
	msg, err := messages.Insert(context.Background(), &model.Message{
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    strPtr(content),
		SentAt:     sentAt,
	})
	require.NoError(t, err)
	return msg
}

func TestMemoryMessageRepository_InsertAndGet(t *testing.T) {
	messages := NewMemoryMessageRepository()
	ctx := context.Background()

	t.Run("happy path - insert assigns id and round-trips", func(t *testing.T) {
		msg := seedMessage(t, messages, "alice", "bob", "hello", time.Now())
		require.NotEmpty(t, msg.ID)

		got, err := messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "alice", got.SenderID)
		assert.Equal(t, "bob", got.ReceiverID)
		assert.Equal(t, "hello", *got.Content)
	})

	t.Run("happy path - stored copy is isolated from caller mutation", func(t *testing.T) {
		msg := seedMessage(t, messages, "alice", "bob", "original", time.Now())
		*msg.Content = "mutated"

		got, err := messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "original", *got.Content)
	})

	t.Run("sad path - unknown id yields nil without error", func(t *testing.T) {
		got, err := messages.GetByID(ctx, "no-such-id")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("sad path - empty id rejected", func(t *testing.T) {
		_, err := messages.GetByID(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestMemoryMessageRepository_UpdateAndDelete(t *testing.T) {
	messages := NewMemoryMessageRepository()
	ctx := context.Background()

	t.Run("happy path - update content reports matched", func(t *testing.T) {
		msg := seedMessage(t, messages, "alice", "bob", "before", time.Now())

		editedAt := time.Now()
		updated, err := messages.UpdateContent(ctx, msg.ID, "after", editedAt)
		require.NoError(t, err)
		assert.True(t, updated)

		got, err := messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "after", *got.Content)
		require.NotNil(t, got.EditedAt)
		assert.WithinDuration(t, editedAt, *got.EditedAt, time.Millisecond)
		assert.Equal(t, msg.SentAt.Unix(), got.SentAt.Unix())
	})

	t.Run("sad path - update on missing id reports unmatched", func(t *testing.T) {
		updated, err := messages.UpdateContent(ctx, "ghost", "text", time.Now())
		require.NoError(t, err)
		assert.False(t, updated)
	})

	t.Run("happy path - delete reports removal exactly once", func(t *testing.T) {
		msg := seedMessage(t, messages, "alice", "bob", "doomed", time.Now())

		deleted, err := messages.Delete(ctx, msg.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = messages.Delete(ctx, msg.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		got, err := messages.GetByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMemoryMessageRepository_ListBetween(t *testing.T) {
	messages := NewMemoryMessageRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, messages, "alice", "bob", "first", base)
	seedMessage(t, messages, "bob", "alice", "second", base.Add(1*time.Minute))
	seedMessage(t, messages, "alice", "bob", "third", base.Add(2*time.Minute))
	seedMessage(t, messages, "alice", "carol", "off-pair", base.Add(3*time.Minute))

	t.Run("happy path - returns both directions of the pair", func(t *testing.T) {
		window, err := messages.ListBetween(ctx, "alice", "bob", base.Add(time.Hour), 20, SortDescending)
		require.NoError(t, err)
		require.Len(t, window, 3)
		assert.Equal(t, "third", *window[0].Content)
		assert.Equal(t, "second", *window[1].Content)
		assert.Equal(t, "first", *window[2].Content)
	})

	t.Run("happy path - before cursor excludes equal and later timestamps", func(t *testing.T) {
		window, err := messages.ListBetween(ctx, "alice", "bob", base.Add(1*time.Minute), 20, SortAscending)
		require.NoError(t, err)
		require.Len(t, window, 1)
		assert.Equal(t, "first", *window[0].Content)
	})

	t.Run("happy path - limit trims after ordering", func(t *testing.T) {
		window, err := messages.ListBetween(ctx, "alice", "bob", base.Add(time.Hour), 2, SortDescending)
		require.NoError(t, err)
		require.Len(t, window, 2)
		assert.Equal(t, "third", *window[0].Content)
		assert.Equal(t, "second", *window[1].Content)
	})

	t.Run("happy path - pair with no history yields empty window", func(t *testing.T) {
		window, err := messages.ListBetween(ctx, "dave", "erin", base.Add(time.Hour), 20, SortDescending)
		require.NoError(t, err)
		assert.Empty(t, window)
	})
}

func TestMemoryMessageRepository_Search(t *testing.T) {
	messages := NewMemoryMessageRepository()
	ctx := context.Background()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	seedMessage(t, messages, "alice", "bob", "Deploy is done", base)
	seedMessage(t, messages, "bob", "alice", "deploy failed again", base.Add(1*time.Minute))
	seedMessage(t, messages, "carol", "dave", "deploy for another pair", base.Add(2*time.Minute))

	gif, err := messages.Insert(ctx, &model.Message{
		SenderID:   "alice",
		ReceiverID: "bob",
		GifURL:     strPtr("https://media.example/deploy.gif"),
		SentAt:     base.Add(3 * time.Minute),
	})
	require.NoError(t, err)
	require.NotNil(t, gif)

	t.Run("happy path - case-insensitive match over own conversations only", func(t *testing.T) {
		matches, err := messages.Search(ctx, "alice", "DEPLOY")
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "deploy failed again", *matches[0].Content)
		assert.Equal(t, "Deploy is done", *matches[1].Content)
	})

	t.Run("happy path - gif messages are never matched", func(t *testing.T) {
		matches, err := messages.Search(ctx, "alice", "deploy.gif")
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("sad path - empty user id rejected", func(t *testing.T) {
		_, err := messages.Search(ctx, "", "deploy")
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}

func TestMemoryCounterRepository(t *testing.T) {
	counters := NewMemoryCounterRepository()
	ctx := context.Background()

	t.Run("happy path - get before first upsert yields nil", func(t *testing.T) {
		counter, err := counters.Get(ctx, "alice", "bob")
		require.NoError(t, err)
		assert.Nil(t, counter)
	})

	t.Run("happy path - upsert then get round-trips the pair", func(t *testing.T) {
		err := counters.Upsert(ctx, &model.UnreadCounter{
			OwnerID:   "alice",
			PeerID:    "bob",
			Count:     3,
			IsRead:    false,
			UpdatedAt: time.Now(),
		})
		require.NoError(t, err)

		counter, err := counters.Get(ctx, "alice", "bob")
		require.NoError(t, err)
		require.NotNil(t, counter)
		assert.Equal(t, 3, counter.Count)
		assert.False(t, counter.IsRead)
	})

	t.Run("happy path - orientation is directional", func(t *testing.T) {
		counter, err := counters.Get(ctx, "bob", "alice")
		require.NoError(t, err)
		assert.Nil(t, counter)
	})

	t.Run("happy path - second upsert overwrites the same pair", func(t *testing.T) {
		err := counters.Upsert(ctx, &model.UnreadCounter{
			OwnerID:   "alice",
			PeerID:    "bob",
			Count:     0,
			IsRead:    true,
			UpdatedAt: time.Now(),
		})
		require.NoError(t, err)

		counter, err := counters.Get(ctx, "alice", "bob")
		require.NoError(t, err)
		require.NotNil(t, counter)
		assert.Equal(t, 0, counter.Count)
		assert.True(t, counter.IsRead)
	})

	t.Run("sad path - nil counter rejected", func(t *testing.T) {
		err := counters.Upsert(ctx, nil)
		assert.ErrorIs(t, err, ErrInvalidRecord)
	})
}

func TestMemoryPresenceRepository(t *testing.T) {
	presence := NewMemoryPresenceRepository()
	ctx := context.Background()

	t.Run("happy path - unknown user yields nil", func(t *testing.T) {
		got, err := presence.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("happy path - upsert preserves focus pointer isolation", func(t *testing.T) {
		peer := "bob"
		err := presence.Upsert(ctx, &model.UserPresence{
			UserID:        "alice",
			IsActive:      true,
			FocusedPeerID: &peer,
			StatusMessage: "shipping",
			UpdatedAt:     time.Now(),
		})
		require.NoError(t, err)

		peer = "carol"

		got, err := presence.Get(ctx, "alice")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.NotNil(t, got.FocusedPeerID)
		assert.Equal(t, "bob", *got.FocusedPeerID)
		assert.Equal(t, "shipping", got.StatusMessage)
	})

	t.Run("sad path - empty user id rejected", func(t *testing.T) {
		err := presence.Upsert(ctx, &model.UserPresence{UserID: ""})
		assert.ErrorIs(t, err, ErrInvalidID)
	})
}
