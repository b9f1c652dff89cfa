package repositories

import (
	"chat-relay/domain"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(sender, receiver domain.UserID, group domain.GroupID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		GroupID:    group,
		Content:    content,
		CreatedAt:  at,
	}
}

func Test_Record_And_Get_Sorted_Messages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.New(slog.DiscardHandler))
	at := time.Now().UTC()

	messages := []domain.Message{
		newMessage("alice", "bob", "", "first", at),
		newMessage("bob", "alice", "", "second", at.Add(time.Minute)),
		newMessage("alice", "bob", "", "third", at.Add(2*time.Minute)),
		newMessage("alice", "carol", "", "elsewhere", at.Add(3*time.Minute)),
	}
	for _, message := range messages {
		req.NoError(repository.StoreMessage(message))
	}

	// When fetching the alice/bob conversation from either side
	fetched, total, err := repository.GetHistory(DirectConversation("bob", "alice"), 0, 25)

	// Then messages of both directions are returned newest first
	req.NoError(err)
	req.Equal(3, total)
	req.Equal([]domain.Message{messages[2], messages[1], messages[0]}, fetched)
}

func Test_Get_History_Pages(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.New(slog.DiscardHandler))
	at := time.Now().UTC()

	for i := 0; i < 5; i++ {
		req.NoError(repository.StoreMessage(newMessage("alice", "", "g1", fmt.Sprintf("m%d", i), at.Add(time.Duration(i)*time.Second))))
	}

	page, total, err := repository.GetHistory(GroupConversation("g1"), 2, 2)
	req.NoError(err)
	req.Equal(5, total)
	req.Len(page, 2)
	req.Equal("m2", page[0].Content)
	req.Equal("m1", page[1].Content)

	page, total, err = repository.GetHistory(GroupConversation("g1"), 10, 2)
	req.NoError(err)
	req.Equal(5, total)
	req.Empty(page)

	page, total, err = repository.GetHistory(GroupConversation("other"), 0, 2)
	req.NoError(err)
	req.Zero(total)
	req.Empty(page)
}

func Test_Messages_Sharing_A_Timestamp_Are_Kept(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.New(slog.DiscardHandler))
	at := time.Now().UTC()

	req.NoError(repository.StoreMessage(newMessage("alice", "", "g1", "a", at)))
	req.NoError(repository.StoreMessage(newMessage("bob", "", "g1", "b", at)))

	_, total, err := repository.GetHistory(GroupConversation("g1"), 0, 25)
	req.NoError(err)
	req.Equal(2, total)
}

func Benchmark_GetHistory_Last_Page(b *testing.B) {
	db := openTestDB(b)
	repository := NewMessageRepository(db, slog.New(slog.DiscardHandler))
	at := time.Now().UTC()

	wb := db.NewWriteBatch()
	for i := 0; i < 10_000; i++ {
		message := newMessage("alice", "", "g1", "Hello world, this is a history benchmark", at.Add(time.Duration(i)*time.Nanosecond))
		key := fmt.Sprintf("msg:%s:%019d:%s", GroupConversation("g1"), message.CreatedAt.UnixNano(), message.ID)
		data, err := marshalRecord(map[string]any{
			"id":         message.ID.String(),
			"sender_id":  string(message.SenderID),
			"group_id":   string(message.GroupID),
			"content":    message.Content,
			"created_at": timeValue(message.CreatedAt),
		})
		require.NoError(b, err)
		require.NoError(b, wb.Set([]byte(key), data))
	}
	require.NoError(b, wb.Flush())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := repository.GetHistory(GroupConversation("g1"), 9_900, 100); err != nil {
			b.Fatal(err)
		}
	}
}
