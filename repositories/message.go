//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Newest possible timestamp segment, used to seek to the end of a conversation.
const lastTimestamp = "9999999999999999999"

type IMessageRepository interface {
	StoreMessage(message domain.Message) error
	GetHistory(conversation string, offset, limit int) ([]domain.Message, int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// DirectConversation is the same for both participants.
func DirectConversation(a, b domain.UserID) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%s:%s", a, b)
}

func GroupConversation(groupID domain.GroupID) string {
	return fmt.Sprintf("group:%s", groupID)
}

func ConversationOf(message domain.Message) string {
	if message.IsDirect() {
		return DirectConversation(message.SenderID, message.ReceiverID)
	}
	return GroupConversation(message.GroupID)
}

// StoreMessage persists a message in BadgerDB.
// The key is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Keep chronological order with 19-digit zero padding (lexicographical order).
//  2. Avoid collisions when two messages share the same nanosecond.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		ConversationOf(message),
		message.CreatedAt.UnixNano(),
		message.ID,
	)
	data, err := marshalRecord(map[string]any{
		"id":          message.ID.String(),
		"sender_id":   string(message.SenderID),
		"receiver_id": string(message.ReceiverID),
		"group_id":    string(message.GroupID),
		"content":     message.Content,
		"created_at":  timeValue(message.CreatedAt),
	})
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// GetHistory returns one page of a conversation, newest first, with the total
// number of messages in it. Keys are walked in reverse without prefetching values
// so only the requested window is decoded.
func (m MessageRepository) GetHistory(conversation string, offset, limit int) ([]domain.Message, int, error) {
	var messages []domain.Message
	total := 0

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("msg:%s:", conversation))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := append(append([]byte{}, prefix...), []byte(lastTimestamp)...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			index := total
			total++
			if index < offset || index >= offset+limit {
				continue
			}
			err := it.Item().Value(func(value []byte) error {
				message, err := toMessage(value)
				if err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	m.log.Debug("History read", "conversation", conversation, "total", total, "returned", len(messages))
	return messages, total, nil
}

func toMessage(value []byte) (domain.Message, error) {
	record, err := unmarshalRecord(value)
	if err != nil {
		return domain.Message{}, err
	}
	id, err := uuid.Parse(stringField(record, "id"))
	if err != nil {
		return domain.Message{}, err
	}
	createdAt, err := timeField(record, "created_at")
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         id,
		SenderID:   domain.UserID(stringField(record, "sender_id")),
		ReceiverID: domain.UserID(stringField(record, "receiver_id")),
		GroupID:    domain.GroupID(stringField(record, "group_id")),
		Content:    stringField(record, "content"),
		CreatedAt:  createdAt,
	}, nil
}
