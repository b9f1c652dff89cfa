//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/observability"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IGroupDirectory is the read-only view of group membership owned by persistence.
// MembersOf returns errors.ErrGroupNotFound for an unknown group.
type IGroupDirectory interface {
	GroupsContaining(ctx context.Context, userID domain.UserID) ([]domain.GroupID, error)
	MembersOf(ctx context.Context, groupID domain.GroupID) ([]domain.UserID, error)
}

type ITokenVerifier interface {
	Verify(token string) (domain.Identity, error)
}

type IUserLookup interface {
	UserExists(ctx context.Context, userID domain.UserID) (bool, error)
}

// IDispatcher is the producer-facing fan-out API. Deliver never fails as a whole.
type IDispatcher interface {
	Deliver(ctx context.Context, target domain.DeliveryTarget, event string, payload any)
}

// IModerator rewrites message content before it is stored. It returns the matched words.
type IModerator interface {
	Censor(content string) (string, []string)
}

// IPresence is what supervised workers need from the presence engine.
type IPresence interface {
	Snapshot() observability.PresenceSnapshot
	ExpireSessions(now time.Time) int
}
