package runtime_test

import (
	"chat-relay/domain"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/runtime"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
)

func TestOrchestrator_LoadTest(t *testing.T) {
	if testing.Short() {
		t.Skip("load test")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const (
		numUsers       = 200
		devicesPerUser = 2
		numMessages    = 500
		bufferSize     = 1024
	)

	log := slog.New(slog.DiscardHandler)
	ctrl := gomock.NewController(t)
	verifier := mocks.NewMockITokenVerifier(ctrl)
	users := mocks.NewMockIUserLookup(ctrl)
	directory := mocks.NewMockIGroupDirectory(ctrl)

	verifier.EXPECT().Verify(gomock.Any()).DoAndReturn(func(token string) (domain.Identity, error) {
		return domain.Identity{UserID: domain.UserID(token)}, nil
	}).AnyTimes()
	users.EXPECT().UserExists(gomock.Any(), gomock.Any()).Return(true, nil).AnyTimes()
	directory.EXPECT().GroupsContaining(gomock.Any(), gomock.Any()).Return([]domain.GroupID{"lobby"}, nil).AnyTimes()

	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry(32)
	tracker := runtime.NewTracker(log, directory, time.Second, 32)
	o := runtime.NewOrchestrator(log, mocks.NewMockISupervisor(ctrl), registry, tracker,
		runtime.NewAuthenticator(verifier, users),
		runtime.NewDispatcher(log, registry, tracker, monitoring),
		monitoring,
		runtime.Settings{BufferSize: bufferSize},
	)

	// Every connection drains its own outbound channel like a transport writer would
	var received atomic.Int64
	var readers sync.WaitGroup
	for u := 0; u < numUsers; u++ {
		for d := 0; d < devicesPerUser; d++ {
			conn, err := o.OnConnectionOpen(ctx, fmt.Sprintf("user-%d", u), "load")
			if err != nil {
				t.Fatal(err)
			}
			readers.Add(1)
			go func() {
				defer readers.Done()
				for range conn.Outbound() {
					received.Add(1)
				}
			}()
		}
	}

	start := time.Now()
	var producers sync.WaitGroup
	for i := 0; i < numMessages; i++ {
		producers.Add(1)
		go func(i int) {
			defer producers.Done()
			o.Deliver(ctx, domain.GroupTarget{GroupID: "lobby"}, domain.EventGroupMessage, map[string]int{"seq": i})
		}(i)
	}
	producers.Wait()
	duration := time.Since(start)

	for _, conn := range o.Connections() {
		o.OnConnectionClose(conn.ID())
	}
	readers.Wait()

	stats := monitoring.GetLatest()
	expected := int64(numUsers * devicesPerUser * numMessages)
	t.Logf("Delivered %d envelopes in %v (%.0f/s), failures %d",
		received.Load(), duration, float64(received.Load())/duration.Seconds(), stats.DeliveryFailures)

	if received.Load()+int64(stats.DeliveryFailures) != expected {
		t.Fatalf("expected %d deliveries or failures, got %d + %d", expected, received.Load(), stats.DeliveryFailures)
	}
}
