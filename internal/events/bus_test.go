package events

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for event")
		return nil
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 10)
	bus.Publish(TaskStartedEvent{ID: "diffstat", GroupID: 0, Timestamp: time.Now()})

	ev := receive(t, ch)
	assert.Equal(t, "diffstat", ev.TaskID())
	assert.Equal(t, EventTypeTaskStarted, ev.EventType())
}

func TestTopicRouting(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	taskCh := bus.Subscribe(TopicTask, 10)
	wfCh := bus.Subscribe(TopicWorkflow, 10)

	bus.Publish(WorkflowProgressEvent{Total: 3, Completed: 1})

	ev := receive(t, wfCh)
	assert.Equal(t, EventTypeWorkflowProgress, ev.EventType())
	select {
	case ev := <-taskCh:
		t.Fatalf("task subscriber received workflow event %s", ev.EventType())
	default:
	}
}

func TestMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch1 := bus.Subscribe(TopicTask, 10)
	ch2 := bus.Subscribe(TopicTask, 10)

	bus.Publish(TaskCompletedEvent{ID: "verdict", Method: "rules", Duration: 100 * time.Millisecond})

	for _, ch := range []<-chan Event{ch1, ch2} {
		assert.Equal(t, "verdict", receive(t, ch).TaskID())
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	all := bus.SubscribeAll(10)
	bus.Publish(TaskSkippedEvent{ID: "notify", Reason: "disabled"})
	bus.Publish(GroupFinishedEvent{GroupID: 2})

	assert.Equal(t, EventTypeTaskSkipped, receive(t, all).EventType())
	assert.Equal(t, EventTypeGroupFinished, receive(t, all).EventType())
}

func TestNonBlockingSendCountsDrops(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	_ = bus.Subscribe(TopicTask, 1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(TaskStartedEvent{ID: fmt.Sprintf("task-%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, uint64(9), bus.Dropped())
}

func TestCloseIsIdempotentAndClosesChannels(t *testing.T) {
	bus := NewEventBus()
	ch := bus.Subscribe(TopicTask, 1)
	all := bus.SubscribeAll(1)

	bus.Close()
	bus.Close()

	_, ok := <-ch
	assert.False(t, ok)
	_, ok = <-all
	assert.False(t, ok)

	late := bus.Subscribe(TopicTask, 1)
	_, ok = <-late
	assert.False(t, ok, "subscriptions after close are closed immediately")

	bus.Publish(TaskStartedEvent{ID: "x"})
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *EventBus
	bus.Publish(TaskStartedEvent{ID: "x"})
	bus.Close()
	assert.Zero(t, bus.Dropped())

	_, ok := <-bus.SubscribeAll(1)
	assert.False(t, ok)
}

func TestConcurrentPublish(t *testing.T) {
	bus := NewEventBus()
	defer bus.Close()

	ch := bus.Subscribe(TopicTask, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				bus.Publish(TaskCompletedEvent{ID: fmt.Sprintf("t-%d-%d", i, j)})
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, ch, 500)
}

func TestTopicOf(t *testing.T) {
	assert.Equal(t, TopicTask, TopicOf(TaskFailedEvent{}))
	assert.Equal(t, TopicWorkflow, TopicOf(WorkflowFinishedEvent{}))
}
