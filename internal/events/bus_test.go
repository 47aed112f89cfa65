package events

import "testing"

func TestPublishDeliversToMatchingTopicOnly(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(TopicQueue)
	defer sub.Unsubscribe()

	bus.Publish(TopicDownloads, "progress", nil)
	bus.Publish(TopicQueue, "job_completed", "job-1")

	select {
	case evt := <-sub.Events:
		if evt.Topic != TopicQueue || evt.Type != "job_completed" {
			t.Fatalf("unexpected event %+v", evt)
		}
	default:
		t.Fatal("expected a delivered event")
	}

	select {
	case evt := <-sub.Events:
		t.Fatalf("expected no second event, got %+v", evt)
	default:
	}
}

func TestPublishDropsWhenSubscriberBufferFull(t *testing.T) {
	bus := New(1)
	sub := bus.Subscribe(TopicModels)
	defer sub.Unsubscribe()

	bus.Publish(TopicModels, "a", nil)
	bus.Publish(TopicModels, "b", nil)

	if sub.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", sub.Dropped())
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(TopicQueue)
	sub.Unsubscribe()

	_, ok := <-sub.Events
	if ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
}

func TestUnsubscribedSubscriberReceivesNothing(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(TopicGenerations)
	sub.Unsubscribe()

	bus.Publish(TopicGenerations, "created", nil)

	if bus.SubscriberCount() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", bus.SubscriberCount())
	}
}
