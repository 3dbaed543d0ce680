package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var seen []string
	d.Subscribe(EventTicketResolved, func(_ context.Context, e Event) error {
		seen = append(seen, "first:"+e.TicketID)
		return errors.New("boom")
	})
	d.Subscribe(EventTicketResolved, func(_ context.Context, e Event) error {
		if e.ID == "" || e.Timestamp.IsZero() {
			t.Error("event not stamped")
		}
		seen = append(seen, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketDeclined, func(context.Context, Event) error {
		t.Error("unrelated handler invoked")
		return nil
	})

	if err := d.Publish(context.Background(), Event{Type: EventTicketResolved, TicketID: "t-1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(seen) != 2 || seen[0] != "first:t-1" || seen[1] != "second:t-1" {
		t.Fatalf("seen = %v", seen)
	}
}
