package schedule

import (
	"testing"

	"epdtext/internal/transport"
)

func TestNewInvalid(t *testing.T) {
	for _, spec := range []string{"", "not a schedule", "61 * * * *"} {
		if _, err := New(spec, transport.NewQueue(1, 0)); err == nil {
			t.Errorf("New(%q) succeeded", spec)
		}
	}
}

func TestJobQueuesRedraw(t *testing.T) {
	q := transport.NewQueue(1, 0)
	s, err := New("0 4 * * *", q)
	if err != nil {
		t.Fatal(err)
	}

	s.run()
	c, ok := q.Poll()
	if !ok || !c.Redraw || len(c.Data) != 0 {
		t.Fatalf("Poll() = %+v, %v; want a redraw chunk", c, ok)
	}

	// A full queue drops the redraw instead of blocking.
	s.run()
	s.run()
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1", q.Len())
	}
}

func TestStartStop(t *testing.T) {
	s, err := New("@hourly", transport.NewQueue(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Next().IsZero() {
		t.Error("Next() before Start is set")
	}
	s.Start()
	if s.Next().IsZero() {
		t.Error("Next() after Start is zero")
	}
	<-s.Stop().Done()
}
