package eventstream

import (
	"testing"
	"time"
)

type intEvent struct {
	val      int
	terminal bool
}

func (e intEvent) IsTerminal() bool  { return e.terminal }
func (e intEvent) ExtractResult() int { return e.val }

func TestStreamPushAndResult(t *testing.T) {
	s := New[intEvent, int]()

	go func() {
		s.Push(intEvent{val: 1})
		s.Push(intEvent{val: 2})
		s.Push(intEvent{val: 99, terminal: true})
		s.Push(intEvent{val: 100}) // ignored: stream already ended
	}()

	var got []int
	for {
		evt, ok := s.Next()
		if !ok {
			break
		}
		got = append(got, evt.val)
		if evt.terminal {
			break
		}
	}

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 99 {
		t.Fatalf("Next() sequence = %v, want [1 2 99]", got)
	}

	if r := s.Result(); r != 99 {
		t.Errorf("Result() = %d, want 99", r)
	}
}

func TestStreamEndWithoutResult(t *testing.T) {
	s := New[intEvent, int]()
	s.Push(intEvent{val: 7})

	go s.End(nil)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() never closed after End(nil)")
	}

	if r := s.Result(); r != 0 {
		t.Errorf("Result() after End(nil) = %d, want 0", r)
	}
}

func TestStreamEndWithResult(t *testing.T) {
	s := New[intEvent, int]()
	r := 42
	s.End(&r)

	if got := s.Result(); got != 42 {
		t.Errorf("Result() = %d, want 42", got)
	}

	// Push after End is a no-op; Next should report no more events.
	s.Push(intEvent{val: 1})
	if _, ok := s.Next(); ok {
		t.Error("Next() after End returned an event, want ok=false")
	}
}

func TestStreamPushAfterTerminalIsNoop(t *testing.T) {
	s := New[intEvent, int]()
	s.Push(intEvent{val: 1, terminal: true})
	s.Push(intEvent{val: 2, terminal: true})

	if r := s.Result(); r != 1 {
		t.Errorf("Result() = %d, want 1 (second terminal push should be dropped)", r)
	}
}
