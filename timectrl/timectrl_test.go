package timectrl

import (
	"context"
	"testing"
	"time"
)

func TestTimeControllerSetTime(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, RealTime)

	newNow := start.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if got := tc.Elapsed(); got != 42 {
		t.Fatalf("Elapsed() = %v, want 42", got)
	}
}

func TestTimeControllerStepNotifiesListeners(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 500*time.Millisecond, Accelerated)

	var got []Tick
	tc.AddListener(func(tick Tick) { got = append(got, tick) })
	tc.Step()
	tc.Step()

	if len(got) != 2 {
		t.Fatalf("listener called %d times, want 2", len(got))
	}
	last := got[1]
	if last.Index != 2 || last.Elapsed != 1 || last.Step != 0.5 {
		t.Fatalf("last tick = %+v, want index 2 at 1s with 0.5s step", last)
	}
	if tc.Ticks() != 2 {
		t.Fatalf("Ticks() = %d, want 2", tc.Ticks())
	}
}

func TestTimeControllerListenerAddedDuringStepRunsNextTick(t *testing.T) {
	tc := NewTimeController(time.Unix(0, 0), time.Second, Accelerated)

	var late []int64
	tc.AddListener(func(tick Tick) {
		if tick.Index == 1 {
			tc.AddListener(func(tick Tick) { late = append(late, tick.Index) })
		}
	})
	tc.Step()
	if len(late) != 0 {
		t.Fatalf("listener added during tick 1 ran in the same tick: %v", late)
	}
	tc.Step()
	if len(late) != 1 || late[0] != 2 {
		t.Fatalf("late listener saw %v, want [2]", late)
	}
}

func TestTimeControllerStartUpdatesNow(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, 5*time.Millisecond, Accelerated)

	done := tc.Start(context.Background(), 15*time.Millisecond)
	<-done

	expected := start.Add(15 * time.Millisecond)
	if got := tc.Now(); !got.Equal(expected) {
		t.Fatalf("Now() = %v, want %v", got, expected)
	}
}

func TestTimeControllerStopsOnCancel(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Millisecond, RealTime)

	ctx, cancel := context.WithCancel(context.Background())
	done := tc.Start(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop after cancel")
	}
}
