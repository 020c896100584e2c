package clock

import (
	"testing"
	"time"
)

func TestFake_AfterAdvancesTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var calls []int
	f.OnAfter(func(n int) { calls = append(calls, n) })

	<-f.After(50 * time.Millisecond)
	fired := <-f.After(100 * time.Millisecond)

	if want := start.Add(150 * time.Millisecond); !fired.Equal(want) {
		t.Errorf("fired at %v, want %v", fired, want)
	}
	if got := f.Now(); !got.Equal(start.Add(150 * time.Millisecond)) {
		t.Errorf("Now() = %v", got)
	}
	waits := f.Waits()
	if len(waits) != 2 || waits[0] != 50*time.Millisecond || waits[1] != 100*time.Millisecond {
		t.Errorf("Waits() = %v", waits)
	}
	if len(calls) != 2 || calls[1] != 2 {
		t.Errorf("OnAfter calls = %v, want [1 2]", calls)
	}
}

func TestFake_AdvanceDoesNotRecord(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	f.Advance(time.Second)
	if len(f.Waits()) != 0 {
		t.Error("Advance must not record a wait")
	}
	if f.Now().Unix() != 1 {
		t.Errorf("Now() = %v, want 1s", f.Now())
	}
}
