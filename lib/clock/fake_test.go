// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var start = time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(start)
	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}
	c.Advance(90 * time.Second)
	if got, want := c.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestAfterFiresAtDeadline(t *testing.T) {
	c := Fake(start)
	ch := c.After(time.Minute)

	c.Advance(59 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		if want := start.Add(time.Minute); !fired.Equal(want) {
			t.Fatalf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestAfterNonPositiveFiresImmediately(t *testing.T) {
	c := Fake(start)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not deliver immediately")
	}
}

func TestAfterFiresOnce(t *testing.T) {
	c := Fake(start)
	ch := c.After(time.Second)
	c.Advance(time.Second)
	<-ch
	c.Advance(time.Hour)
	select {
	case <-ch:
		t.Fatal("one-shot waiter fired twice")
	default:
	}
}

func TestTickerDeliversEachInterval(t *testing.T) {
	c := Fake(start)
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for i := 1; i <= 3; i++ {
		c.Advance(10 * time.Second)
		select {
		case fired := <-ticker.C:
			want := start.Add(time.Duration(i) * 10 * time.Second)
			if !fired.Equal(want) {
				t.Fatalf("tick %d at %v, want %v", i, fired, want)
			}
		default:
			t.Fatalf("missing tick %d", i)
		}
	}
}

// A large Advance delivers at most one tick when nobody drains the
// channel in between: capacity is 1 and overflow ticks drop.
func TestTickerDropsWhenBehind(t *testing.T) {
	c := Fake(start)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(5 * time.Second)

	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticker queued more than one tick")
	default:
	}
}

func TestTickerStop(t *testing.T) {
	c := Fake(start)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestSleepBlocksUntilAdvance(t *testing.T) {
	c := Fake(start)
	done := make(chan struct{})
	go func() {
		c.Sleep(time.Minute)
		close(done)
	}()

	c.WaitForWaiters(1)
	select {
	case <-done:
		t.Fatal("Sleep returned before Advance")
	default:
	}

	c.Advance(time.Minute)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Sleep did not return after Advance")
	}
}

func TestAdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(start)
	late := c.After(3 * time.Second)
	early := c.After(time.Second)

	c.Advance(5 * time.Second)

	earlyAt := <-early
	lateAt := <-late
	if !earlyAt.Before(lateAt) {
		t.Fatalf("fire order wrong: early=%v late=%v", earlyAt, lateAt)
	}
}
