package callflow

import (
	"sync"
	"testing"
)

func TestArenaPutGetRemove(t *testing.T) {
	arena := NewArena()
	if got := arena.Get("missing"); got != nil {
		t.Fatalf("expected nil for unknown ref, got %+v", got)
	}

	sess := &Session{Ref: "call-1", State: StateSpeaking}
	arena.Put(sess)

	if got := arena.Get("call-1"); got != sess {
		t.Fatalf("expected the stored session back")
	}
	if arena.Len() != 1 {
		t.Fatalf("expected one live session, got %d", arena.Len())
	}

	arena.Remove("call-1")
	if arena.Get("call-1") != nil {
		t.Fatalf("expected teardown to remove the session")
	}
	if arena.Len() != 0 {
		t.Fatalf("expected empty arena after removal")
	}
}

func TestArenaReplacesStaleEntry(t *testing.T) {
	arena := NewArena()
	arena.Put(&Session{Ref: "call-1", State: StateDone})
	fresh := &Session{Ref: "call-1", State: StateAnswered}
	arena.Put(fresh)

	if got := arena.Get("call-1"); got != fresh {
		t.Fatalf("duplicate answered must replace the stale session")
	}
	if arena.Len() != 1 {
		t.Fatalf("replacement must not leak entries, got %d", arena.Len())
	}
}

func TestArenaLockRefIsExclusivePerRef(t *testing.T) {
	arena := NewArena()

	// The counter is deliberately unguarded: LockRef is the only thing
	// keeping the increments exclusive.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := arena.LockRef("call-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 32 {
		t.Fatalf("counter = %d, want 32", counter)
	}
	arena.mu.Lock()
	leaked := len(arena.locks)
	arena.mu.Unlock()
	if leaked != 0 {
		t.Fatalf("lock entries must be released, %d left", leaked)
	}
}

func TestArenaConcurrentAccess(t *testing.T) {
	arena := NewArena()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ref := string(rune('a' + n%8))
			arena.Put(&Session{Ref: ref})
			arena.Get(ref)
			arena.Remove(ref)
		}(i)
	}
	wg.Wait()
	if arena.Len() != 0 {
		t.Fatalf("expected all sessions removed, got %d", arena.Len())
	}
}
