package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResourceLockManager_SameResourceSerializes(t *testing.T) {
	m := NewResourceLockManager()
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := m.Acquire([]string{"db"})
			defer release()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(5 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside.Load())
}

func TestResourceLockManager_DisjointResourcesOverlap(t *testing.T) {
	m := NewResourceLockManager()
	releaseA := m.Acquire([]string{"a"})
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := m.Acquire([]string{"b"})
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("acquiring a disjoint resource blocked")
	}
}

func TestResourceLockManager_OrderingAvoidsDeadlock(t *testing.T) {
	m := NewResourceLockManager()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.Acquire([]string{"x", "y"})()
		}()
		go func() {
			defer wg.Done()
			m.Acquire([]string{"y", "x", "y"})()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("lock ordering deadlocked")
	}
}

func TestResourceLockManager_ReleaseIsIdempotent(t *testing.T) {
	m := NewResourceLockManager()
	release := m.Acquire([]string{"r"})
	release()
	assert.NotPanics(t, release)

	again := m.Acquire([]string{"r"})
	again()
}

func TestResourceLockManager_NoResources(t *testing.T) {
	m := NewResourceLockManager()
	release := m.Acquire(nil)
	assert.NotPanics(t, release)
	assert.Empty(t, m.locks)
}
