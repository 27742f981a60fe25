package funding

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestTrackerBeginRejectsConcurrent(t *testing.T) {
	tracker := NewTracker(time.Minute)

	if err := tracker.Begin("svc-1"); err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	if err := tracker.Begin("svc-1"); !errors.Is(err, ErrFundingInProgress) {
		t.Fatalf("second begin: got %v want ErrFundingInProgress", err)
	}
	// 其他服务不受影响。
	if err := tracker.Begin("svc-2"); err != nil {
		t.Fatalf("unrelated service blocked: %v", err)
	}
}

func TestTrackerFinishClearsFlagAndStartsCooldown(t *testing.T) {
	tracker := NewTracker(time.Minute)
	current := time.Unix(1700000000, 0)
	tracker.now = func() time.Time { return current }

	if err := tracker.Begin("svc-1"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	tracker.Finish("svc-1", true)

	inProgress, coolingDown := tracker.Status("svc-1")
	if inProgress {
		t.Fatal("flag must be cleared after finish")
	}
	if !coolingDown {
		t.Fatal("successful funding must open the cooldown window")
	}

	// 冷却不阻止显式注资。
	if err := tracker.Begin("svc-1"); err != nil {
		t.Fatalf("cooldown must not block explicit funding: %v", err)
	}
	tracker.Finish("svc-1", true)

	current = current.Add(2 * time.Minute)
	if _, coolingDown := tracker.Status("svc-1"); coolingDown {
		t.Fatal("cooldown must expire")
	}
}

func TestTrackerFailureSkipsCooldown(t *testing.T) {
	tracker := NewTracker(time.Minute)

	if err := tracker.Begin("svc-1"); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	tracker.Finish("svc-1", false)

	inProgress, coolingDown := tracker.Status("svc-1")
	if inProgress || coolingDown {
		t.Fatalf("failed funding must clear flag without cooldown: inProgress=%v coolingDown=%v", inProgress, coolingDown)
	}
}

func TestTrackerConcurrentBeginAdmitsExactlyOne(t *testing.T) {
	tracker := NewTracker(time.Minute)

	const workers = 32
	var wg sync.WaitGroup
	admitted := make(chan struct{}, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tracker.Begin("svc-1"); err == nil {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != 1 {
		t.Fatalf("exactly one begin must win: got %d", count)
	}
}
