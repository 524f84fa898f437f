package carousel

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var images = []string{"front.jpg", "pool.jpg", "kitchen.jpg"}

func TestNextPrevWrapAround(t *testing.T) {
	r, err := New("PROP1", images)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if got := r.Prev(); got.Index != 2 || got.Image != "kitchen.jpg" {
		t.Fatalf("Prev from first = %+v, want index 2", got)
	}
	if got := r.Next(); got.Index != 0 {
		t.Fatalf("Next from last = %+v, want index 0", got)
	}
	if got := r.Select(7); got.Index != 1 || got.Trigger != TriggerSelect {
		t.Fatalf("Select(7) = %+v, want index 1", got)
	}
}

func TestNewRejectsEmptyGallery(t *testing.T) {
	if _, err := New("PROP1", nil); !errors.Is(err, ErrEmptyGallery) {
		t.Fatalf("err = %v, want ErrEmptyGallery", err)
	}
}

func TestAutoAdvance(t *testing.T) {
	changes := make(chan State, 8)
	r, _ := New("PROP1", images, WithInterval(10*time.Millisecond), OnChange(func(s State) { changes <- s }))
	r.Start()
	defer r.Stop()

	select {
	case st := <-changes:
		if st.Trigger != TriggerAuto || st.Index != 1 {
			t.Fatalf("first change = %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no automatic advance")
	}
}

func TestManualNavigationRestartsTimer(t *testing.T) {
	var mu sync.Mutex
	var autos []time.Time
	interval := 300 * time.Millisecond
	r, _ := New("PROP1", images, WithInterval(interval), OnChange(func(s State) {
		if s.Trigger == TriggerAuto {
			mu.Lock()
			autos = append(autos, time.Now())
			mu.Unlock()
		}
	}))
	r.Start()
	defer r.Stop()

	time.Sleep(200 * time.Millisecond)
	manualAt := time.Now()
	r.Next()
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	early := len(autos)
	mu.Unlock()
	if early != 0 {
		t.Fatalf("auto advance fired %v after manual navigation", autos[0].Sub(manualAt))
	}
	if got := r.State().Index; got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}
}

func TestSingleImageNeverRotates(t *testing.T) {
	r, _ := New("PROP2", []string{"only.jpg"}, WithInterval(time.Millisecond))
	r.Start()
	defer r.Stop()
	if r.State().Running {
		t.Fatal("single-image gallery started its timer")
	}
	time.Sleep(10 * time.Millisecond)
	if got := r.State().Index; got != 0 {
		t.Fatalf("index = %d, want 0", got)
	}
}

func TestStopIsIdempotentAndIndependent(t *testing.T) {
	a, _ := New("A", images, WithInterval(5*time.Millisecond))
	b, _ := New("B", images, WithInterval(5*time.Millisecond))
	a.Start()
	b.Start()

	a.Stop()
	a.Stop()
	if a.State().Running {
		t.Fatal("a still running")
	}
	if !b.State().Running {
		t.Fatal("stopping a stopped b")
	}
	frozen := a.State().Index
	time.Sleep(30 * time.Millisecond)
	if got := a.State().Index; got != frozen {
		t.Fatalf("stopped rotator moved from %d to %d", frozen, got)
	}
	b.Stop()

	a.Start()
	if !a.State().Running {
		t.Fatal("restart failed")
	}
	a.Stop()
}
