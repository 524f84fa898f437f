package timeframe

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/candleview/internal/series"
)

type recorder struct {
	mu    sync.Mutex
	calls []published
	got   chan struct{}
}

type published struct {
	tf Timeframe
	s  *series.Series
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 16)}
}

func (r *recorder) Publish(tf Timeframe, s *series.Series) {
	r.mu.Lock()
	r.calls = append(r.calls, published{tf, s})
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) snapshot() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.calls...)
}

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Timeframe
		days int
	}{
		{"1D", Day, 1},
		{"1w", Week, 7},
		{" 1M ", Month, 30},
		{"1Y", Year, 365},
	} {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got != tc.want || got.Days() != tc.days {
			t.Fatalf("Parse(%q) = %q (%d days), want %q (%d)", tc.in, got, got.Days(), tc.want, tc.days)
		}
	}
	if _, err := Parse("5Y"); err == nil {
		t.Fatal("expected error for 5Y")
	}
}

func TestSlowAbandonedSelectionDoesNotOverwrite(t *testing.T) {
	release := make(chan struct{})
	base := DeriveFromBase(1000,
		series.WithClock(func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }),
		series.WithRand(rand.New(rand.NewSource(1))),
	)
	derive := func(ctx context.Context, tf Timeframe) (*series.Series, error) {
		if tf == Year {
			<-release
			// finishes late and ignores cancellation
			return base(context.Background(), tf)
		}
		return base(ctx, tf)
	}

	rec := newRecorder()
	c := NewController(derive, rec)

	if _, err := c.Select(Year); err != nil {
		t.Fatalf("Select(1Y): %v", err)
	}
	req, err := c.Select(Day)
	if err != nil {
		t.Fatalf("Select(1D): %v", err)
	}

	select {
	case <-rec.got:
	case <-time.After(2 * time.Second):
		t.Fatal("1D series never published")
	}
	close(release)
	c.Wait()

	calls := rec.snapshot()
	if len(calls) != 1 {
		t.Fatalf("published %d series, want 1", len(calls))
	}
	last := calls[len(calls)-1]
	if last.tf != Day {
		t.Fatalf("final timeframe = %q, want 1D", last.tf)
	}
	if got, want := last.s.Len(), Day.Days()+1; got != want {
		t.Fatalf("final series has %d points, want %d", got, want)
	}
	if cur := c.Current(); cur != req {
		t.Fatalf("Current() = %+v, want %+v", cur, req)
	}
}

func TestSelectCancelsSupersededRequest(t *testing.T) {
	cancelled := make(chan struct{})
	derive := func(ctx context.Context, tf Timeframe) (*series.Series, error) {
		if tf == Year {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		}
		return series.New(nil), nil
	}

	var errs []error
	c := NewController(derive, newRecorder(), WithErrorHandler(func(_ Request, err error) {
		errs = append(errs, err)
	}))
	if _, err := c.Select(Year); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(Week); err != nil {
		t.Fatal(err)
	}

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("superseded derivation was not cancelled")
	}
	c.Wait()
	if len(errs) != 0 {
		t.Fatalf("superseded failure reported: %v", errs)
	}
}

func TestDerivationErrorIsReported(t *testing.T) {
	boom := errors.New("feed down")
	derive := func(context.Context, Timeframe) (*series.Series, error) { return nil, boom }

	got := make(chan error, 1)
	rec := newRecorder()
	c := NewController(derive, rec, WithErrorHandler(func(_ Request, err error) { got <- err }))
	if _, err := c.Select(Month); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	select {
	case err := <-got:
		if !errors.Is(err, boom) {
			t.Fatalf("err = %v, want %v", err, boom)
		}
	default:
		t.Fatal("error handler not called")
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("published %d series after failure", n)
	}
}

func TestCloseDropsLateResults(t *testing.T) {
	started := make(chan struct{})
	derive := func(ctx context.Context, _ Timeframe) (*series.Series, error) {
		close(started)
		<-ctx.Done()
		return series.New(nil), nil
	}
	rec := newRecorder()
	c := NewController(derive, rec)
	if _, err := c.Select(Week); err != nil {
		t.Fatal(err)
	}
	<-started
	c.Close()

	if n := len(rec.snapshot()); n != 0 {
		t.Fatalf("published %d series after Close", n)
	}
	if _, err := c.Select(Day); !errors.Is(err, ErrClosed) {
		t.Fatalf("Select after Close err = %v, want ErrClosed", err)
	}
}

func TestSelectRejectsUnknownTimeframe(t *testing.T) {
	c := NewController(DeriveFromBase(10), newRecorder())
	if _, err := c.Select("2D"); err == nil {
		t.Fatal("expected error")
	}
	if got := c.Current(); got != (Request{}) {
		t.Fatalf("Current() = %+v after rejected select", got)
	}
}
