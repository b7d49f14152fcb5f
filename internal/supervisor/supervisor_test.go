package supervisor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rcrelay/rcrelay/internal/supervisor"
)

var errWrite = errors.New("write failed")

type scriptedLink struct {
	mu          sync.Mutex
	connectErrs []error
	runErrs     []error
	connects    int
	closes      int
}

func (l *scriptedLink) Name() string { return "fake" }

func (l *scriptedLink) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connects++
	if len(l.connectErrs) == 0 {
		return nil
	}
	err := l.connectErrs[0]
	l.connectErrs = l.connectErrs[1:]
	return err
}

func (l *scriptedLink) Run(ctx context.Context) error {
	l.mu.Lock()
	if len(l.runErrs) > 0 {
		err := l.runErrs[0]
		l.runErrs = l.runErrs[1:]
		l.mu.Unlock()
		return err
	}
	l.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (l *scriptedLink) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closes++
	return nil
}

type recorder struct {
	mu     sync.Mutex
	states []supervisor.Status
	ch     chan supervisor.Status
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan supervisor.Status, 64)}
}

func (r *recorder) observe(s supervisor.Status) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
	r.ch <- s
}

func (r *recorder) waitFor(t *testing.T, want supervisor.State, n int) {
	t.Helper()
	seen := 0
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-r.ch:
			if s.State == want {
				seen++
				if seen == n {
					return
				}
			}
		case <-deadline:
			t.Fatalf("timeout waiting for %s #%d", want, n)
		}
	}
}

func (r *recorder) sequence() []supervisor.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]supervisor.State, len(r.states))
	for i, s := range r.states {
		out[i] = s.State
	}
	return out
}

func runSupervisor(t *testing.T, link supervisor.Link, rec *recorder) (*supervisor.Supervisor, context.CancelFunc, <-chan struct{}) {
	t.Helper()
	s := supervisor.New(link,
		supervisor.WithDelay(10*time.Millisecond),
		supervisor.WithObserver(rec.observe),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return s, cancel, done
}

func TestSupervisorReconnectsAfterWriteFailure(t *testing.T) {
	link := &scriptedLink{runErrs: []error{errWrite}}
	rec := newRecorder()
	s, cancel, done := runSupervisor(t, link, rec)

	rec.waitFor(t, supervisor.Connected, 2)
	if st := s.Status(); st.State != supervisor.Connected || st.Err != nil {
		t.Fatalf("status = %s", st)
	}
	cancel()
	<-done

	want := []supervisor.State{
		supervisor.Discovering,
		supervisor.Connected,
		supervisor.BackoffWait,
		supervisor.Discovering,
		supervisor.Connected,
		supervisor.Stopped,
	}
	got := rec.sequence()
	if len(got) != len(want) {
		t.Fatalf("sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sequence = %v, want %v", got, want)
		}
	}

	rec.mu.Lock()
	backoff := rec.states[2]
	rediscover := rec.states[3]
	rec.mu.Unlock()
	if !errors.Is(backoff.Err, errWrite) || !backoff.Failed() {
		t.Fatalf("backoff status = %s", backoff)
	}
	if !errors.Is(rediscover.Err, errWrite) {
		t.Fatalf("discovering after failure should carry the last error, got %s", rediscover)
	}
	if link.closes != 2 {
		t.Fatalf("closes = %d, want 2", link.closes)
	}
}

func TestSupervisorRetriesConnectWithoutLimit(t *testing.T) {
	notFound := errors.New("not found")
	link := &scriptedLink{connectErrs: []error{notFound, notFound, notFound, notFound, notFound}}
	rec := newRecorder()
	_, cancel, done := runSupervisor(t, link, rec)

	rec.waitFor(t, supervisor.Connected, 1)
	cancel()
	<-done

	if link.connects != 6 {
		t.Fatalf("connects = %d, want 6", link.connects)
	}
	got := rec.sequence()
	backoffs := 0
	for _, s := range got {
		if s == supervisor.BackoffWait {
			backoffs++
		}
	}
	if backoffs != 5 {
		t.Fatalf("backoffs = %d in %v", backoffs, got)
	}
}

func TestSupervisorCleanCloseStillReconnects(t *testing.T) {
	link := &scriptedLink{runErrs: []error{nil}}
	rec := newRecorder()
	_, cancel, done := runSupervisor(t, link, rec)

	rec.waitFor(t, supervisor.BackoffWait, 1)
	rec.waitFor(t, supervisor.Connected, 1)
	cancel()
	<-done

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, s := range rec.states {
		if s.State == supervisor.BackoffWait && !errors.Is(s.Err, supervisor.ErrLinkClosed) {
			t.Fatalf("backoff err = %v, want ErrLinkClosed", s.Err)
		}
	}
}

func TestSupervisorStopsDuringBackoff(t *testing.T) {
	link := &scriptedLink{connectErrs: []error{errors.New("boom")}}
	rec := newRecorder()
	s := supervisor.New(link, supervisor.WithDelay(time.Hour), supervisor.WithObserver(rec.observe))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	rec.waitFor(t, supervisor.BackoffWait, 1)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("supervisor did not stop during backoff")
	}
	if st := s.Status(); st.State != supervisor.Stopped {
		t.Fatalf("status = %s, want stopped", st)
	}
}

func TestSupervisorsAreIndependent(t *testing.T) {
	broken := &scriptedLink{connectErrs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	healthy := &scriptedLink{}

	brokenRec, healthyRec := newRecorder(), newRecorder()
	_, cancelBroken, doneBroken := runSupervisor(t, broken, brokenRec)
	hs, cancelHealthy, doneHealthy := runSupervisor(t, healthy, healthyRec)

	healthyRec.waitFor(t, supervisor.Connected, 1)
	brokenRec.waitFor(t, supervisor.BackoffWait, 2)

	if st := hs.Status(); st.State != supervisor.Connected {
		t.Fatalf("healthy link disturbed: %s", st)
	}
	if healthy.connects != 1 {
		t.Fatalf("healthy link reconnected %d times", healthy.connects)
	}

	cancelBroken()
	<-doneBroken
	cancelHealthy()
	<-doneHealthy
}
