package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeScheduler runs scheduled callbacks inline, synchronously, for
// tests that don't need real executor timing.
type fakeScheduler struct {
	calls int
}

func (f *fakeScheduler) Schedule(d time.Duration, fn func()) {
	f.calls++
	fn()
}

func newTestSession(t *testing.T, exec Scheduler) *Session {
	t.Helper()
	thread := NewThreadData(exec)
	s := New(thread, testSchema())
	return s
}

func TestScheduleActionArmsRetickViaExecutor(t *testing.T) {
	sched := &fakeScheduler{}
	s := newTestSession(t, sched)

	reticked := false
	s.Retick = func(*Session) { reticked = true }

	s.ScheduleAction("tag", 5*time.Millisecond, func(*Session) {})

	require.Equal(t, 1, sched.calls)
	require.True(t, reticked, "ScheduleAction must arm the session's Retick through the executor")
}

func TestHasPendingReflectsQueueContents(t *testing.T) {
	s := newTestSession(t, &fakeScheduler{})
	require.False(t, s.HasPending("x"))
	s.ScheduleAction("x", time.Hour, func(*Session) {})
	require.True(t, s.HasPending("x"))
	require.False(t, s.HasPending("y"))
}

func TestFireDueRunsOnlyPastDeadlines(t *testing.T) {
	s := newTestSession(t, &fakeScheduler{})
	var ran []string
	now := time.Now()

	s.actions = nil
	s.ScheduleAction("later", time.Hour, func(*Session) { ran = append(ran, "later") })
	s.ScheduleAction("soon", -time.Minute, func(*Session) { ran = append(ran, "soon") })

	fired := s.FireDue(now)
	require.True(t, fired)
	require.Equal(t, []string{"soon"}, ran)
	require.True(t, s.HasPending("later"))
	require.False(t, s.HasPending("soon"))
}

func TestFireDueOrdersByDeadline(t *testing.T) {
	s := newTestSession(t, &fakeScheduler{})
	var order []string
	base := time.Now()

	// Push out of order; FireDue must drain earliest-first.
	s.actions = nil
	heapPush := func(tag string, at time.Time) {
		s.ScheduleAction(tag, at.Sub(time.Now()), func(*Session) { order = append(order, tag) })
	}
	heapPush("third", base.Add(30*time.Millisecond))
	heapPush("first", base.Add(-2*time.Hour))
	heapPush("second", base.Add(-1*time.Hour))

	s.FireDue(base)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestSessionResetClearsEverything(t *testing.T) {
	s := newTestSession(t, &fakeScheduler{})
	s.Vars().SetInt("count", 1)
	s.ScheduleAction("tag", time.Hour, func(*Session) {})
	s.Start([]*Sequence{{Name: "seq", Steps: []Step{}}})
	s.Retick = func(*Session) {}

	s.Reset()

	require.True(t, s.Vars().IsEmpty())
	require.False(t, s.HasPending("tag"))
	require.Nil(t, s.Instances)
	require.Nil(t, s.Retick)
}

type advanceStep struct{}

func (advanceStep) Invoke(*Session) StepResult { return StepResult{Outcome: Advance} }

func TestSessionCompleteTracksAllInstances(t *testing.T) {
	s := newTestSession(t, &fakeScheduler{})
	seq := &Sequence{Name: "seq", Steps: []Step{advanceStep{}}}
	s.Start([]*Sequence{seq, seq})
	require.False(t, s.Complete())

	for _, inst := range s.Instances {
		inst.Done = true
	}
	require.True(t, s.Complete())
}
