package step

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/csb/phasebench/internal/session"
)

type recordingPhase struct {
	finished []string
	failed   []string
	lastErr  error
}

func (r *recordingPhase) NotifyFinished(s *session.Session) { r.finished = append(r.finished, s.ID) }
func (r *recordingPhase) Fail(s *session.Session, err error) {
	r.failed = append(r.failed, s.ID)
	r.lastErr = err
}

type fakeScheduler struct{}

func (fakeScheduler) Schedule(time.Duration, func()) {}

type funcStep func(*session.Session) session.StepResult

func (f funcStep) Invoke(s *session.Session) session.StepResult { return f(s) }

func newTestSession() *session.Session {
	schema := session.NewVarSchema(nil)
	thread := session.NewThreadData(fakeScheduler{})
	return session.New(thread, schema)
}

func TestTickAdvancesThroughStepsAndFinishes(t *testing.T) {
	phase := &recordingPhase{}
	s := newTestSession()
	s.Phase = phase

	var ran []int
	seq := &session.Sequence{Name: "seq", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			ran = append(ran, 0)
			return session.StepResult{Outcome: session.Advance}
		}),
		funcStep(func(*session.Session) session.StepResult {
			ran = append(ran, 1)
			return session.StepResult{Outcome: session.Advance}
		}),
	}}
	s.Start([]*session.Sequence{seq})

	in := New()
	in.Tick(s)

	require.Equal(t, []int{0, 1}, ran)
	require.Equal(t, []string{s.ID}, phase.finished)
}

func TestTickParksWithoutAdvancing(t *testing.T) {
	phase := &recordingPhase{}
	s := newTestSession()
	s.Phase = phase

	calls := 0
	seq := &session.Sequence{Name: "seq", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			calls++
			return session.StepResult{Outcome: session.Park}
		}),
	}}
	s.Start([]*session.Sequence{seq})

	in := New()
	in.Tick(s)
	in.Tick(s)

	require.Equal(t, 2, calls, "a parked step must be re-invoked, not skipped, on the next tick")
	require.Empty(t, phase.finished)
	require.Equal(t, 0, s.Instances[0].PC)
}

func TestTickFailPropagatesToPhase(t *testing.T) {
	phase := &recordingPhase{}
	s := newTestSession()
	s.Phase = phase

	wantErr := errors.New("boom")
	seq := &session.Sequence{Name: "seq", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			return session.StepResult{Outcome: session.Fail, Err: wantErr}
		}),
	}}
	s.Start([]*session.Sequence{seq})

	New().Tick(s)

	require.Equal(t, []string{s.ID}, phase.failed)
	require.ErrorIs(t, phase.lastErr, wantErr)
	require.True(t, s.Instances[0].Done)
}

func TestTickTerminateEndsEveryInstance(t *testing.T) {
	phase := &recordingPhase{}
	s := newTestSession()
	s.Phase = phase

	neverRan := true
	seq1 := &session.Sequence{Name: "one", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			return session.StepResult{Outcome: session.Terminate}
		}),
	}}
	seq2 := &session.Sequence{Name: "two", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			neverRan = false
			return session.StepResult{Outcome: session.Advance}
		}),
	}}
	s.Start([]*session.Sequence{seq1, seq2})

	New().Tick(s)

	require.True(t, neverRan, "Terminate on the first instance must stop the whole session before the second instance runs")
	require.True(t, s.Instances[0].Done)
	require.True(t, s.Instances[1].Done)
	require.Equal(t, []string{s.ID}, phase.finished)
}

func TestTickMultipleInstancesAllMustCompleteBeforeFinish(t *testing.T) {
	phase := &recordingPhase{}
	s := newTestSession()
	s.Phase = phase

	done1 := false
	seq1 := &session.Sequence{Name: "one", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			done1 = true
			return session.StepResult{Outcome: session.Advance}
		}),
	}}
	seq2 := &session.Sequence{Name: "two", Steps: []session.Step{
		funcStep(func(*session.Session) session.StepResult {
			return session.StepResult{Outcome: session.Park}
		}),
	}}
	s.Start([]*session.Sequence{seq1, seq2})

	New().Tick(s)

	require.True(t, done1)
	require.Empty(t, phase.finished, "a parked second instance must prevent NotifyFinished")
}
