package dispute

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	all := []Status{StatusWaiting, StatusOpen, StatusNegotiation, StatusClosed}
	allowed := map[[2]Status]bool{
		{StatusWaiting, StatusOpen}:       true,
		{StatusOpen, StatusNegotiation}:   true,
		{StatusOpen, StatusWaiting}:       true,
		{StatusNegotiation, StatusClosed}: true,
		{StatusClosed, StatusWaiting}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, allowed[[2]Status{from, to}], from.CanTransitionTo(to))
			})
		}
	}
}

func TestParseStatusAndMode(t *testing.T) {
	s, err := ParseStatus("negotiation")
	require.NoError(t, err)
	assert.Equal(t, StatusNegotiation, s)
	_, err = ParseStatus("paused")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	m, err := ParseMode("open_closed")
	require.NoError(t, err)
	assert.Equal(t, ModeOpenClosed, m)
	_, err = ParseMode("dutch")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.True(t, ModeRandom.RandomEnd())
}

func TestModeStages(t *testing.T) {
	tests := []struct {
		mode     Mode
		stages   []Stage
		extends  []bool
		twoStage bool
	}{
		{ModeOpen, []Stage{StageOpen}, []bool{true}, false},
		{ModeClosed, []Stage{StageSealed}, []bool{false}, false},
		{ModeRandom, []Stage{StageOpen}, []bool{false}, false},
		{ModeOpenClosed, []Stage{StageOpen, StageSealed}, []bool{true, false}, true},
		{ModeClosedOpen, []Stage{StageSealed, StageOpen}, []bool{false, true}, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			assert.Equal(t, tt.stages, tt.mode.Stages())
			assert.Equal(t, tt.stages[0], tt.mode.FirstStage())
			assert.Equal(t, tt.twoStage, tt.mode.TwoStage())
			for i, st := range tt.stages {
				assert.Equal(t, tt.extends[i], tt.mode.Extends(st))
			}
			next, ok := tt.mode.NextStage(tt.stages[0])
			assert.Equal(t, tt.twoStage, ok)
			if ok {
				assert.Equal(t, tt.stages[1], next)
				_, ok = tt.mode.NextStage(next)
				assert.False(t, ok)
			}
		})
	}
	assert.True(t, StageSealed.Sealed())
	assert.False(t, StageOpen.Sealed())
}

func TestParticipantClassify(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	p := Participant{SupplierID: "s1", Status: ParticipantPending}

	assert.ErrorIs(t, p.Classify(ParticipantDisqualified, "  ", "p1", at), ErrJustificationRequired)
	require.NoError(t, p.Classify(ParticipantDisqualified, "documentação vencida", "p1", at))
	assert.Equal(t, ParticipantDisqualified, p.Status)
	assert.False(t, p.Qualified())
	require.NotNil(t, p.ClassifiedAt)

	require.NoError(t, p.Classify(ParticipantQualified, "recurso acatado", "p1", at))
	assert.True(t, p.Qualified())

	p.Status = ParticipantWinner
	assert.ErrorIs(t, p.Classify(ParticipantDisqualified, "x", "p1", at), ErrWinnerLocked)

	_, err := ParseClassification("winner")
	assert.Error(t, err)
}

func TestResourcePhaseOnlyMovesForward(t *testing.T) {
	assert.True(t, PhaseManifestation.CanAdvanceTo(PhaseReasoning))
	assert.True(t, PhaseManifestation.CanAdvanceTo(PhaseDecided))
	assert.True(t, PhaseCounterArgument.CanAdvanceTo(PhaseJudgment))
	assert.False(t, PhaseJudgment.CanAdvanceTo(PhaseReasoning))
	assert.False(t, PhaseDecided.CanAdvanceTo(PhaseDecided))
	assert.False(t, ResourcePhase("X").CanAdvanceTo(PhaseDecided))
}

func TestResourceStateDeadline(t *testing.T) {
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)
	rs := ResourceState{Phase: PhaseManifestation, ManifestationDeadline: at.Add(4 * time.Hour)}

	assert.False(t, rs.Due(at))
	assert.True(t, rs.Due(at.Add(4*time.Hour)))

	rs.Phase = PhaseJudgment
	_, ok := rs.Deadline()
	assert.False(t, ok)
	assert.False(t, rs.Due(at.Add(100*time.Hour)))
}

func TestCalendarAddBusinessDays(t *testing.T) {
	cal, err := NewCalendar([]string{"2026-04-21"})
	require.NoError(t, err)

	thursday := time.Date(2026, 4, 16, 15, 0, 0, 0, time.UTC)
	// Fri 17, Mon 20, Wed 22 (Tue 21 is a holiday).
	got := cal.AddBusinessDays(thursday, 3)
	assert.Equal(t, time.Date(2026, 4, 22, 15, 0, 0, 0, time.UTC), got)

	_, err = NewCalendar([]string{"21/04/2026"})
	assert.Error(t, err)
}
