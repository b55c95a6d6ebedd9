// Package dispute holds the phase rules of an electronic dispute session:
// dispute status, modes, participant standing and the resource phase.
package dispute

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidMode       = errors.New("invalid dispute mode")
	ErrInvalidStatus     = errors.New("invalid dispute status")
)

type Status string

const (
	StatusWaiting     Status = "WAITING"
	StatusOpen        Status = "OPEN"
	StatusNegotiation Status = "NEGOTIATION"
	StatusClosed      Status = "CLOSED"
)

var validTransitions = map[Status][]Status{
	StatusWaiting:     {StatusOpen},
	StatusOpen:        {StatusNegotiation, StatusWaiting},
	StatusNegotiation: {StatusClosed},
	StatusClosed:      {StatusWaiting},
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := validTransitions[s]; !ok {
		return "", ErrInvalidStatus
	}
	return s, nil
}

func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Label is the Portuguese name used in the session minutes.
func (s Status) Label() string {
	switch s {
	case StatusWaiting:
		return "aguardando"
	case StatusOpen:
		return "aberta"
	case StatusNegotiation:
		return "em negociação"
	case StatusClosed:
		return "encerrada"
	default:
		return string(s)
	}
}

type Mode string

const (
	ModeOpen       Mode = "OPEN"
	ModeClosed     Mode = "CLOSED"
	ModeOpenClosed Mode = "OPEN_CLOSED"
	ModeClosedOpen Mode = "CLOSED_OPEN"
	ModeRandom     Mode = "RANDOM"
)

func ParseMode(raw string) (Mode, error) {
	m := Mode(strings.ToUpper(strings.TrimSpace(raw)))
	switch m {
	case ModeOpen, ModeClosed, ModeOpenClosed, ModeClosedOpen, ModeRandom:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// Stage is one bidding round of a dispute mode.
type Stage string

const (
	StageOpen   Stage = "OPEN"
	StageSealed Stage = "SEALED"
)

// Sealed stages hide competitors' bids until the stage elapses.
func (st Stage) Sealed() bool {
	return st == StageSealed
}

// Stages lists the bidding rounds of m in order.
func (m Mode) Stages() []Stage {
	switch m {
	case ModeClosed:
		return []Stage{StageSealed}
	case ModeOpenClosed:
		return []Stage{StageOpen, StageSealed}
	case ModeClosedOpen:
		return []Stage{StageSealed, StageOpen}
	default:
		return []Stage{StageOpen}
	}
}

// FirstStage is the stage a dispute of mode m starts in.
func (m Mode) FirstStage() Stage {
	return m.Stages()[0]
}

// NextStage returns the stage following st, if m has one.
func (m Mode) NextStage(st Stage) (Stage, bool) {
	stages := m.Stages()
	for i := 0; i < len(stages)-1; i++ {
		if stages[i] == st {
			return stages[i+1], true
		}
	}
	return "", false
}

// TwoStage modes run an open and a sealed round one after the other.
func (m Mode) TwoStage() bool {
	return len(m.Stages()) > 1
}

// Extends reports whether a late bid in stage st prorogates the end time.
func (m Mode) Extends(st Stage) bool {
	return st == StageOpen && m != ModeRandom
}

// RandomEnd modes draw the end time instead of taking a time limit.
func (m Mode) RandomEnd() bool {
	return m == ModeRandom
}

type ParticipantStatus string

const (
	ParticipantPending      ParticipantStatus = "PENDING"
	ParticipantQualified    ParticipantStatus = "QUALIFIED"
	ParticipantDisqualified ParticipantStatus = "DISQUALIFIED"
	ParticipantWinner       ParticipantStatus = "WINNER"
)

func ParseClassification(raw string) (ParticipantStatus, error) {
	s := ParticipantStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if s == ParticipantQualified || s == ParticipantDisqualified {
		return s, nil
	}
	return "", fmt.Errorf("classification must be QUALIFIED or DISQUALIFIED, got %q", raw)
}
