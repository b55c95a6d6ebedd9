package dispute

import (
	"strings"
	"time"
)

// ResourcePhase is the appeal stage of a lot after the winner is declared.
type ResourcePhase string

const (
	PhaseManifestation   ResourcePhase = "MANIFESTATION_OPEN"
	PhaseReasoning       ResourcePhase = "REASONING"
	PhaseCounterArgument ResourcePhase = "COUNTER_ARGUMENT"
	PhaseJudgment        ResourcePhase = "JUDGMENT"
	PhaseDecided         ResourcePhase = "DECIDED"
)

var phaseRank = map[ResourcePhase]int{
	PhaseManifestation:   0,
	PhaseReasoning:       1,
	PhaseCounterArgument: 2,
	PhaseJudgment:        3,
	PhaseDecided:         4,
}

// CanAdvanceTo enforces that phases only move forward.
func (p ResourcePhase) CanAdvanceTo(next ResourcePhase) bool {
	from, ok := phaseRank[p]
	if !ok {
		return false
	}
	to, ok := phaseRank[next]
	return ok && to > from
}

func (p ResourcePhase) Label() string {
	switch p {
	case PhaseManifestation:
		return "manifestação de intenção de recurso"
	case PhaseReasoning:
		return "razões de recurso"
	case PhaseCounterArgument:
		return "contrarrazões"
	case PhaseJudgment:
		return "julgamento"
	case PhaseDecided:
		return "decidido"
	default:
		return string(p)
	}
}

type ResourceStatus string

const (
	ResourceFiled    ResourceStatus = "FILED"
	ResourceReasoned ResourceStatus = "REASONED"
	ResourceLapsed   ResourceStatus = "LAPSED"
	ResourceGranted  ResourceStatus = "GRANTED"
	ResourceDenied   ResourceStatus = "DENIED"
)

func ParseOutcome(raw string) (ResourceStatus, bool) {
	s := ResourceStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if s == ResourceGranted || s == ResourceDenied {
		return s, true
	}
	return "", false
}

// Resource is a supplier's appeal against the lot outcome.
type Resource struct {
	ID         string         `json:"id"`
	LotID      string         `json:"lotId"`
	SupplierID string         `json:"supplierId"`
	FiledBy    string         `json:"filedBy"`
	Intent     string         `json:"intent"`
	Reasoning  string         `json:"reasoning,omitempty"`
	Status     ResourceStatus `json:"status"`
	FiledAt    time.Time      `json:"filedAt"`
	ReasonedAt *time.Time     `json:"reasonedAt,omitempty"`
}

type CounterArgument struct {
	ID         string    `json:"id"`
	LotID      string    `json:"lotId"`
	SupplierID string    `json:"supplierId"`
	Text       string    `json:"text"`
	FiledAt    time.Time `json:"filedAt"`
}

type AuthorityDecision struct {
	ID            string         `json:"id"`
	ResourceID    string         `json:"resourceId"`
	Outcome       ResourceStatus `json:"outcome"`
	Justification string         `json:"justification"`
	DecidedBy     string         `json:"decidedBy"`
	DecidedAt     time.Time      `json:"decidedAt"`
}

// ResourceState is the resource phase of one lot.
type ResourceState struct {
	LotID                 string              `json:"lotId"`
	Phase                 ResourcePhase       `json:"phase"`
	EnteredAt             time.Time           `json:"enteredAt"`
	ManifestationDeadline time.Time           `json:"manifestationDeadline"`
	ReasoningDeadline     *time.Time          `json:"reasoningDeadline,omitempty"`
	CounterDeadline       *time.Time          `json:"counterDeadline,omitempty"`
	DecidedAt             *time.Time          `json:"decidedAt,omitempty"`
	Resources             []Resource          `json:"resources"`
	CounterArguments      []CounterArgument   `json:"counterArguments"`
	Decisions             []AuthorityDecision `json:"decisions"`
}

func (r *ResourceState) FindResource(id string) (int, bool) {
	for i := range r.Resources {
		if r.Resources[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (r *ResourceState) FiledBy(supplierID string) bool {
	for i := range r.Resources {
		if r.Resources[i].SupplierID == supplierID {
			return true
		}
	}
	return false
}

// Count returns how many resources are in status.
func (r *ResourceState) Count(status ResourceStatus) int {
	n := 0
	for i := range r.Resources {
		if r.Resources[i].Status == status {
			n++
		}
	}
	return n
}

// Deadline returns the deadline of the current phase, if it has one.
func (r *ResourceState) Deadline() (time.Time, bool) {
	switch r.Phase {
	case PhaseManifestation:
		return r.ManifestationDeadline, true
	case PhaseReasoning:
		if r.ReasoningDeadline != nil {
			return *r.ReasoningDeadline, true
		}
	case PhaseCounterArgument:
		if r.CounterDeadline != nil {
			return *r.CounterDeadline, true
		}
	}
	return time.Time{}, false
}

// Due reports whether the current phase deadline has passed at t.
func (r *ResourceState) Due(t time.Time) bool {
	d, ok := r.Deadline()
	return ok && !t.Before(d)
}
