package dispute

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrJustificationRequired = errors.New("justification is required")
	ErrWinnerLocked          = errors.New("winner standing cannot be reclassified")
)

// Participant is a supplier's standing in one lot.
type Participant struct {
	SupplierID    string            `json:"supplierId"`
	UserID        string            `json:"userId"`
	Name          string            `json:"name"`
	CompanySize   string            `json:"companySize,omitempty"`
	CompanyState  string            `json:"companyState,omitempty"`
	Status        ParticipantStatus `json:"status"`
	Justification string            `json:"justification,omitempty"`
	ClassifiedBy  string            `json:"classifiedBy,omitempty"`
	ClassifiedAt  *time.Time        `json:"classifiedAt,omitempty"`
	JoinedAt      time.Time         `json:"joinedAt"`
}

func (p *Participant) Qualified() bool {
	return p.Status == ParticipantQualified || p.Status == ParticipantWinner
}

func (p *Participant) Classify(status ParticipantStatus, justification, by string, at time.Time) error {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return ErrJustificationRequired
	}
	if p.Status == ParticipantWinner {
		return ErrWinnerLocked
	}
	p.Status = status
	p.Justification = justification
	p.ClassifiedBy = by
	p.ClassifiedAt = &at
	return nil
}
