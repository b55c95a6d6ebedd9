// Package tender models the procurement catalog read by the dispute session.
package tender

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/canal-compras/disputa/internal/domain/bid"
)

var (
	ErrTenderNotFound   = errors.New("tender not found")
	ErrNoLots           = errors.New("tender has no lots")
	ErrNotDisputable    = errors.New("tender status does not allow a dispute session")
	ErrInvalidBenefit   = errors.New("invalid benefit type")
	ErrRegionRequired   = errors.New("regional benefit requires a region")
	ErrDecrementInvalid = errors.New("minimum decrement must not be negative")
)

type Modality string

const (
	ModalityElectronicAuction Modality = "PREGAO_ELETRONICO"
	ModalityCompetition       Modality = "CONCORRENCIA"
	ModalityDirectPurchase    Modality = "DISPENSA_ELETRONICA"
)

type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusPublished  Status = "PUBLISHED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
	StatusDeserted   Status = "DESERTED"
)

type BenefitType string

const (
	BenefitOpen           BenefitType = "OPEN"
	BenefitExclusiveMEEPP BenefitType = "EXCLUSIVE_ME_EPP"
	BenefitReservedQuota  BenefitType = "RESERVED_QUOTA"
	BenefitRegional       BenefitType = "REGIONAL"
)

type LotType string

const (
	LotProducts LotType = "PRODUCTS"
	LotServices LotType = "SERVICES"
)

type Tender struct {
	ID             uuid.UUID     `json:"id"`
	AgencyID       string        `json:"agencyId"`
	Number         string        `json:"number"`
	Title          string        `json:"title"`
	Object         string        `json:"object"`
	Modality       Modality      `json:"modality"`
	Status         Status        `json:"status"`
	Criterion      bid.Criterion `json:"criterion"`
	EstimatedValue bid.Money     `json:"estimatedValue"`
	OpeningAt      time.Time     `json:"openingAt"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// CanHostDispute reports whether a session may be opened for the tender.
func (t *Tender) CanHostDispute() error {
	switch t.Status {
	case StatusPublished, StatusInProgress:
		return nil
	}
	return ErrNotDisputable
}

type Item struct {
	Number             int       `json:"number"`
	Description        string    `json:"description"`
	Quantity           float64   `json:"quantity"`
	Unit               string    `json:"unit"`
	EstimatedUnitValue bid.Money `json:"estimatedUnitValue"`
}

type Lot struct {
	ID              uuid.UUID   `json:"id"`
	TenderID        uuid.UUID   `json:"tenderId"`
	Number          int         `json:"number"`
	Name            string      `json:"name"`
	Description     string      `json:"description"`
	Type            LotType     `json:"type"`
	BenefitType     BenefitType `json:"benefitType"`
	Region          string      `json:"region,omitempty"`
	EligibilityRule string      `json:"eligibilityRule,omitempty"`
	EstimatedValue  bid.Money   `json:"estimatedValue"`
	MinDecrement    bid.Money   `json:"minDecrement"`
	Items           []Item      `json:"items,omitempty"`
}

func (l *Lot) Validate() error {
	switch l.BenefitType {
	case BenefitOpen, BenefitExclusiveMEEPP, BenefitReservedQuota:
	case BenefitRegional:
		if l.Region == "" && l.EligibilityRule == "" {
			return ErrRegionRequired
		}
	default:
		return ErrInvalidBenefit
	}
	if l.MinDecrement < 0 {
		return ErrDecrementInvalid
	}
	return nil
}
