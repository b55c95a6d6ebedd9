// Package fixture serves the tender catalog from a YAML file, for demos and local runs.
package fixture

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/tender"
)

type fileFormat struct {
	Tenders []tenderDoc `yaml:"tenders"`
}

type tenderDoc struct {
	ID             string    `yaml:"id"`
	AgencyID       string    `yaml:"agency_id"`
	Number         string    `yaml:"number"`
	Title          string    `yaml:"title"`
	Object         string    `yaml:"object"`
	Modality       string    `yaml:"modality"`
	Status         string    `yaml:"status"`
	Criterion      string    `yaml:"criterion"`
	EstimatedValue string    `yaml:"estimated_value"`
	OpeningAt      time.Time `yaml:"opening_at"`
	Lots           []lotDoc  `yaml:"lots"`
}

type lotDoc struct {
	ID              string    `yaml:"id"`
	Number          int       `yaml:"number"`
	Name            string    `yaml:"name"`
	Description     string    `yaml:"description"`
	Type            string    `yaml:"type"`
	BenefitType     string    `yaml:"benefit_type"`
	Region          string    `yaml:"region"`
	EligibilityRule string    `yaml:"eligibility_rule"`
	EstimatedValue  string    `yaml:"estimated_value"`
	MinDecrement    string    `yaml:"min_decrement"`
	Items           []itemDoc `yaml:"items"`
}

type itemDoc struct {
	Number             int     `yaml:"number"`
	Description        string  `yaml:"description"`
	Quantity           float64 `yaml:"quantity"`
	Unit               string  `yaml:"unit"`
	EstimatedUnitValue string  `yaml:"estimated_unit_value"`
}

// Catalog implements tender.Repository over an immutable in-memory copy of the file.
type Catalog struct {
	tenders map[uuid.UUID]*tender.Tender
	lots    map[uuid.UUID][]*tender.Lot
}

func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var doc fileFormat
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse fixture catalog: %w", err)
	}
	c := &Catalog{
		tenders: map[uuid.UUID]*tender.Tender{},
		lots:    map[uuid.UUID][]*tender.Lot{},
	}
	for _, td := range doc.Tenders {
		t, lots, err := td.build()
		if err != nil {
			return nil, err
		}
		if _, dup := c.tenders[t.ID]; dup {
			return nil, fmt.Errorf("tender %s: duplicate id", t.ID)
		}
		c.tenders[t.ID] = t
		c.lots[t.ID] = lots
	}
	return c, nil
}

func (td tenderDoc) build() (*tender.Tender, []*tender.Lot, error) {
	id, err := uuid.Parse(td.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("tender %q: %w", td.ID, err)
	}
	estimated, err := optionalMoney(td.EstimatedValue)
	if err != nil {
		return nil, nil, fmt.Errorf("tender %s estimated_value: %w", id, err)
	}
	criterion := bid.Criterion(td.Criterion)
	if criterion == "" {
		criterion = bid.CriterionLowestPrice
	}
	t := &tender.Tender{
		ID:             id,
		AgencyID:       td.AgencyID,
		Number:         td.Number,
		Title:          td.Title,
		Object:         td.Object,
		Modality:       tender.Modality(td.Modality),
		Status:         tender.Status(td.Status),
		Criterion:      criterion,
		EstimatedValue: estimated,
		OpeningAt:      td.OpeningAt.UTC(),
		CreatedAt:      td.OpeningAt.UTC(),
		UpdatedAt:      td.OpeningAt.UTC(),
	}

	lots := make([]*tender.Lot, 0, len(td.Lots))
	for _, ld := range td.Lots {
		lot, err := ld.build(id)
		if err != nil {
			return nil, nil, fmt.Errorf("tender %s: %w", id, err)
		}
		lots = append(lots, lot)
	}
	sort.Slice(lots, func(i, j int) bool { return lots[i].Number < lots[j].Number })
	return t, lots, nil
}

func (ld lotDoc) build(tenderID uuid.UUID) (*tender.Lot, error) {
	id, err := uuid.Parse(ld.ID)
	if err != nil {
		return nil, fmt.Errorf("lot %q: %w", ld.ID, err)
	}
	estimated, err := optionalMoney(ld.EstimatedValue)
	if err != nil {
		return nil, fmt.Errorf("lot %d estimated_value: %w", ld.Number, err)
	}
	decrement, err := optionalMoney(ld.MinDecrement)
	if err != nil {
		return nil, fmt.Errorf("lot %d min_decrement: %w", ld.Number, err)
	}
	lot := &tender.Lot{
		ID:              id,
		TenderID:        tenderID,
		Number:          ld.Number,
		Name:            ld.Name,
		Description:     ld.Description,
		Type:            tender.LotType(ld.Type),
		BenefitType:     tender.BenefitType(ld.BenefitType),
		Region:          ld.Region,
		EligibilityRule: ld.EligibilityRule,
		EstimatedValue:  estimated,
		MinDecrement:    decrement,
	}
	if lot.BenefitType == "" {
		lot.BenefitType = tender.BenefitOpen
	}
	for _, it := range ld.Items {
		unit, err := optionalMoney(it.EstimatedUnitValue)
		if err != nil {
			return nil, fmt.Errorf("lot %d item %d: %w", ld.Number, it.Number, err)
		}
		lot.Items = append(lot.Items, tender.Item{
			Number:             it.Number,
			Description:        it.Description,
			Quantity:           it.Quantity,
			Unit:               it.Unit,
			EstimatedUnitValue: unit,
		})
	}
	if err := lot.Validate(); err != nil {
		return nil, fmt.Errorf("lot %d: %w", ld.Number, err)
	}
	return lot, nil
}

func optionalMoney(raw string) (bid.Money, error) {
	if raw == "" {
		return 0, nil
	}
	return bid.ParseMoney(raw)
}

func (c *Catalog) GetTender(_ context.Context, id uuid.UUID) (*tender.Tender, error) {
	t, ok := c.tenders[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (c *Catalog) ListLots(_ context.Context, tenderID uuid.UUID) ([]*tender.Lot, error) {
	src := c.lots[tenderID]
	out := make([]*tender.Lot, 0, len(src))
	for _, l := range src {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}
