package fixture

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/canal-compras/disputa/internal/domain/bid"
	"github.com/canal-compras/disputa/internal/domain/tender"
)

const sampleYAML = `
tenders:
  - id: 7b1f3c2e-4d5a-4b6c-8d7e-9f0a1b2c3d4e
    agency_id: agency-1
    number: "PE 12/2026"
    title: Material de expediente
    modality: PREGAO_ELETRONICO
    status: PUBLISHED
    estimated_value: "12.500,00"
    opening_at: 2026-03-02T14:00:00Z
    lots:
      - id: 0d9c8b7a-6f5e-4d3c-2b1a-0f9e8d7c6b5a
        number: 2
        name: Canetas
        benefit_type: EXCLUSIVE_ME_EPP
        min_decrement: "0.05"
      - id: 1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d
        number: 1
        name: Papel A4
        min_decrement: "0,01"
        items:
          - number: 1
            description: Resma 500 folhas
            quantity: 200
            unit: resma
            estimated_unit_value: "25.90"
`

func TestParseCatalog(t *testing.T) {
	c, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	id := uuid.MustParse("7b1f3c2e-4d5a-4b6c-8d7e-9f0a1b2c3d4e")
	tn, err := c.GetTender(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, tn)
	assert.Equal(t, bid.Money(1250000), tn.EstimatedValue)
	assert.Equal(t, bid.CriterionLowestPrice, tn.Criterion)
	assert.NoError(t, tn.CanHostDispute())

	lots, err := c.ListLots(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, lots, 2)
	assert.Equal(t, 1, lots[0].Number, "lots come ordered by number")
	assert.Equal(t, tender.BenefitOpen, lots[0].BenefitType)
	assert.Equal(t, bid.Money(1), lots[0].MinDecrement)
	require.Len(t, lots[0].Items, 1)
	assert.Equal(t, bid.Money(2590), lots[0].Items[0].EstimatedUnitValue)
	assert.Equal(t, bid.Money(5), lots[1].MinDecrement)

	missing, err := c.GetTender(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestParseRejectsBadData(t *testing.T) {
	tests := map[string]string{
		"bad id":      "tenders:\n  - id: nope\n",
		"bad money":   "tenders:\n  - id: 7b1f3c2e-4d5a-4b6c-8d7e-9f0a1b2c3d4e\n    estimated_value: abc\n",
		"bad benefit": "tenders:\n  - id: 7b1f3c2e-4d5a-4b6c-8d7e-9f0a1b2c3d4e\n    lots:\n      - id: 1a2b3c4d-5e6f-4a7b-8c9d-0e1f2a3b4c5d\n        benefit_type: VIP\n",
		"not yaml":    "tenders: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.tenders, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestShippedCatalog(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "..", "configs", "catalog.example.yaml"))
	require.NoError(t, err)

	id := uuid.MustParse("7b1f3c2e-4d5a-4b6c-8d7e-9f0a1b2c3d4e")
	lots, err := c.ListLots(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, lots, 3)
	assert.Equal(t, tender.BenefitRegional, lots[2].BenefitType)
	assert.Contains(t, lots[2].EffectiveRule(), `company_state == "MG"`)
}
