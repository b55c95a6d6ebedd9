// Package bid holds the bid entity and the pure ranking rules of the ledger.
package bid

import (
	"sort"
	"time"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCancelled Status = "CANCELLED"
)

// Criterion is the judgment criterion of the tender.
type Criterion string

const (
	CriterionLowestPrice     Criterion = "LOWEST_PRICE"
	CriterionHighestDiscount Criterion = "HIGHEST_DISCOUNT"
)

func (c Criterion) Valid() bool {
	return c == CriterionLowestPrice || c == CriterionHighestDiscount
}

type Bid struct {
	ID          string     `json:"id"`
	TenderID    string     `json:"tenderId"`
	LotID       string     `json:"lotId"`
	SupplierID  string     `json:"supplierId"`
	SubmittedBy string     `json:"submittedBy"`
	Value       Money      `json:"value"`
	Seq         int64      `json:"seq"`
	Status      Status     `json:"status"`
	SubmittedAt time.Time  `json:"submittedAt"`
	ConfirmBy   time.Time  `json:"confirmBy"`
	Effective   bool       `json:"effective"`
	EffectiveAt *time.Time `json:"effectiveAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy string     `json:"cancelledBy,omitempty"`
}

func (b *Bid) IsActive() bool {
	return b.Status == StatusActive
}

// BidderMayCancel reports whether the bidder is still inside the confirmation countdown.
func (b *Bid) BidderMayCancel(at time.Time) bool {
	return b.IsActive() && !b.Effective && at.Before(b.ConfirmBy)
}

// Better reports whether a ranks ahead of b on value alone.
func Better(c Criterion, a, b Money) bool {
	if c == CriterionHighestDiscount {
		return a > b
	}
	return a < b
}

func ahead(c Criterion, a, b *Bid) bool {
	if a.Value != b.Value {
		return Better(c, a.Value, b.Value)
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.Seq < b.Seq
}

// Rank returns the active bids ordered best first. Ties go to the earlier bid.
func Rank(bids []Bid, c Criterion) []Bid {
	out := make([]Bid, 0, len(bids))
	for _, b := range bids {
		if b.IsActive() {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return ahead(c, &out[i], &out[j])
	})
	return out
}

// Best returns the leading active bid, if any.
func Best(bids []Bid, c Criterion) (Bid, bool) {
	var best *Bid
	for i := range bids {
		b := &bids[i]
		if !b.IsActive() {
			continue
		}
		if best == nil || ahead(c, b, best) {
			best = b
		}
	}
	if best == nil {
		return Bid{}, false
	}
	return *best, true
}

// Threshold is the value a new bid must strictly beat given the current best.
func Threshold(best Money, step Money, c Criterion) Money {
	if c == CriterionHighestDiscount {
		return best + step
	}
	return best - step
}

// Acceptable reports whether value is strictly better than the threshold.
// With no active bid any positive value is accepted.
func Acceptable(value Money, best *Bid, step Money, c Criterion) bool {
	if value <= 0 {
		return false
	}
	if best == nil {
		return true
	}
	return Better(c, value, Threshold(best.Value, step, c))
}

// Finalists returns the suppliers that move to the second stage: the author of
// the best offer and every supplier whose best offer is within marginPct of it.
// When fewer qualify, the next best suppliers fill up to atLeast, in rank order.
func Finalists(bids []Bid, c Criterion, marginPct int64, atLeast int) []string {
	var (
		out  []string
		seen = map[string]bool{}
		best Money
	)
	for _, b := range Rank(bids, c) {
		if seen[b.SupplierID] {
			continue
		}
		seen[b.SupplierID] = true
		if len(out) == 0 {
			best = b.Value
		}
		if len(out) < atLeast || withinMargin(c, b.Value, best, marginPct) {
			out = append(out, b.SupplierID)
		}
	}
	return out
}

func withinMargin(c Criterion, value, best Money, pct int64) bool {
	if c == CriterionHighestDiscount {
		return int64(value)*100 >= int64(best)*(100-pct)
	}
	return int64(value)*100 <= int64(best)*(100+pct)
}
