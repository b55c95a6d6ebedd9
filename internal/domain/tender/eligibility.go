package tender

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Knetic/govaluate"
)

// EffectiveRule is the eligibility expression applied to suppliers joining the lot.
// A custom rule on the lot wins over the benefit default; "" means open.
func (l *Lot) EffectiveRule() string {
	if rule := strings.TrimSpace(l.EligibilityRule); rule != "" {
		return rule
	}
	switch l.BenefitType {
	case BenefitExclusiveMEEPP, BenefitReservedQuota:
		return `company_size == "ME" || company_size == "EPP"`
	case BenefitRegional:
		return "company_state == " + strconv.Quote(strings.ToUpper(l.Region))
	default:
		return ""
	}
}

// SupplierParams builds the evaluation parameters for a supplier.
func SupplierParams(companySize, companyState string) map[string]interface{} {
	return map[string]interface{}{
		"company_size":  strings.ToUpper(strings.TrimSpace(companySize)),
		"company_state": strings.ToUpper(strings.TrimSpace(companyState)),
	}
}

// Eligible evaluates rule against params. An empty rule admits everyone.
func Eligible(rule string, params map[string]interface{}) (bool, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return true, nil
	}
	expr, err := govaluate.NewEvaluableExpression(rule)
	if err != nil {
		return false, fmt.Errorf("eligibility rule: %w", err)
	}
	res, err := expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("eligibility rule: %w", err)
	}
	ok, isBool := res.(bool)
	if !isBool {
		return false, fmt.Errorf("eligibility rule %q did not evaluate to a boolean", rule)
	}
	return ok, nil
}
