package action

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/capitalize-ai/renovation-planner/internal/model"
)

// ErrFieldNotModifiable is returned for an override of a structural field.
var ErrFieldNotModifiable = errors.New("field cannot be modified")

// ApplyOverrides returns params with the homeowner's edits applied. Only
// textual fields may change: subject and body of send_email, focus of
// analyze_offer and compare_offers.
func ApplyOverrides(params model.ActionParams, overrides map[string]string) (model.ActionParams, error) {
	if len(overrides) == 0 {
		return params, nil
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	switch p := params.(type) {
	case model.SendEmailParams:
		for _, k := range keys {
			v := strings.TrimSpace(overrides[k])
			switch k {
			case "subject":
				p.Subject = v
			case "body":
				p.Body = v
			default:
				return nil, notModifiable(k, params)
			}
		}
		return p, nil
	case model.AnalyzeOfferParams:
		for _, k := range keys {
			if k != "focus" {
				return nil, notModifiable(k, params)
			}
			p.Focus = strings.TrimSpace(overrides[k])
		}
		return p, nil
	case model.CompareOffersParams:
		for _, k := range keys {
			if k != "focus" {
				return nil, notModifiable(k, params)
			}
			p.Focus = strings.TrimSpace(overrides[k])
		}
		p.ComparisonOfferIDs = append([]string(nil), p.ComparisonOfferIDs...)
		return p, nil
	case model.FetchEmailParams:
		return nil, notModifiable(keys[0], params)
	}
	return nil, fmt.Errorf("unsupported parameters %T", params)
}

func notModifiable(field string, params model.ActionParams) error {
	return fmt.Errorf("%w: %q on %s", ErrFieldNotModifiable, field, params.ActionType())
}
