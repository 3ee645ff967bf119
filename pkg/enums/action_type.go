package enums

import (
	"fmt"
	"strings"
)

// ActionType is the canonical vocabulary for normalized upstream actions.
// Raw upstream action strings are collapsed into these values by the
// normalizer's synonym table.
type ActionType string

const (
	ActionPurchase             ActionType = "purchase"
	ActionLeadTotal            ActionType = "lead_total"
	ActionLeadWebsite          ActionType = "lead_website"
	ActionLeadForm             ActionType = "lead_form"
	ActionAddToCart            ActionType = "add_to_cart"
	ActionInitiateCheckout     ActionType = "initiate_checkout"
	ActionCompleteRegistration ActionType = "complete_registration"
	ActionLandingPageView      ActionType = "landing_page_view"
)

var validActionTypes = []ActionType{
	ActionPurchase,
	ActionLeadTotal,
	ActionLeadWebsite,
	ActionLeadForm,
	ActionAddToCart,
	ActionInitiateCheckout,
	ActionCompleteRegistration,
	ActionLandingPageView,
}

// AllActionTypes returns the full canonical vocabulary.
func AllActionTypes() []ActionType {
	types := make([]ActionType, len(validActionTypes))
	copy(types, validActionTypes)
	return types
}

// String implements fmt.Stringer.
func (a ActionType) String() string {
	return string(a)
}

// IsValid reports whether the value is known.
func (a ActionType) IsValid() bool {
	for _, candidate := range validActionTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseActionType converts raw input into an ActionType.
func ParseActionType(value string) (ActionType, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validActionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid action type %q", value)
}
