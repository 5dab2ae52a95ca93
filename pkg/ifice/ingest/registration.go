package ingest

import (
	"fmt"
	"strings"

	"github.com/cognicore/ifice/pkg/ifice/internalerr"
)

// SubscriptionPlan is the commercial plan the factory signed up for.
type SubscriptionPlan string

const (
	PlanNone       SubscriptionPlan = ""
	PlanFree       SubscriptionPlan = "free"
	PlanBasic      SubscriptionPlan = "basic"
	PlanStandard   SubscriptionPlan = "standard"
	PlanPremium    SubscriptionPlan = "premium"
	PlanEnterprise SubscriptionPlan = "enterprise"
)

// RegistrationInput is the raw factory registration data submitted for
// classification. It is passed by value and never mutated.
type RegistrationInput struct {
	Name             string           `json:"name"`
	IndustryHint     string           `json:"industry,omitempty"`
	Address          string           `json:"address,omitempty"`
	ContactPhone     string           `json:"contactPhone,omitempty"`
	ContactEmail     string           `json:"contactEmail,omitempty"`
	EmployeeCount    int              `json:"employeeCount,omitempty"`
	SubscriptionPlan SubscriptionPlan `json:"subscriptionPlan,omitempty"`
}

// Validate checks the fields that make an input unusable. Only the name is
// mandatory; everything else, including an unknown plan or a nonsensical
// headcount, degrades to "no signal".
func (r RegistrationInput) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", internalerr.ErrInvalidInput)
	}
	return nil
}
