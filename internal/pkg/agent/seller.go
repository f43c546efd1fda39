package agent

import (
	"fmt"
	"regexp"
	"strings"
)

// SellerID identifies a seller in the platform registry. It is assigned externally
// and treated as opaque, except that it must be safe to use as a path segment
// and inside a service name.
type SellerID string

var (
	sellerIDPattern  = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)
	storeSlugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Validate checks whether the seller identifier can be used for provisioning.
func (id SellerID) Validate() error {
	if id == "" {
		return fmt.Errorf("%w: seller id is empty", ErrValidation)
	}

	if !sellerIDPattern.MatchString(string(id)) {
		return fmt.Errorf("%w: seller id %q contains unsupported characters", ErrValidation, string(id))
	}

	return nil
}

// SellerProfile is the read-only snapshot of seller attributes fetched from the registry
// once per provisioning run.
type SellerProfile struct {
	SellerID SellerID `json:"sellerId"`

	StoreName   string `json:"storeName"`
	StoreSlug   string `json:"storeSlug"`
	Category    string `json:"category"`
	Description string `json:"description"`
	InviteCode  string `json:"inviteCode"`

	IsFoundingSeller bool `json:"isFoundingSeller"`

	// WalletAddress is the optional on-chain payout address.
	WalletAddress string `json:"walletAddress"`

	// AgentAPIKey is the credential the agent uses to call the platform API. It is
	// passed to the service environment and never rendered into templates.
	AgentAPIKey string `json:"agentApiKey"`

	PaymentProvider  string `json:"paymentProvider"`
	PaymentAccountID string `json:"paymentAccountId"`
}

// Validate checks the identity fields the persona cannot be rendered without.
func (profile SellerProfile) Validate() error {
	if err := profile.SellerID.Validate(); err != nil {
		return err
	}

	if strings.TrimSpace(profile.StoreName) == "" {
		return fmt.Errorf("%w: storeName is required", ErrValidation)
	}

	if strings.TrimSpace(profile.StoreSlug) == "" {
		return fmt.Errorf("%w: storeSlug is required", ErrValidation)
	}

	if !storeSlugPattern.MatchString(profile.StoreSlug) {
		return fmt.Errorf("%w: storeSlug %q is not url-safe", ErrValidation, profile.StoreSlug)
	}

	return nil
}
