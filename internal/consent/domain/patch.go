package domain

// Patch is a partial consent change. Nil fields are left unchanged.
type Patch struct {
	MarketingOptIn       *bool   `json:"marketingOptIn,omitempty"`
	MarketingOptInSource *string `json:"marketingOptInSource,omitempty"`
	TransactionalAllowed *bool   `json:"transactionalAllowed,omitempty"`
	FullyBlocked         *bool   `json:"fullyBlocked,omitempty"`
	CustomerID           *string `json:"customerId,omitempty"`
}

// Empty reports whether the patch sets no field at all.
func (p Patch) Empty() bool {
	return p.MarketingOptIn == nil && p.MarketingOptInSource == nil &&
		p.TransactionalAllowed == nil && p.FullyBlocked == nil && p.CustomerID == nil
}

// Apply writes the set fields of p onto r.
func (p Patch) Apply(r *ConsentRecord) {
	if p.MarketingOptIn != nil {
		r.MarketingOptIn = *p.MarketingOptIn
	}
	if p.MarketingOptInSource != nil {
		r.MarketingOptInSource = *p.MarketingOptInSource
	}
	if p.TransactionalAllowed != nil {
		r.TransactionalAllowed = *p.TransactionalAllowed
	}
	if p.FullyBlocked != nil {
		r.FullyBlocked = *p.FullyBlocked
	}
	if p.CustomerID != nil {
		id := *p.CustomerID
		if id == "" {
			r.CustomerID = nil
		} else {
			r.CustomerID = &id
		}
	}
}

// Bool returns a pointer to v, for building patches.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, for building patches.
func String(v string) *string { return &v }
