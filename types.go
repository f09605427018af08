package siteapi

// Principal is the authenticated identity derived from the Google OAuth
// profile. It is immutable for the lifetime of its session.
type Principal struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Emails      []ValueRef `json:"emails"`
	Photos      []ValueRef `json:"photos"`
}

// ValueRef wraps a single string value, matching the shape of the
// provider's profile fields ({value: "..."}).
type ValueRef struct {
	Value string `json:"value"`
}

// PrimaryEmail returns the first email on the profile, or "".
func (p *Principal) PrimaryEmail() string {
	if p == nil || len(p.Emails) == 0 {
		return ""
	}
	return p.Emails[0].Value
}

// PrimaryPhoto returns the first photo URL on the profile, or "".
func (p *Principal) PrimaryPhoto() string {
	if p == nil || len(p.Photos) == 0 {
		return ""
	}
	return p.Photos[0].Value
}
