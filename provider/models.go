package provider

import "time"

// Profile is a service provider as listed on the providers screen.
type Profile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	Services  []string  `json:"services"`
	Verified  bool      `json:"verified"`
	CreatedAt time.Time `json:"createdAt"`
}

// Initial is the avatar letter shown next to the provider name.
func (p Profile) Initial() string {
	for _, r := range p.Name {
		return string(r)
	}
	return ""
}

// ListParams narrows a provider listing.
type ListParams struct {
	Search  string
	Service string
	Limit   int
}
