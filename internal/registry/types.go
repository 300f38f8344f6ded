package registry

// Crate is the summary returned for each entry of a catalog page and the
// core of a detail response.
type Crate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MaxVersion  string `json:"max_version,omitempty"`
	Downloads   int64  `json:"downloads,omitempty"`
	Repository  string `json:"repository,omitempty"`
	Homepage    string `json:"homepage,omitempty"`
}

// Owner is a user or team that can publish a crate.
type Owner struct {
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	Kind  string `json:"kind,omitempty"` // "user" or "team"
}

// Detail is the full metadata fetched for the crate chosen for announcement.
// It is never persisted.
type Detail struct {
	Crate
	Owners []Owner
}

// URL returns the canonical crates.io page for the crate.
func (d *Detail) URL() string {
	return CrateURL(d.Name)
}

type cratesPage struct {
	Crates []Crate `json:"crates"`
	Meta   struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type crateResponse struct {
	Crate Crate `json:"crate"`
}

type ownersResponse struct {
	Users []Owner `json:"users"`
}
