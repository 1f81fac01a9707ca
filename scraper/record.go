package scraper

// PartialRecord holds the fields known after the listing page. It travels
// with the detail request and is consumed by ParseDetail.
type PartialRecord struct {
	// Name is the display name. It is only used to compute the description
	// fallback and never reaches a FinalRecord.
	Name        string
	URL         string
	About       *string
	LastUpdated *string
}

// FinalRecord is a completed repository record ready for export.
type FinalRecord struct {
	URL         string    `json:"url" yaml:"url"`
	About       *string   `json:"about,omitempty" yaml:"about,omitempty"`
	LastUpdated *string   `json:"last_updated,omitempty" yaml:"last_updated,omitempty"`
	Languages   Languages `json:"languages,omitempty" yaml:"languages,omitempty"`
	NumCommits  *int      `json:"num_commits,omitempty" yaml:"num_commits,omitempty"`
}

// Language is one entry of a repository's language breakdown.
type Language struct {
	Name    string `json:"name" yaml:"name"`
	Percent string `json:"percent" yaml:"percent"`
}

// Languages is an ordered language breakdown. A nil value means no language
// data was found.
type Languages []Language

// Get returns the percentage recorded for name.
func (l Languages) Get(name string) (string, bool) {
	for _, lang := range l {
		if lang.Name == name {
			return lang.Percent, true
		}
	}
	return "", false
}

// set records percent for name, keeping the position of an existing entry.
func (l Languages) set(name, percent string) Languages {
	for i := range l {
		if l[i].Name == name {
			l[i].Percent = percent
			return l
		}
	}
	return append(l, Language{Name: name, Percent: percent})
}

// optional returns nil for an empty string and a pointer to s otherwise.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
