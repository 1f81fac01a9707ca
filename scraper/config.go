package scraper

// Selectors holds every extraction rule used by the listing and detail
// handlers.
type Selectors struct {
	Listing ListingSelectors `json:"listing" yaml:"listing"`
	Detail  DetailSelectors  `json:"detail" yaml:"detail"`
}

// ListingSelectors defines how to find repositories on a user's repository
// listing page.
type ListingSelectors struct {
	Entry       Rule `json:"entry" yaml:"entry"`
	Link        Rule `json:"link" yaml:"link"`
	About       Rule `json:"about" yaml:"about"`
	LastUpdated Rule `json:"last_updated" yaml:"last_updated"`
	NextPage    Rule `json:"next_page" yaml:"next_page"`
}

// DetailSelectors defines how to extract statistics from a repository page.
type DetailSelectors struct {
	LanguageName    Rule `json:"language_name" yaml:"language_name"`
	LanguagePercent Rule `json:"language_percent" yaml:"language_percent"`
	Commits         Rule `json:"commits" yaml:"commits"`
}

const languageItem = "div.Layout-sidebar .BorderGrid-row ul.list-style-none li a"

// DefaultSelectors returns the rules matching GitHub's current markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Listing: ListingSelectors{
			Entry: Rule{{Selector: "#user-repositories-list ul > li"}},
			Link:  Rule{{Selector: "div.d-inline-block.mb-1 > h3 > a"}},
			About: Rule{
				{Selector: `div[itemprop="description"] p`},
				{Selector: "div.col-10.col-lg-9.d-inline-block > p"},
			},
			LastUpdated: Rule{{Selector: "relative-time", Attr: "datetime"}},
			NextPage:    Rule{{Selector: "a.next_page", Attr: "href"}},
		},
		Detail: DetailSelectors{
			LanguageName:    Rule{{Selector: languageItem + " span:nth-of-type(1)"}},
			LanguagePercent: Rule{{Selector: languageItem + " span:nth-of-type(2)"}},
			Commits: Rule{
				{Selector: `ul.list-style-none a[href*="/commits/"] strong`},
				{Selector: `ul.list-style-none li:contains("commit") span strong`},
			},
		},
	}
}

// Merge returns a copy of s where every non-empty rule in override replaces
// the corresponding rule. A nil override returns s unchanged.
func (s Selectors) Merge(override *Selectors) Selectors {
	if override == nil {
		return s
	}

	merged := s
	pick := func(dst *Rule, src Rule) {
		if len(src) > 0 {
			*dst = src
		}
	}

	pick(&merged.Listing.Entry, override.Listing.Entry)
	pick(&merged.Listing.Link, override.Listing.Link)
	pick(&merged.Listing.About, override.Listing.About)
	pick(&merged.Listing.LastUpdated, override.Listing.LastUpdated)
	pick(&merged.Listing.NextPage, override.Listing.NextPage)
	pick(&merged.Detail.LanguageName, override.Detail.LanguageName)
	pick(&merged.Detail.LanguagePercent, override.Detail.LanguagePercent)
	pick(&merged.Detail.Commits, override.Detail.Commits)

	return merged
}
