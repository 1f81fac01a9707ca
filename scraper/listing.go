package scraper

import (
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ListingResult is everything a listing page produces: one partial record per
// repository entry (each one a detail request) and the next page, if any.
type ListingResult struct {
	Records  []PartialRecord
	NextPage string
}

// ParseListing extracts repository entries and the pagination link from a
// listing page. Entries missing a name or link are skipped; all other
// missing fields are left nil.
func ParseListing(
	doc *goquery.Document,
	pageURL *url.URL,
	sel ListingSelectors,
	log logrus.FieldLogger,
) ListingResult {
	log = log.WithField("url", pageURL.String())
	log.Info("Parsing repository list page")

	var result ListingResult

	entries := sel.Entry.Nodes(doc.Selection)
	entries.Each(func(i int, entry *goquery.Selection) {
		link := sel.Link.Nodes(entry).First()
		if link.Length() == 0 {
			log.WithField("entry", i).Warn("Could not find repository link element, skipping entry")
			return
		}

		name := Attempt{}.value(link)
		href, _ := link.Attr("href")
		if name == "" || href == "" {
			log.WithField("entry", i).Warn("Could not extract repository name or URL, skipping entry")
			return
		}

		repoURL, err := resolve(pageURL, href)
		if err != nil {
			log.WithFields(logrus.Fields{"entry": i, "href": href}).
				Warnf("Invalid repository link, skipping entry: %v", err)
			return
		}

		result.Records = append(result.Records, PartialRecord{
			Name:        name,
			URL:         repoURL,
			About:       optional(sel.About.First(entry)),
			LastUpdated: optional(sel.LastUpdated.First(entry)),
		})
	})

	if entries.Length() == 0 {
		log.Warn("No repositories found on page")
	}

	next := sel.NextPage.First(doc.Selection)
	if next == "" {
		log.Info("No more pages found")
		return result
	}

	nextURL, err := resolve(pageURL, next)
	if err != nil {
		log.WithField("href", next).Warnf("Invalid pagination link: %v", err)
		return result
	}

	log.WithField("next", nextURL).Info("Following pagination link")
	result.NextPage = nextURL

	return result
}

// resolve turns href into an absolute URL using base.
func resolve(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
