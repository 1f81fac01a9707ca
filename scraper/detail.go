package scraper

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ParseDetail completes a partial record from its repository page. It
// extracts the language breakdown and commit count, applies the description
// fallback, and drops the display name.
func ParseDetail(
	doc *goquery.Document,
	partial PartialRecord,
	sel DetailSelectors,
	log logrus.FieldLogger,
) FinalRecord {
	log = log.WithFields(logrus.Fields{"url": partial.URL, "repo": partial.Name})
	log.Info("Parsing repository page")

	languages := ExtractLanguages(doc.Selection, sel)
	if languages != nil {
		log.WithField("languages", len(languages)).Debug("Languages found")
	} else {
		log.Debug("No language stats found")
	}

	commits, err := ExtractCommitCount(doc.Selection, sel)
	switch {
	case err == nil:
		log.WithField("commits", *commits).Debug("Commit count found")
	case errors.Is(err, ErrNoCommitCount):
		log.Debug("No commit count found")
	default:
		log.Warnf("Could not convert commit count: %v", err)
	}

	about := DescriptionFallback(partial.About, partial.Name, languages, commits)
	if about != nil && (partial.About == nil || *partial.About == "") {
		log.Info("Using repository name as description")
	}

	log.Info("Finished processing repository")

	return FinalRecord{
		URL:         partial.URL,
		About:       about,
		LastUpdated: partial.LastUpdated,
		Languages:   languages,
		NumCommits:  commits,
	}
}

// ExtractLanguages pairs language names with their percentages. It returns
// nil unless both lists are non-empty, equally long, and yield at least one
// pair with both sides present.
func ExtractLanguages(root *goquery.Selection, sel DetailSelectors) Languages {
	names := sel.LanguageName.All(root)
	percents := sel.LanguagePercent.All(root)

	if len(names) == 0 || len(percents) == 0 || len(names) != len(percents) {
		return nil
	}

	var languages Languages
	for i, name := range names {
		name = strings.TrimSpace(name)
		percent := strings.TrimSpace(percents[i])
		if name == "" || percent == "" {
			continue
		}
		languages = languages.set(name, percent)
	}

	if len(languages) == 0 {
		return nil
	}
	return languages
}

// ErrNoCommitCount is returned by ExtractCommitCount when no selector matched.
var ErrNoCommitCount = errors.New("no commit count found")

// ExtractCommitCount finds and parses the repository's commit count.
func ExtractCommitCount(root *goquery.Selection, sel DetailSelectors) (*int, error) {
	text := sel.Commits.First(root)
	if text == "" {
		return nil, ErrNoCommitCount
	}
	return ParseCommitCount(text)
}

// ParseCommitCount parses text such as "1,234" into a non-negative integer.
func ParseCommitCount(text string) (*int, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")

	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid commit count %q: %w", text, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("invalid commit count %q: negative", text)
	}

	return &n, nil
}

// DescriptionFallback returns the description to export. A repository with
// neither languages nor a commit count is treated as empty and keeps a
// missing description (nil); any other repository without a description is
// described by its name.
func DescriptionFallback(about *string, name string, languages Languages, commits *int) *string {
	if about != nil && *about != "" {
		return about
	}

	emptyProxy := languages == nil && commits == nil
	if emptyProxy || name == "" {
		return nil
	}

	return &name
}
