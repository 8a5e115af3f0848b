// Package detect classifies a bill's vendor from its text and filename.
package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
	"github.com/telcoingest/invoice-pipeline/internal/normalize"
)

// Source says which signal decided the vendor
type Source string

const (
	SourceText     Source = "text"
	SourceFilename Source = "filename"
	SourceNone     Source = "none"
)

// FilenameConfidence is the confidence of a filename-only decision
const FilenameConfidence = 0.70

// Options tunes detection
type Options struct {
	MinConfidence float64 // below this the result is unknown
	MaxPages      int     // pages of text inspected
	Fuzzy         bool    // enables the edit-distance pass
}

// DefaultOptions returns the detection defaults
func DefaultOptions() Options {
	return Options{MinConfidence: 0.50, MaxPages: 2, Fuzzy: true}
}

// Result is the outcome of one detection
type Result struct {
	Vendor     invoice.Vendor              `json:"vendor"`
	Confidence float64                     `json:"confidence"`
	Source     Source                      `json:"source"`
	Matches    map[invoice.Vendor][]string `json:"matches"`
	Reason     string                      `json:"reason,omitempty"`
}

// Detector is a pure classifier; it holds no state besides its options
type Detector struct {
	opts Options
}

// New creates a detector
func New(opts Options) *Detector {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 2
	}
	return &Detector{opts: opts}
}

// Detect classifies a document. Text markers beat filename hints. Any tie between
// vendors, no signal at all, or a confidence under the minimum gives unknown.
func (d *Detector) Detect(filename string, pages []string) Result {
	res := Result{
		Vendor:  invoice.VendorUnknown,
		Source:  SourceNone,
		Matches: make(map[invoice.Vendor][]string),
	}

	if len(pages) > d.opts.MaxPages {
		pages = pages[:d.opts.MaxPages]
	}
	text := normalize.Label(strings.Join(pages, "\n"))

	if text != "" {
		scores := make(map[invoice.Vendor]int)
		for _, v := range invoice.KnownVendors {
			scores[v] += scoreInto(text, markers[v], v, res.Matches)
			if d.opts.Fuzzy {
				scores[v] += fuzzyInto(text, fuzzyPhrases[v], v, res.Matches)
			}
		}

		if total := sumScores(scores); total > 0 {
			var chosen invoice.Vendor
			if scores[invoice.VendorCelcom] > 0 && scores[invoice.VendorDigi] > 0 && scores[invoice.VendorMaxis] == 0 {
				chosen = resolveCelcomDigi(text, scores, res.Matches)
			} else {
				chosen = leader(scores)
			}
			if chosen == invoice.VendorUnknown {
				res.Reason = fmt.Sprintf("ambiguous markers %v", scores)
				return res
			}

			total = sumScores(scores)
			score := float64(scores[chosen])
			res.Vendor = chosen
			res.Source = SourceText
			res.Confidence = min(1.0, 0.55+0.10*score+0.05*(score/float64(total)))
			return d.enforceMinimum(res)
		}
	}

	vendor, hits := fromFilename(filename)
	for v, h := range hits {
		res.Matches[v] = appendUnique(res.Matches[v], h...)
	}
	switch {
	case vendor != invoice.VendorUnknown:
		res.Vendor = vendor
		res.Source = SourceFilename
		res.Confidence = FilenameConfidence
		return d.enforceMinimum(res)
	case len(hits) > 1:
		res.Reason = "filename names more than one vendor"
	default:
		res.Reason = "no vendor markers found"
	}
	return res
}

func (d *Detector) enforceMinimum(res Result) Result {
	if res.Confidence < d.opts.MinConfidence {
		res.Reason = fmt.Sprintf("confidence %.2f for %s is below %.2f", res.Confidence, res.Vendor, d.opts.MinConfidence)
		res.Vendor = invoice.VendorUnknown
	}
	return res
}

// scoreInto counts distinct matched fragments and records them
func scoreInto(text string, patterns []*regexp.Regexp, v invoice.Vendor, matches map[invoice.Vendor][]string) int {
	score := 0
	for _, rx := range patterns {
		for _, frag := range rx.FindAllString(text, -1) {
			if contains(matches[v], frag) {
				continue
			}
			matches[v] = append(matches[v], frag)
			score++
		}
	}
	return score
}

// fuzzyInto adds one point per phrase that appears only as a near miss
func fuzzyInto(text string, phrases []string, v invoice.Vendor, matches map[invoice.Vendor][]string) int {
	tokens := strings.Fields(strings.ToLower(text))
	score := 0
	for _, phrase := range phrases {
		width := len(strings.Fields(phrase))
		budget := max(1, len(phrase)/8)
		for i := 0; i+width <= len(tokens); i++ {
			window := strings.Join(tokens[i:i+width], " ")
			dist := levenshtein.Distance(window, phrase, nil)
			if dist == 0 {
				break
			}
			if dist <= budget {
				matches[v] = appendUnique(matches[v], "~"+window)
				score++
				break
			}
		}
	}
	return score
}

func resolveCelcomDigi(text string, scores map[invoice.Vendor]int, matches map[invoice.Vendor][]string) invoice.Vendor {
	for _, v := range []invoice.Vendor{invoice.VendorCelcom, invoice.VendorDigi} {
		for _, rx := range hardHints[v] {
			for _, hit := range rx.FindAllString(text, -1) {
				scores[v] += hardHintWeight
				matches[v] = appendUnique(matches[v], hit)
			}
		}
	}

	celcom, digi := scores[invoice.VendorCelcom], scores[invoice.VendorDigi]
	if celcom == digi && digiTieBreaker.MatchString(text) {
		scores[invoice.VendorDigi]++
		digi++
	}
	switch {
	case celcom > digi:
		return invoice.VendorCelcom
	case digi > celcom:
		return invoice.VendorDigi
	default:
		return invoice.VendorUnknown
	}
}

// leader returns the single top-scoring vendor, or unknown on a tie
func leader(scores map[invoice.Vendor]int) invoice.Vendor {
	best, bestScore, tied := invoice.VendorUnknown, 0, false
	for _, v := range invoice.KnownVendors {
		switch s := scores[v]; {
		case s > bestScore:
			best, bestScore, tied = v, s, false
		case s == bestScore && s > 0:
			tied = true
		}
	}
	if tied {
		return invoice.VendorUnknown
	}
	return best
}

var filenameSeparators = strings.NewReplacer("_", " ", "-", " ", ".", " ")

func fromFilename(filename string) (invoice.Vendor, map[invoice.Vendor][]string) {
	name := filenameSeparators.Replace(filename)
	hits := make(map[invoice.Vendor][]string)
	scores := make(map[invoice.Vendor]int)
	for _, v := range invoice.KnownVendors {
		scores[v] = scoreInto(name, filenameHints[v], v, hits)
		if len(hits[v]) == 0 {
			delete(hits, v)
		}
	}
	return leader(scores), hits
}

func sumScores(scores map[invoice.Vendor]int) int {
	total := 0
	for _, s := range scores {
		total += s
	}
	return total
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func appendUnique(list []string, items ...string) []string {
	for _, it := range items {
		if !contains(list, it) {
			list = append(list, it)
		}
	}
	return list
}

// SortedMatches flattens matches for logging
func (r Result) SortedMatches() []string {
	var out []string
	for v, frags := range r.Matches {
		for _, f := range frags {
			out = append(out, string(v)+":"+f)
		}
	}
	sort.Strings(out)
	return out
}
