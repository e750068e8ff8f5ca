package linkscout

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cloudflare/ahocorasick"
	"github.com/docutag/linkscout/models"
	"github.com/docutag/linkscout/slug"
)

// Confidence model constants. They are heuristic tuning values, kept for parity with
// previously created suggestions.
const (
	confidenceBase     = 0.35
	anchorWeight       = 0.35
	snippetWeight      = 0.15
	topicalWeight      = 0.15
	anchorSaturation   = 30 // characters
	snippetSaturation  = 60 // tokens
	defaultTopicalHits = 0.3
	snippetPadding     = 80 // characters either side of a match
	minTokenLength     = 3
)

var tokenSeparator = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize folds value to lowercase ASCII where possible and splits it on
// non-alphanumerics, keeping tokens of at least three characters
func tokenize(value string) []string {
	parts := tokenSeparator.Split(slug.Fold(value), -1)
	tokens := parts[:0]
	for _, part := range parts {
		if len(part) >= minTokenLength {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// ComputeConfidence scores how trustworthy an anchor hit is, in [0,1]. Longer anchors,
// richer context and context that shares vocabulary with the target title all raise it.
// The topical factor counts every snippet token found in the title vocabulary against
// the vocabulary size, so repeated title words keep adding until the final clamp.
func ComputeConfidence(anchor, snippet, targetTitle string) float64 {
	anchorFactor := clamp(float64(utf8.RuneCountInString(anchor)) / anchorSaturation)

	snippetTokens := tokenize(snippet)
	snippetFactor := clamp(float64(len(snippetTokens)) / snippetSaturation)

	topic := make(map[string]struct{})
	for _, token := range tokenize(targetTitle) {
		topic[token] = struct{}{}
	}

	topicalFactor := defaultTopicalHits
	if len(topic) > 0 {
		hits := 0
		for _, token := range snippetTokens {
			if _, ok := topic[token]; ok {
				hits++
			}
		}
		topicalFactor = float64(hits) / float64(len(topic))
	}

	return clamp(confidenceBase +
		anchorWeight*anchorFactor +
		snippetWeight*snippetFactor +
		topicalWeight*topicalFactor)
}

// extractSnippet returns up to snippetPadding characters of context on both sides of
// content[start:end], with whitespace runs collapsed to single spaces
func extractSnippet(content string, start, end int) string {
	from := start
	for i := 0; i < snippetPadding && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(content[:from])
		from -= size
	}

	to := end
	for i := 0; i < snippetPadding && to < len(content); i++ {
		_, size := utf8.DecodeRuneInString(content[to:])
		to += size
	}

	return strings.Join(strings.Fields(content[from:to]), " ")
}

// anchorPattern matches anchor as a whole word, case-insensitively
func anchorPattern(anchor string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(anchor) + `\b`)
}

// targetMatcher holds the compiled anchor patterns of one money target
type targetMatcher struct {
	target   models.MoneyTarget
	anchors  []string
	patterns []*regexp.Regexp
}

// corpusMatcher finds anchor mentions of every money target inside blog content.
// An Aho-Corasick pass over the lowercased content tells which anchors occur at all,
// so the per-anchor regular expressions only run where they can hit.
type corpusMatcher struct {
	targets    []targetMatcher
	dictionary []string
	prefilter  *ahocorasick.Matcher
}

func newCorpusMatcher(targets []models.MoneyTarget) *corpusMatcher {
	m := &corpusMatcher{targets: make([]targetMatcher, 0, len(targets))}
	seen := make(map[string]struct{})

	for _, target := range targets {
		tm := targetMatcher{target: target}
		for _, anchor := range target.Anchors {
			if anchor == "" {
				continue
			}
			tm.anchors = append(tm.anchors, anchor)
			tm.patterns = append(tm.patterns, anchorPattern(anchor))

			lower := strings.ToLower(anchor)
			if _, ok := seen[lower]; !ok {
				seen[lower] = struct{}{}
				m.dictionary = append(m.dictionary, lower)
			}
		}
		m.targets = append(m.targets, tm)
	}

	if len(m.dictionary) > 0 {
		m.prefilter = ahocorasick.NewStringMatcher(m.dictionary)
	}
	return m
}

// present returns the lowercased anchors that occur somewhere in content
func (m *corpusMatcher) present(content string) map[string]struct{} {
	found := make(map[string]struct{})
	if m.prefilter == nil {
		return found
	}
	for _, idx := range m.prefilter.Match([]byte(strings.ToLower(content))) {
		if idx < len(m.dictionary) {
			found[m.dictionary[idx]] = struct{}{}
		}
	}
	return found
}

// findMatches returns every whole-word hit of tm's anchors in content, best first
func findMatches(content string, tm targetMatcher, present map[string]struct{}) []models.MatchResult {
	var results []models.MatchResult

	for i, anchor := range tm.anchors {
		if present != nil {
			if _, ok := present[strings.ToLower(anchor)]; !ok {
				continue
			}
		}
		for _, loc := range tm.patterns[i].FindAllStringIndex(content, -1) {
			snippet := extractSnippet(content, loc[0], loc[1])
			results = append(results, models.MatchResult{
				Anchor:     anchor,
				Snippet:    snippet,
				Confidence: ComputeConfidence(anchor, snippet, tm.target.TargetTitle),
				Target:     tm.target,
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

// FindMatches scans content for whole-word, case-insensitive mentions of the target's
// anchors and returns them sorted by descending confidence
func FindMatches(content string, target models.MoneyTarget) []models.MatchResult {
	m := newCorpusMatcher([]models.MoneyTarget{target})
	return findMatches(content, m.targets[0], nil)
}

func clamp(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
