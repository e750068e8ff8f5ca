// Package linkscout mines internal-link opportunities: it finds mentions of a project's
// money keywords inside its blog content and turns the best ones into LINK tasks.
package linkscout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docutag/linkscout/metrics"
	"github.com/docutag/linkscout/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxPerBlog    = 3
	DefaultMaxPerProject = 40

	signaturePrefix = "[link-scout:"
)

// ErrDuplicateSuggestion is returned by a Store when the suggestion's signature already exists
var ErrDuplicateSuggestion = errors.New("link suggestion already exists")

var (
	signaturePattern = regexp.MustCompile(`\[link-scout:[^\]]+\]`)

	blogPageTypes = map[string]struct{}{
		"blog":    {},
		"article": {},
		"guide":   {},
		"content": {},
		"news":    {},
	}

	tracer = otel.Tracer("github.com/docutag/linkscout")
)

// Options bounds a mining run. Zero or negative values fall back to the defaults.
type Options struct {
	MaxPerBlog    int `json:"max_per_blog"`
	MaxPerProject int `json:"max_per_project"`
}

func (o Options) withDefaults() Options {
	if o.MaxPerBlog <= 0 {
		o.MaxPerBlog = DefaultMaxPerBlog
	}
	if o.MaxPerProject <= 0 {
		o.MaxPerProject = DefaultMaxPerProject
	}
	return o
}

// Signature identifies a suggestion by source page, target page and lowercased anchor
type Signature struct {
	SourcePageID string
	TargetPageID string
	Anchor       string // Lowercased
}

// NewSignature builds the signature of linking sourcePageID to targetPageID with anchor
func NewSignature(sourcePageID, targetPageID, anchor string) Signature {
	return Signature{
		SourcePageID: sourcePageID,
		TargetPageID: targetPageID,
		Anchor:       strings.ToLower(anchor),
	}
}

// Key returns "<source>:<target>:<anchor>"
func (s Signature) Key() string {
	return s.SourcePageID + ":" + s.TargetPageID + ":" + s.Anchor
}

// Token returns the form embedded in task descriptions, "[link-scout:<key>]"
func (s Signature) Token() string {
	return signaturePrefix + s.Key() + "]"
}

// ParseSignature parses a "[link-scout:...]" token. Page ids never contain ':',
// anchors may.
func ParseSignature(token string) (Signature, bool) {
	if !strings.HasPrefix(token, signaturePrefix) || !strings.HasSuffix(token, "]") {
		return Signature{}, false
	}
	parts := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(token, signaturePrefix), "]"), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Signature{}, false
	}
	return Signature{SourcePageID: parts[0], TargetPageID: parts[1], Anchor: parts[2]}, true
}

// ExtractSignatureTokens returns every signature token embedded in description
func ExtractSignatureTokens(description string) []string {
	return signaturePattern.FindAllString(description, -1)
}

// Store is the persistence the miner reads from and writes to
type Store interface {
	// ListMoneyKeywords returns the project's keywords that have a target page, with the page resolved
	ListMoneyKeywords(ctx context.Context, projectID string) ([]models.Keyword, error)
	// ListPagesWithContent returns all project pages with their extracted text, if any
	ListPagesWithContent(ctx context.Context, projectID string) ([]models.PageWithContent, error)
	// ListLinkTaskDescriptions returns the descriptions of the project's LINK tasks
	ListLinkTaskDescriptions(ctx context.Context, projectID string) ([]string, error)
	// ListSuggestionSignatures returns the signatures recorded for the project
	ListSuggestionSignatures(ctx context.Context, projectID string) ([]Signature, error)
	// CreateLinkTask persists task and records sig, assigning task.ID. It returns
	// ErrDuplicateSuggestion when sig is already recorded for the project.
	CreateLinkTask(ctx context.Context, task *models.Task, sig Signature) error
}

// BuildMoneyTargets keeps keywords whose target page resolves to a URL and collects
// their anchor candidates: the phrase then the secondary terms, trimmed, non-empty, unique
func BuildMoneyTargets(keywords []models.Keyword) []models.MoneyTarget {
	targets := make([]models.MoneyTarget, 0, len(keywords))
	for _, kw := range keywords {
		if kw.TargetPageID == nil || kw.TargetPage == nil || kw.TargetPage.URL == "" {
			continue
		}

		seen := make(map[string]struct{})
		var anchors []string
		for _, candidate := range append([]string{kw.Phrase}, kw.SecondaryTerms...) {
			candidate = strings.TrimSpace(candidate)
			if candidate == "" {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			anchors = append(anchors, candidate)
		}

		targets = append(targets, models.MoneyTarget{
			KeywordID:    kw.ID,
			TargetPageID: *kw.TargetPageID,
			TargetURL:    kw.TargetPage.URL,
			TargetTitle:  titleOrURL(kw.TargetPage.Title, kw.TargetPage.URL),
			Anchors:      anchors,
		})
	}
	return targets
}

// BuildBlogPages keeps pages of a content type (blog, article, guide, content, news)
// that have extracted text
func BuildBlogPages(pages []models.PageWithContent) []models.BlogPage {
	blogs := make([]models.BlogPage, 0, len(pages))
	for _, page := range pages {
		if _, ok := blogPageTypes[strings.ToLower(page.PageType)]; !ok {
			continue
		}
		if page.ContentText == "" {
			continue
		}
		blogs = append(blogs, models.BlogPage{
			ID:       page.ID,
			URL:      page.URL,
			Title:    titleOrURL(page.Title, page.URL),
			Content:  page.ContentText,
			PageType: page.PageType,
		})
	}
	return blogs
}

// Plan picks suggestions without touching storage. Blogs and targets are visited in
// order; each (blog, target) pair contributes at most its best match, and matches whose
// signature is in existing (or was accepted earlier in this plan) are skipped. existing
// is not modified.
func Plan(targets []models.MoneyTarget, blogs []models.BlogPage, existing map[string]struct{}, opts Options) []models.Suggestion {
	opts = opts.withDefaults()
	if len(targets) == 0 || len(blogs) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(existing))
	for token := range existing {
		seen[token] = struct{}{}
	}

	matcher := newCorpusMatcher(targets)
	var suggestions []models.Suggestion

	for _, blog := range blogs {
		if len(suggestions) >= opts.MaxPerProject {
			break
		}
		present := matcher.present(blog.Content)
		addedForBlog := 0

		for _, tm := range matcher.targets {
			if tm.target.TargetPageID == blog.ID {
				continue
			}
			if addedForBlog >= opts.MaxPerBlog || len(suggestions) >= opts.MaxPerProject {
				break
			}

			matches := findMatches(blog.Content, tm, present)
			if len(matches) == 0 {
				continue
			}
			best := matches[0]

			token := NewSignature(blog.ID, tm.target.TargetPageID, best.Anchor).Token()
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}

			suggestions = append(suggestions, models.Suggestion{
				MatchResult: best,
				Blog:        blog,
				Signature:   token,
			})
			addedForBlog++
		}
	}

	return suggestions
}

// PriorityFor maps a confidence to a task priority
func PriorityFor(confidence float64) models.Priority {
	switch {
	case confidence >= 0.75:
		return models.PriorityHigh
	case confidence >= 0.55:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// NewLinkTask renders a suggestion as an OPEN LINK task. The signature token is the
// last description line so later runs can recover it.
func NewLinkTask(projectID string, s models.Suggestion) *models.Task {
	lines := []string{
		fmt.Sprintf("Anchor suggestion: %q", s.Anchor),
		"Source: " + s.Blog.Title,
		fmt.Sprintf("Target: %s (%s)", s.Target.TargetTitle, s.Target.TargetURL),
		"Confidence: " + strconv.FormatFloat(s.Confidence*100, 'f', 0, 64) + "%",
		"Context: " + s.Snippet,
		s.Signature,
	}

	return &models.Task{
		ProjectID:      projectID,
		Title:          fmt.Sprintf("Link %s to %s", s.Blog.Title, s.Target.TargetTitle),
		Description:    strings.Join(lines, "\n"),
		Status:         models.TaskStatusOpen,
		Priority:       PriorityFor(s.Confidence),
		Type:           models.TaskTypeLink,
		ScoreCurrent:   0,
		ScorePotential: int(s.Confidence*100 + 0.5),
	}
}

// Miner runs link mining against a Store
type Miner struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a Miner. logger and m may be nil.
func New(store Store, logger *slog.Logger, m *metrics.Metrics) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger, metrics: m}
}

// Generate mines projectID and persists one LINK task per accepted suggestion, in
// discovery order. A project without money targets or blog pages yields no tasks.
//
// Read failures return before anything is written. A write failure stops the run and
// is returned together with the tasks created so far; rerunning is safe because those
// tasks' signatures are recognized as existing.
func (m *Miner) Generate(ctx context.Context, projectID string, opts Options) ([]models.SuggestionResult, error) {
	ctx, span := tracer.Start(ctx, "linkscout.Generate",
		trace.WithAttributes(attribute.String("project.id", projectID)))
	defer span.End()

	start := time.Now()
	results, err := m.generate(ctx, projectID, opts)

	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("suggestions.created", len(results)))
	m.metrics.ObserveMiningRun(outcome, time.Since(start))

	return results, err
}

func (m *Miner) generate(ctx context.Context, projectID string, opts Options) ([]models.SuggestionResult, error) {
	keywords, err := m.store.ListMoneyKeywords(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load money keywords: %w", err)
	}
	pages, err := m.store.ListPagesWithContent(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}

	targets := BuildMoneyTargets(keywords)
	blogs := BuildBlogPages(pages)
	if len(targets) == 0 || len(blogs) == 0 {
		m.logger.Debug("nothing to mine",
			"project_id", projectID,
			"money_targets", len(targets),
			"blog_pages", len(blogs),
		)
		return []models.SuggestionResult{}, nil
	}

	existing, err := m.existingSignatures(ctx, projectID)
	if err != nil {
		return nil, err
	}

	suggestions := Plan(targets, blogs, existing, opts)

	results := make([]models.SuggestionResult, 0, len(suggestions))
	for _, s := range suggestions {
		sig, ok := ParseSignature(s.Signature)
		if !ok {
			sig = NewSignature(s.Blog.ID, s.Target.TargetPageID, s.Anchor)
		}

		task := NewLinkTask(projectID, s)
		if err := m.store.CreateLinkTask(ctx, task, sig); err != nil {
			if errors.Is(err, ErrDuplicateSuggestion) {
				m.logger.Info("suggestion created concurrently, skipping",
					"project_id", projectID,
					"signature", s.Signature,
				)
				m.metrics.DuplicateSuggestion()
				continue
			}
			return results, fmt.Errorf("failed to create link task: %w", err)
		}

		m.metrics.SuggestionCreated()
		results = append(results, models.SuggestionResult{
			TaskID:     task.ID,
			Anchor:     s.Anchor,
			TargetURL:  s.Target.TargetURL,
			SourceURL:  s.Blog.URL,
			Confidence: s.Confidence,
		})
	}

	m.logger.Info("link mining completed",
		"project_id", projectID,
		"money_targets", len(targets),
		"blog_pages", len(blogs),
		"existing_signatures", len(existing),
		"created", len(results),
	)

	return results, nil
}

// existingSignatures unions the recorded signatures with those embedded in LINK task
// descriptions, keyed by token
func (m *Miner) existingSignatures(ctx context.Context, projectID string) (map[string]struct{}, error) {
	descriptions, err := m.store.ListLinkTaskDescriptions(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load link tasks: %w", err)
	}
	recorded, err := m.store.ListSuggestionSignatures(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load suggestion signatures: %w", err)
	}

	existing := make(map[string]struct{}, len(descriptions)+len(recorded))
	for _, description := range descriptions {
		for _, token := range ExtractSignatureTokens(description) {
			existing[token] = struct{}{}
		}
	}
	for _, sig := range recorded {
		existing[sig.Token()] = struct{}{}
	}
	return existing, nil
}

func titleOrURL(title *string, url string) string {
	if title != nil && *title != "" {
		return *title
	}
	return url
}
