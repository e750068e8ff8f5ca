package linkscout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docutag/linkscout/models"
)

// fakeStore is an in-memory Store with a unique signature index
type fakeStore struct {
	keywords []models.Keyword
	pages    []models.PageWithContent
	tasks    []models.Task
	recorded map[string]Signature

	loadErr     error
	failOnWrite int // 1-based write that fails; 0 never fails
	writes      int
}

func newFakeStore(keywords []models.Keyword, pages []models.PageWithContent) *fakeStore {
	return &fakeStore{keywords: keywords, pages: pages, recorded: make(map[string]Signature)}
}

func (s *fakeStore) ListMoneyKeywords(ctx context.Context, projectID string) ([]models.Keyword, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.keywords, nil
}

func (s *fakeStore) ListPagesWithContent(ctx context.Context, projectID string) ([]models.PageWithContent, error) {
	return s.pages, nil
}

func (s *fakeStore) ListLinkTaskDescriptions(ctx context.Context, projectID string) ([]string, error) {
	var descriptions []string
	for _, task := range s.tasks {
		if task.Type == models.TaskTypeLink {
			descriptions = append(descriptions, task.Description)
		}
	}
	return descriptions, nil
}

func (s *fakeStore) ListSuggestionSignatures(ctx context.Context, projectID string) ([]Signature, error) {
	sigs := make([]Signature, 0, len(s.recorded))
	for _, sig := range s.recorded {
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (s *fakeStore) CreateLinkTask(ctx context.Context, task *models.Task, sig Signature) error {
	s.writes++
	if s.failOnWrite > 0 && s.writes == s.failOnWrite {
		return errors.New("connection reset")
	}
	if _, exists := s.recorded[sig.Key()]; exists {
		return ErrDuplicateSuggestion
	}
	task.ID = fmt.Sprintf("task-%d", len(s.tasks)+1)
	s.tasks = append(s.tasks, *task)
	s.recorded[sig.Key()] = sig
	return nil
}

func strPtr(s string) *string { return &s }

func page(id, pageType, title, content string) models.PageWithContent {
	p := models.PageWithContent{
		Page: models.Page{
			ID:       id,
			URL:      "https://example.com/" + id,
			PageType: pageType,
		},
		ContentText: content,
	}
	if title != "" {
		p.Title = strPtr(title)
	}
	return p
}

func keyword(id, phrase, targetID string, secondary ...string) models.Keyword {
	return models.Keyword{
		ID:             id,
		Phrase:         phrase,
		SecondaryTerms: secondary,
		TargetPageID:   strPtr(targetID),
		TargetPage: &models.Page{
			ID:    targetID,
			URL:   "https://example.com/" + targetID,
			Title: strPtr(strings.ToUpper(targetID[:1]) + targetID[1:]),
		},
	}
}

func fixtureStore() *fakeStore {
	return newFakeStore(
		[]models.Keyword{
			keyword("kw-1", "seo dashboard", "pricing", "SEO reporting"),
			keyword("kw-2", "rank tracker", "features"),
			keyword("kw-3", "content calendar", "calendar-guide"),
		},
		[]models.PageWithContent{
			page("pricing", "landing", "Pricing", "Our SEO dashboard costs less."),
			page("features", "product", "Features", ""),
			page("calendar-guide", "Guide", "Content Calendar Guide",
				"Plan every post with a content calendar. Pair it with an SEO dashboard for reporting."),
			page("blog-1", "Blog", "Ten SEO tips",
				"Tip one: use an SEO dashboard. Tip two: a rank tracker shows progress. Tip three: keep a content calendar."),
			page("news-1", "news", "", ""),
		},
	)
}

func TestGenerateCreatesLinkTasks(t *testing.T) {
	store := fixtureStore()
	miner := New(store, nil, nil)

	results, err := miner.Generate(context.Background(), "project-1", Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	// calendar-guide -> pricing, blog-1 -> pricing, features, calendar-guide
	if len(results) != 4 {
		t.Fatalf("Expected 4 suggestions, got %d: %+v", len(results), results)
	}
	if len(store.tasks) != 4 {
		t.Fatalf("Expected 4 persisted tasks, got %d", len(store.tasks))
	}

	for i, task := range store.tasks {
		if task.Type != models.TaskTypeLink || task.Status != models.TaskStatusOpen {
			t.Errorf("Task %d: expected OPEN LINK task, got %s %s", i, task.Status, task.Type)
		}
		if task.ScoreCurrent != 0 {
			t.Errorf("Task %d: expected current score 0, got %d", i, task.ScoreCurrent)
		}
		wantPotential := int(results[i].Confidence*100 + 0.5)
		if task.ScorePotential != wantPotential {
			t.Errorf("Task %d: expected potential %d, got %d", i, wantPotential, task.ScorePotential)
		}
		if task.Priority != PriorityFor(results[i].Confidence) {
			t.Errorf("Task %d: priority %s does not match confidence %v", i, task.Priority, results[i].Confidence)
		}
		if len(ExtractSignatureTokens(task.Description)) != 1 {
			t.Errorf("Task %d: expected one embedded signature, got description %q", i, task.Description)
		}
		if results[i].TaskID != task.ID {
			t.Errorf("Result %d: task id %q, want %q", i, results[i].TaskID, task.ID)
		}
	}

	first := results[0]
	if first.SourceURL != "https://example.com/calendar-guide" || first.TargetURL != "https://example.com/pricing" {
		t.Errorf("Unexpected first suggestion: %+v", first)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	store := fixtureStore()
	miner := New(store, nil, nil)
	ctx := context.Background()

	first, err := miner.Generate(ctx, "project-1", Options{})
	if err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if len(first) == 0 {
		t.Fatal("Expected the first run to create suggestions")
	}

	second, err := miner.Generate(ctx, "project-1", Options{})
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("Expected no new suggestions on the second run, got %d", len(second))
	}
	if len(store.tasks) != len(first) {
		t.Errorf("Expected %d tasks after two runs, got %d", len(first), len(store.tasks))
	}
}

func TestGenerateRecognizesSignaturesInLegacyDescriptions(t *testing.T) {
	store := fixtureStore()
	legacy := NewSignature("blog-1", "pricing", "SEO Dashboard").Token()
	store.tasks = append(store.tasks, models.Task{
		ID:          "legacy",
		Type:        models.TaskTypeLink,
		Description: "Anchor suggestion: \"seo dashboard\"\n" + legacy,
	})

	results, err := New(store, nil, nil).Generate(context.Background(), "project-1", Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, r := range results {
		if r.SourceURL == "https://example.com/blog-1" && r.TargetURL == "https://example.com/pricing" {
			t.Errorf("Suggestion recorded only in a task description was created again: %+v", r)
		}
	}
}

func TestGenerateNeverSelfLinks(t *testing.T) {
	store := fixtureStore()

	results, err := New(store, nil, nil).Generate(context.Background(), "project-1", Options{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	for _, r := range results {
		if r.SourceURL == r.TargetURL {
			t.Errorf("Page linked to itself: %+v", r)
		}
	}
}

func TestGenerateBounds(t *testing.T) {
	anchors := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot"}
	var keywords []models.Keyword
	for i, anchor := range anchors {
		keywords = append(keywords, keyword(fmt.Sprintf("kw-%d", i), anchor+" widget", "money-"+anchor))
	}

	var body strings.Builder
	for _, anchor := range anchors {
		body.WriteString("We reviewed the " + anchor + " widget in depth. ")
	}
	pages := []models.PageWithContent{
		page("post-1", "blog", "Post one", body.String()),
		page("post-2", "blog", "Post two", body.String()),
		page("post-3", "blog", "Post three", body.String()),
	}

	store := newFakeStore(keywords, pages)
	results, err := New(store, nil, nil).Generate(context.Background(), "project-1", Options{MaxPerBlog: 2, MaxPerProject: 5})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if len(results) != 5 {
		t.Fatalf("Expected the project cap of 5 suggestions, got %d", len(results))
	}

	perBlog := make(map[string]int)
	for _, r := range results {
		perBlog[r.SourceURL]++
	}
	for source, count := range perBlog {
		if count > 2 {
			t.Errorf("Blog %s received %d suggestions, cap is 2", source, count)
		}
	}
	if perBlog["https://example.com/post-3"] != 1 {
		t.Errorf("Expected the last blog to be cut by the project cap, got %v", perBlog)
	}
}

func TestGenerateEmptyInputs(t *testing.T) {
	tests := []struct {
		name  string
		store *fakeStore
	}{
		{
			name: "no money targets",
			store: newFakeStore(
				[]models.Keyword{{ID: "kw", Phrase: "seo dashboard"}},
				[]models.PageWithContent{page("blog-1", "blog", "Blog", "an seo dashboard")},
			),
		},
		{
			name: "no blog pages",
			store: newFakeStore(
				[]models.Keyword{keyword("kw", "seo dashboard", "pricing")},
				[]models.PageWithContent{page("landing", "landing", "Landing", "an seo dashboard")},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := New(tt.store, nil, nil).Generate(context.Background(), "project-1", Options{})
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if results == nil || len(results) != 0 {
				t.Errorf("Expected an empty result, got %+v", results)
			}
			if tt.store.writes != 0 {
				t.Errorf("Expected no writes, got %d", tt.store.writes)
			}
		})
	}
}

func TestGenerateLoadFailurePropagates(t *testing.T) {
	store := fixtureStore()
	store.loadErr = errors.New("database unavailable")

	_, err := New(store, nil, nil).Generate(context.Background(), "project-1", Options{})
	if err == nil || !errors.Is(err, store.loadErr) {
		t.Fatalf("Expected wrapped load error, got %v", err)
	}
	if store.writes != 0 {
		t.Errorf("Expected no writes after a load failure, got %d", store.writes)
	}
}

func TestGeneratePartialFailureThenRetry(t *testing.T) {
	store := fixtureStore()
	store.failOnWrite = 3
	miner := New(store, nil, nil)
	ctx := context.Background()

	partial, err := miner.Generate(ctx, "project-1", Options{})
	if err == nil {
		t.Fatal("Expected the third write to fail")
	}
	if len(partial) != 2 || len(store.tasks) != 2 {
		t.Fatalf("Expected 2 tasks created before the failure, got %d results and %d tasks", len(partial), len(store.tasks))
	}

	retry, err := miner.Generate(ctx, "project-1", Options{})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if len(retry) != 2 {
		t.Errorf("Expected the retry to create only the 2 missing tasks, got %d", len(retry))
	}
	if len(store.tasks) != 4 {
		t.Errorf("Expected 4 tasks in total, got %d", len(store.tasks))
	}
}

// racingStore records a signature behind the miner's back, as a concurrent run would
type racingStore struct {
	*fakeStore
	raced bool
}

func (s *racingStore) ListSuggestionSignatures(ctx context.Context, projectID string) ([]Signature, error) {
	sigs, err := s.fakeStore.ListSuggestionSignatures(ctx, projectID)
	if !s.raced {
		s.raced = true
		sig := NewSignature("calendar-guide", "pricing", "SEO dashboard")
		s.recorded[sig.Key()] = sig
	}
	return sigs, err
}

func TestGenerateSkipsSuggestionsCreatedConcurrently(t *testing.T) {
	store := &racingStore{fakeStore: fixtureStore()}

	results, err := New(store, nil, nil).Generate(context.Background(), "project-1", Options{})
	if err != nil {
		t.Fatalf("Expected duplicate signatures to be skipped, got %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Expected 3 suggestions after losing one race, got %d", len(results))
	}
}

func TestBuildMoneyTargets(t *testing.T) {
	keywords := []models.Keyword{
		keyword("kw-1", "  seo dashboard ", "pricing", "SEO reporting", "", "seo dashboard", "  "),
		{ID: "kw-unmapped", Phrase: "orphan"},
		{ID: "kw-no-url", Phrase: "ghost", TargetPageID: strPtr("p"), TargetPage: &models.Page{ID: "p"}},
		{ID: "kw-no-title", Phrase: "bare", TargetPageID: strPtr("bare"), TargetPage: &models.Page{ID: "bare", URL: "https://example.com/bare"}},
	}

	targets := BuildMoneyTargets(keywords)
	if len(targets) != 2 {
		t.Fatalf("Expected 2 money targets, got %d", len(targets))
	}

	if got := strings.Join(targets[0].Anchors, "|"); got != "seo dashboard|SEO reporting" {
		t.Errorf("Expected trimmed, deduplicated anchors, got %q", got)
	}
	if targets[0].TargetTitle != "Pricing" {
		t.Errorf("Expected target title Pricing, got %q", targets[0].TargetTitle)
	}
	if targets[1].TargetTitle != "https://example.com/bare" {
		t.Errorf("Expected title to fall back to the URL, got %q", targets[1].TargetTitle)
	}
}

func TestBuildBlogPages(t *testing.T) {
	pages := []models.PageWithContent{
		page("a", "BLOG", "A", "text"),
		page("b", "Article", "", "text"),
		page("c", "landing", "C", "text"),
		page("d", "news", "D", ""),
		page("e", "", "E", "text"),
	}

	blogs := BuildBlogPages(pages)
	if len(blogs) != 2 {
		t.Fatalf("Expected 2 blog pages, got %d", len(blogs))
	}
	if blogs[0].ID != "a" || blogs[1].ID != "b" {
		t.Errorf("Expected input order to be kept, got %s, %s", blogs[0].ID, blogs[1].ID)
	}
	if blogs[1].Title != "https://example.com/b" {
		t.Errorf("Expected untitled page to use its URL, got %q", blogs[1].Title)
	}
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		confidence float64
		want       models.Priority
	}{
		{0.9, models.PriorityHigh},
		{0.75, models.PriorityHigh},
		{0.7499, models.PriorityMedium},
		{0.55, models.PriorityMedium},
		{0.5499, models.PriorityLow},
		{0, models.PriorityLow},
	}

	for _, tt := range tests {
		if got := PriorityFor(tt.confidence); got != tt.want {
			t.Errorf("PriorityFor(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestSignatureRoundTrip(t *testing.T) {
	sig := NewSignature("blog-1", "pricing", "SEO: The Guide")
	token := sig.Token()
	if token != "[link-scout:blog-1:pricing:seo: the guide]" {
		t.Fatalf("Unexpected token %q", token)
	}

	parsed, ok := ParseSignature(token)
	if !ok || parsed != sig {
		t.Errorf("ParseSignature(%q) = %+v, %v", token, parsed, ok)
	}

	for _, bad := range []string{"", "[link-scout:]", "[link-scout:a:b]", "link-scout:a:b:c", "[other:a:b:c]"} {
		if _, ok := ParseSignature(bad); ok {
			t.Errorf("Expected %q to be rejected", bad)
		}
	}
}

func TestNewLinkTaskDescription(t *testing.T) {
	s := models.Suggestion{
		MatchResult: models.MatchResult{
			Anchor:     "SEO dashboard",
			Snippet:    "use an SEO dashboard daily",
			Confidence: 0.626,
			Target: models.MoneyTarget{
				TargetPageID: "pricing",
				TargetURL:    "https://example.com/pricing",
				TargetTitle:  "Pricing",
			},
		},
		Blog:      models.BlogPage{ID: "blog-1", URL: "https://example.com/blog-1", Title: "Ten SEO tips"},
		Signature: NewSignature("blog-1", "pricing", "SEO dashboard").Token(),
	}

	task := NewLinkTask("project-1", s)

	if task.Title != "Link Ten SEO tips to Pricing" {
		t.Errorf("Unexpected title %q", task.Title)
	}
	want := strings.Join([]string{
		`Anchor suggestion: "SEO dashboard"`,
		"Source: Ten SEO tips",
		"Target: Pricing (https://example.com/pricing)",
		"Confidence: 63%",
		"Context: use an SEO dashboard daily",
		"[link-scout:blog-1:pricing:seo dashboard]",
	}, "\n")
	if task.Description != want {
		t.Errorf("Unexpected description:\n%s\nwant:\n%s", task.Description, want)
	}
	if task.Priority != models.PriorityMedium || task.ScorePotential != 63 {
		t.Errorf("Unexpected priority/potential: %s/%d", task.Priority, task.ScorePotential)
	}
	if tokens := ExtractSignatureTokens(task.Description); len(tokens) != 1 || tokens[0] != s.Signature {
		t.Errorf("Expected to recover the signature, got %v", tokens)
	}
}
