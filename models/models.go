package models

import "time"

// Project is a workspace project whose pages and keywords are mined for link opportunities
type Project struct {
	ID          string        `json:"id"`
	WorkspaceID string        `json:"workspace_id"`
	Name        string        `json:"name"`
	Status      ProjectStatus `json:"status"`
}

// Page is a crawled page of a project
type Page struct {
	ID        string  `json:"id"`
	ProjectID string  `json:"project_id"`
	URL       string  `json:"url"`
	Title     *string `json:"title,omitempty"`
	PageType  string  `json:"page_type"`
}

// PageWithContent pairs a page with its extracted text content (empty when none was stored)
type PageWithContent struct {
	Page
	ContentText string `json:"content_text"`
}

// Keyword is a tracked search phrase, optionally mapped to the page it should convert on
type Keyword struct {
	ID             string   `json:"id"`
	ProjectID      string   `json:"project_id"`
	Phrase         string   `json:"phrase"`
	SecondaryTerms []string `json:"secondary_terms"`
	TargetPageID   *string  `json:"target_page_id,omitempty"`
	TargetPage     *Page    `json:"target_page,omitempty"` // Resolved target page, nil if unmapped
}

// Task is a unit of actionable work on a project's task board
type Task struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Priority       Priority   `json:"priority"`
	Type           TaskType   `json:"type"`
	ScoreCurrent   int        `json:"score_current"`   // 0-100
	ScorePotential int        `json:"score_potential"` // 0-100

	// Live signals, nil when unknown
	AveragePosition *float64 `json:"average_position,omitempty"`
	ConversionRate  *float64 `json:"conversion_rate,omitempty"`
	IntentScore     *float64 `json:"intent_score,omitempty"`
	TrafficGap      *float64 `json:"traffic_gap,omitempty"`
	EffortEstimate  *float64 `json:"effort_estimate,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MoneyTarget is a keyword mapped to the page it should send link equity to
type MoneyTarget struct {
	KeywordID    string   `json:"keyword_id"`
	TargetPageID string   `json:"target_page_id"`
	TargetURL    string   `json:"target_url"`
	TargetTitle  string   `json:"target_title"` // Falls back to the URL
	Anchors      []string `json:"anchors"`      // Phrase plus secondary terms, trimmed and deduplicated
}

// BlogPage is a content page that can host outbound internal links
type BlogPage struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	Title    string `json:"title"` // Falls back to the URL
	Content  string `json:"-"`
	PageType string `json:"page_type"`
}

// MatchResult is one whole-word hit of an anchor inside a blog page
type MatchResult struct {
	Anchor     string      `json:"anchor"`
	Snippet    string      `json:"snippet"`
	Confidence float64     `json:"confidence"` // 0.0 to 1.0
	Target     MoneyTarget `json:"target"`
}

// Suggestion is an accepted match, ready to be persisted as a LINK task
type Suggestion struct {
	MatchResult
	Blog      BlogPage `json:"blog"`
	Signature string   `json:"signature"`
}

// SuggestionResult describes a LINK task created from a suggestion
type SuggestionResult struct {
	TaskID     string  `json:"task_id"`
	Anchor     string  `json:"anchor"`
	TargetURL  string  `json:"target_url"`
	SourceURL  string  `json:"source_url"`
	Confidence float64 `json:"confidence"`
}
