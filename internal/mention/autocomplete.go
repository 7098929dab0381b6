package mention

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"chat-client/internal/models"
)

// Phase is the autocomplete state.
type Phase int

const (
	Idle Phase = iota
	ComposingQuery
	ResultsShown
)

func (p Phase) String() string {
	switch p {
	case ComposingQuery:
		return "composing"
	case ResultsShown:
		return "results"
	default:
		return "idle"
	}
}

// ErrNoQuery is returned by Select when no mention is in progress.
var ErrNoQuery = errors.New("no mention in progress")

// Searcher looks users up by a partial name.
type Searcher interface {
	SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error)
}

// SearchFunc adapts a function to Searcher.
type SearchFunc func(ctx context.Context, query string) ([]models.UserSummary, error)

// SearchUsers calls f.
func (f SearchFunc) SearchUsers(ctx context.Context, query string) ([]models.UserSummary, error) {
	return f(ctx, query)
}

// SegmentKind tells text apart from mention chips.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentChip
)

// Segment is one run of the rich-text input. Chips are not editable.
type Segment struct {
	Kind   SegmentKind
	Text   string
	UserID int
}

// Query is the transient parse state of an in-progress mention.
type Query struct {
	TriggerOffset int
	Text          string
	Candidates    []models.UserSummary
}

// Snapshot is a copy of the autocomplete state.
type Snapshot struct {
	Phase Phase
	Query Query
}

// Autocomplete tracks a composer input with @-mention chips. The editable
// text is always the run after the last chip.
type Autocomplete struct {
	mu       sync.Mutex
	searcher Searcher
	segments []Segment
	phase    Phase
	query    Query
	seq      uint64
	cursor   int
}

// New creates an empty composer backed by searcher.
func New(searcher Searcher) *Autocomplete {
	a := &Autocomplete{searcher: searcher}
	a.reset()
	return a
}

// Input replaces the editable text and re-parses it for a mention.
func (a *Autocomplete) Input(text string) Phase {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.segments[len(a.segments)-1].Text = text
	a.cursor = utf8.RuneCountInString(a.plainLocked())

	offset, query, ok := ParseQuery(text)
	if !ok {
		a.toIdle()
		return a.phase
	}
	a.seq++
	a.phase = ComposingQuery
	a.query = Query{TriggerOffset: offset, Text: query}
	return a.phase
}

// Lookup searches candidates for the current query. A response that is not
// for the latest query is discarded; applied reports whether it was used.
func (a *Autocomplete) Lookup(ctx context.Context) (applied bool, err error) {
	a.mu.Lock()
	if a.phase != ComposingQuery || a.searcher == nil {
		a.mu.Unlock()
		return false, nil
	}
	seq := a.seq
	term := strings.TrimSpace(a.query.Text)
	a.mu.Unlock()

	if term == "" {
		return false, nil
	}

	results, err := a.searcher.SearchUsers(ctx, term)
	if err != nil {
		return false, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if seq != a.seq || a.phase != ComposingQuery {
		return false, nil
	}
	a.query.Candidates = append([]models.UserSummary(nil), results...)
	a.phase = ResultsShown
	return true, nil
}

// Select replaces the @query span with a chip for user followed by one space.
func (a *Autocomplete) Select(user models.UserSummary) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.phase == Idle {
		return ErrNoQuery
	}

	tail := a.segments[len(a.segments)-1].Text
	prefix := tail[:a.query.TriggerOffset]

	segments := a.segments[:len(a.segments)-1]
	if prefix != "" {
		segments = append(segments, Segment{Kind: SegmentText, Text: prefix})
	}
	segments = append(segments,
		Segment{Kind: SegmentChip, Text: "@" + user.FullName, UserID: user.ID},
		Segment{Kind: SegmentText, Text: " "},
	)
	a.segments = segments
	a.cursor = utf8.RuneCountInString(a.plainLocked())
	a.toIdle()
	return nil
}

// Clear empties the input, as on submit or cancel.
func (a *Autocomplete) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

// Plain is the plain-text mirror of the input.
func (a *Autocomplete) Plain() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.plainLocked()
}

// Editable returns the text after the last chip.
func (a *Autocomplete) Editable() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.segments[len(a.segments)-1].Text
}

// Segments returns a copy of the rich-text runs.
func (a *Autocomplete) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Segment(nil), a.segments...)
}

// Cursor is the caret position in runes of the plain-text mirror.
func (a *Autocomplete) Cursor() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor
}

// MentionedUserIDs lists the users of inserted chips in order.
func (a *Autocomplete) MentionedUserIDs() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	var ids []int
	for _, s := range a.segments {
		if s.Kind == SegmentChip {
			ids = append(ids, s.UserID)
		}
	}
	return ids
}

// State returns a copy of the phase and query.
func (a *Autocomplete) State() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	q := a.query
	q.Candidates = append([]models.UserSummary(nil), a.query.Candidates...)
	return Snapshot{Phase: a.phase, Query: q}
}

func (a *Autocomplete) toIdle() {
	a.seq++
	a.phase = Idle
	a.query = Query{}
}

func (a *Autocomplete) reset() {
	a.segments = []Segment{{Kind: SegmentText}}
	a.cursor = 0
	a.toIdle()
}

func (a *Autocomplete) plainLocked() string {
	var b strings.Builder
	for _, s := range a.segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
