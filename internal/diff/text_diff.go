package diff

import (
	"html"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// SpanOp labels one contiguous run of text in a text diff.
type SpanOp string

const (
	SpanEqual    SpanOp = "equal"
	SpanDeleted  SpanOp = "deleted"
	SpanInserted SpanOp = "inserted"
)

// Span is one run of equal, deleted, or inserted text.
type Span struct {
	Op   SpanOp `json:"op"`
	Text string `json:"text"`
}

// TextFieldDiff diffs two strings at character granularity, merging the
// word-level churn of naive character diffs into readable spans via
// semantic cleanup. "Phil" -> "Phillip" yields an equal "Phil" span and an
// inserted "lip" span rather than scattered single characters.
type TextFieldDiff struct {
	v1, v2   string
	computed bool
	spans    []Span
}

// NewTextFieldDiff creates the character-level text strategy.
func NewTextFieldDiff(v1, v2 any) FieldDiff {
	return &TextFieldDiff{v1: stringValue(v1), v2: stringValue(v2)}
}

func (d *TextFieldDiff) compute() []Span {
	if d.computed {
		return d.spans
	}
	d.computed = true
	if d.v1 == d.v2 {
		return nil
	}
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 10 * time.Millisecond
	dmp.DiffEditCost = 4
	diffs := dmp.DiffMain(d.v1, d.v2, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	d.spans = make([]Span, 0, len(diffs))
	for _, df := range diffs {
		switch df.Type {
		case diffmatchpatch.DiffDelete:
			d.spans = append(d.spans, Span{Op: SpanDeleted, Text: df.Text})
		case diffmatchpatch.DiffInsert:
			d.spans = append(d.spans, Span{Op: SpanInserted, Text: df.Text})
		default:
			d.spans = append(d.spans, Span{Op: SpanEqual, Text: df.Text})
		}
	}
	return d.spans
}

// Spans returns the computed runs, nil when the strings are equal.
func (d *TextFieldDiff) Spans() []Span {
	return d.compute()
}

// Diff returns the span list, or nil when the strings are equal.
func (d *TextFieldDiff) Diff() any {
	if spans := d.compute(); spans != nil {
		return spans
	}
	return nil
}

// HTML renders the spans inline: deletions in <del>, insertions in <ins>.
func (d *TextFieldDiff) HTML() string {
	spans := d.compute()
	if spans == nil {
		return noDifferencesRow
	}
	var b strings.Builder
	b.WriteString(`<tr><td colspan="2">`)
	for _, s := range spans {
		text := html.EscapeString(s.Text)
		switch s.Op {
		case SpanDeleted:
			b.WriteString("<del>" + text + "</del>")
		case SpanInserted:
			b.WriteString("<ins>" + text + "</ins>")
		default:
			b.WriteString(text)
		}
	}
	b.WriteString("</td></tr>")
	return b.String()
}

// HTMLFieldDiff diffs two HTML documents. The structured diff is the raw
// before/after pair; rendering falls back to the character-level text diff
// of the markup, which stays legible for the small edits wiki pages see.
type HTMLFieldDiff struct {
	v1, v2   string
	computed bool
	delta    *ValueDelta
	text     *TextFieldDiff
}

// NewHTMLFieldDiff creates the HTML document strategy.
func NewHTMLFieldDiff(v1, v2 any) FieldDiff {
	return &HTMLFieldDiff{v1: stringValue(v1), v2: stringValue(v2)}
}

func (d *HTMLFieldDiff) compute() *ValueDelta {
	if !d.computed {
		if d.v1 != d.v2 {
			d.delta = &ValueDelta{Deleted: d.v1, Inserted: d.v2}
		}
		d.computed = true
	}
	return d.delta
}

// Diff returns nil when the documents are equal, else {deleted, inserted}.
func (d *HTMLFieldDiff) Diff() any {
	if delta := d.compute(); delta != nil {
		return delta
	}
	return nil
}

// HTML renders a character diff of the markup source.
func (d *HTMLFieldDiff) HTML() string {
	if d.compute() == nil {
		return noDifferencesRow
	}
	if d.text == nil {
		d.text = NewTextFieldDiff(d.v1, d.v2).(*TextFieldDiff)
	}
	return d.text.HTML()
}
