package diff

import (
	"fmt"
	"html"
)

// FileRef is the normalized form of a file-typed property value. Stored
// property values may be a {"name": ..., "url": ...} object or a bare path
// string, in which case the path serves as both name and url.
type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func fileRefOf(v any) FileRef {
	switch t := v.(type) {
	case nil:
		return FileRef{}
	case FileRef:
		return t
	case map[string]any:
		return FileRef{Name: stringValue(t["name"]), URL: stringValue(t["url"])}
	case string:
		return FileRef{Name: t, URL: t}
	default:
		s := fmt.Sprint(v)
		return FileRef{Name: s, URL: s}
	}
}

// FileDelta pairs the replaced and replacing file references.
type FileDelta struct {
	Deleted  FileRef `json:"deleted"`
	Inserted FileRef `json:"inserted"`
}

// FileFieldDiff compares file references by name and url. File contents are
// never inspected; a file history is a sequence of uploads, so two versions
// either point at the same stored object or they differ entirely.
type FileFieldDiff struct {
	v1, v2   FileRef
	computed bool
	delta    *FileDelta
}

// NewFileFieldDiff creates the file reference strategy.
func NewFileFieldDiff(v1, v2 any) FieldDiff {
	return &FileFieldDiff{v1: fileRefOf(v1), v2: fileRefOf(v2)}
}

func (d *FileFieldDiff) compute() *FileDelta {
	if !d.computed {
		if d.v1 != d.v2 {
			d.delta = &FileDelta{Deleted: d.v1, Inserted: d.v2}
		}
		d.computed = true
	}
	return d.delta
}

// Diff returns nil when both references match, else the deleted and
// inserted reference pair.
func (d *FileFieldDiff) Diff() any {
	if delta := d.compute(); delta != nil {
		return delta
	}
	return nil
}

// HTML renders the two references as links.
func (d *FileFieldDiff) HTML() string {
	if d.compute() == nil {
		return noDifferencesRow
	}
	return fmt.Sprintf(`<tr><td><a href="%s">%s</a></td><td><a href="%s">%s</a></td></tr>`,
		html.EscapeString(d.v1.URL), html.EscapeString(d.v1.Name),
		html.EscapeString(d.v2.URL), html.EscapeString(d.v2.Name))
}

// ImageFieldDiff is the file strategy with inline image rendering.
type ImageFieldDiff struct {
	FileFieldDiff
}

// NewImageFieldDiff creates the image reference strategy.
func NewImageFieldDiff(v1, v2 any) FieldDiff {
	return &ImageFieldDiff{FileFieldDiff{v1: fileRefOf(v1), v2: fileRefOf(v2)}}
}

// HTML renders the two images side by side.
func (d *ImageFieldDiff) HTML() string {
	if d.compute() == nil {
		return noDifferencesRow
	}
	return fmt.Sprintf(`<tr><td><img src="%s" alt="%s"></td><td><img src="%s" alt="%s"></td></tr>`,
		html.EscapeString(d.v1.URL), html.EscapeString(d.v1.Name),
		html.EscapeString(d.v2.URL), html.EscapeString(d.v2.Name))
}
