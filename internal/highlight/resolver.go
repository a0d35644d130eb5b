// Package highlight holds the client core: highlight identity resolution,
// the pending (not-yet-persisted) candidate lifecycle, and the session
// aggregate that owns the open document's highlight list.
package highlight

import "github.com/marginapp/margin/internal/storage"

// Resolve decides whether a candidate selection matches an already-known
// highlight. Identity is exact string equality of the selected text AND exact
// page equality; first match wins. Overlapping-but-not-identical selections
// are deliberately treated as new highlights: a duplicate for a superset
// selection is acceptable, merging two distinct intents is not.
func Resolve(selectedText string, pageNumber int, known []storage.Highlight) *storage.Highlight {
	for i := range known {
		if known[i].SelectedText == selectedText && known[i].PageNumber == pageNumber {
			return &known[i]
		}
	}
	return nil
}
