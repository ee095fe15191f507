package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoHistoryAttribute is returned when a history_info lookup names an
	// audit attribute that does not exist on the version.
	ErrNoHistoryAttribute = errors.New("history_info has no such attribute")

	// ErrNoReverseAccessor is returned when a reverse relationship accessor
	// is read under a name the resolver never installed.
	ErrNoReverseAccessor = errors.New("no reverse accessor installed under this name")
)

// HistoryInfo is a field-name-prefix facade over a version's audit
// attributes: reading "date" reads the version's history_date, writing
// "type" writes history_type, and so on. It exists so callers can address
// audit fields without coupling to the history_ prefix convention.
type HistoryInfo struct {
	version *Version
}

// HistoryInfo returns the audit facade for this version.
func (v *Version) HistoryInfo() HistoryInfo {
	return HistoryInfo{version: v}
}

// ID returns the history id (the snapshot's own surrogate key).
func (h HistoryInfo) ID() int64 { return h.version.HistoryID }

// Date returns the snapshot timestamp.
func (h HistoryInfo) Date() time.Time { return h.version.HistoryDate }

// Type returns the change type recorded for the snapshot.
func (h HistoryInfo) Type() ChangeType { return h.version.HistoryType }

// RevertedTo returns the history id of the version this snapshot reverted
// to, when the snapshot was produced by a revert.
func (h HistoryInfo) RevertedTo() (int64, bool) {
	if h.version.RevertedToID == nil {
		return 0, false
	}
	return *h.version.RevertedToID, true
}

// Get reads the audit attribute with the given unprefixed name.
func (h HistoryInfo) Get(name string) (any, error) {
	switch name {
	case "id":
		return h.version.HistoryID, nil
	case "date":
		return h.version.HistoryDate, nil
	case "type":
		return h.version.HistoryType, nil
	case "reverted_to":
		if h.version.RevertedToID == nil {
			return nil, nil
		}
		return *h.version.RevertedToID, nil
	}
	return nil, fmt.Errorf("%w: history_%s", ErrNoHistoryAttribute, name)
}

// Set writes the audit attribute with the given unprefixed name.
func (h HistoryInfo) Set(name string, value any) error {
	switch name {
	case "date":
		date, ok := value.(time.Time)
		if !ok {
			return fmt.Errorf("history_date expects time.Time, got %T", value)
		}
		h.version.HistoryDate = date
		return nil
	case "type":
		switch typed := value.(type) {
		case ChangeType:
			h.version.HistoryType = typed
		case string:
			h.version.HistoryType = ChangeType(typed)
		default:
			return fmt.Errorf("history_type expects ChangeType, got %T", value)
		}
		return nil
	case "reverted_to":
		switch typed := value.(type) {
		case nil:
			h.version.RevertedToID = nil
		case int64:
			h.version.RevertedToID = &typed
		case *int64:
			h.version.RevertedToID = typed
		default:
			return fmt.Errorf("history_reverted_to expects int64, got %T", value)
		}
		return nil
	}
	return fmt.Errorf("%w: history_%s", ErrNoHistoryAttribute, name)
}
