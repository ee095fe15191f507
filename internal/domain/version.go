package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChangeType classifies the mutation that produced a version.
type ChangeType string

const (
	ChangeTypeCreated  ChangeType = "created"
	ChangeTypeChanged  ChangeType = "changed"
	ChangeTypeDeleted  ChangeType = "deleted"
	ChangeTypeReverted ChangeType = "reverted"
)

// Version captures an immutable historical snapshot of an entity. A version
// is written exactly once per entity mutation and never modified afterwards;
// pruning during a delete-newer revert is the only way a version row is ever
// removed.
type Version struct {
	HistoryID    int64          `json:"history_id"`
	EntityID     uuid.UUID      `json:"entity_id"`
	EntityType   string         `json:"entity_type"`
	Properties   map[string]any `json:"properties"`
	HistoryDate  time.Time      `json:"history_date"`
	HistoryType  ChangeType     `json:"history_type"`
	RevertedToID *int64         `json:"reverted_to_id,omitempty"`

	versionNumber *int64

	// Relationship state installed by the temporal resolver. Outgoing
	// references are resolved eagerly at wrap time; reverse accessors are
	// lazy cells forced at most once on first read.
	references  map[string]*Version
	reverseSets map[string]*Lazy[[]*Version]
	reverseOnes map[string]*Lazy[*Version]
}

// NewVersion builds an unsaved version snapshot of the given entity. The
// entity's properties are frozen by copy. HistoryDate defaults to now when
// left zero by the store.
func NewVersion(entity Entity, changeType ChangeType) *Version {
	return &Version{
		EntityID:    entity.ID,
		EntityType:  entity.EntityType,
		Properties:  copyProperties(entity.Properties),
		HistoryDate: time.Now(),
		HistoryType: changeType,
	}
}

// Snapshot reconstructs the live entity embedded in this version.
func (v *Version) Snapshot() Entity {
	return Entity{
		ID:         v.EntityID,
		EntityType: v.EntityType,
		Properties: copyProperties(v.Properties),
		CreatedAt:  v.HistoryDate,
		UpdatedAt:  v.HistoryDate,
	}
}

// Reference returns the raw referenced entity id stored under the given
// property name.
func (v *Version) Reference(name string) (uuid.UUID, bool) {
	return referenceID(v.Properties, name)
}

// CachedVersionNumber returns the memoized version number, if computed.
func (v *Version) CachedVersionNumber() (int64, bool) {
	if v.versionNumber == nil {
		return 0, false
	}
	return *v.versionNumber, true
}

// SetVersionNumber memoizes the version number for this instance.
func (v *Version) SetVersionNumber(n int64) {
	v.versionNumber = &n
}

// SetResolvedReference installs the historically-correct version of an
// outgoing reference field, replacing the raw identifier for readers.
func (v *Version) SetResolvedReference(field string, target *Version) {
	if v.references == nil {
		v.references = make(map[string]*Version)
	}
	v.references[field] = target
}

// ResolvedReference returns the historically-correct related version for an
// outgoing reference field, installed at wrap time.
func (v *Version) ResolvedReference(field string) (*Version, bool) {
	target, ok := v.references[field]
	return target, ok
}

// SetReverseSet installs a lazy one-to-many reverse accessor under the given
// accessor name.
func (v *Version) SetReverseSet(name string, cell *Lazy[[]*Version]) {
	if v.reverseSets == nil {
		v.reverseSets = make(map[string]*Lazy[[]*Version])
	}
	v.reverseSets[name] = cell
}

// SetReverseOne installs a lazy one-to-one reverse accessor under the given
// accessor name.
func (v *Version) SetReverseOne(name string, cell *Lazy[*Version]) {
	if v.reverseOnes == nil {
		v.reverseOnes = make(map[string]*Lazy[*Version])
	}
	v.reverseOnes[name] = cell
}

// ReverseSet forces the named one-to-many reverse accessor and returns the
// related versions as of this version's timestamp. Absence of related rows
// is a normal state and yields an empty slice.
func (v *Version) ReverseSet(name string) ([]*Version, error) {
	cell, ok := v.reverseSets[name]
	if !ok {
		return nil, ErrNoReverseAccessor
	}
	return cell.Force()
}

// ReverseOne forces the named one-to-one reverse accessor and returns the
// single related version as of this version's timestamp.
func (v *Version) ReverseOne(name string) (*Version, error) {
	cell, ok := v.reverseOnes[name]
	if !ok {
		return nil, ErrNoReverseAccessor
	}
	return cell.Force()
}

// ReverseAccessorNames lists the installed reverse accessors.
func (v *Version) ReverseAccessorNames() []string {
	names := make([]string, 0, len(v.reverseSets)+len(v.reverseOnes))
	for name := range v.reverseSets {
		names = append(names, name)
	}
	for name := range v.reverseOnes {
		names = append(names, name)
	}
	return names
}
