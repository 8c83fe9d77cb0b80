// Package reaper decides which stored updates to delete and deletes them.
//
// The selection policy is pure: given the launched update and everything in
// the store it returns the ids to delete. The Reaper applies a policy to an
// updates.Store.
package reaper

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ggoodman/inspector-proxy-go/updates"
)

// DefaultMaxUpdatesToKeep is the retention threshold used by the development
// client when none is configured.
const DefaultMaxUpdatesToKeep = 10

var (
	// ErrInvalidMaxToKeep is returned when a policy is built with a
	// non-positive retention threshold.
	ErrInvalidMaxToKeep = errors.New("reaper: maxUpdatesToKeep must be greater than zero")
	// ErrDuplicateLaunchedUpdate is returned when the launched update id
	// occurs more than once among the candidates, which means the store
	// handed out corrupt data.
	ErrDuplicateLaunchedUpdate = errors.New("reaper: multiple updates with the launched update id")
)

// SelectionPolicy picks updates to delete.
type SelectionPolicy interface {
	// SelectForDeletion returns ids of updates to delete, never including
	// launchedID.
	SelectForDeletion(launchedID string, all []updates.Update) ([]string, error)
}

// DevelopmentClientPolicy keeps at most a fixed number of updates regardless
// of scope. Once the limit is reached it deletes the least recently accessed
// updates, breaking ties by commit time.
type DevelopmentClientPolicy struct {
	maxToKeep int
}

var _ SelectionPolicy = (*DevelopmentClientPolicy)(nil)

// NewDevelopmentClientPolicy returns a policy keeping maxToKeep updates.
func NewDevelopmentClientPolicy(maxToKeep int) (*DevelopmentClientPolicy, error) {
	if maxToKeep <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxToKeep, maxToKeep)
	}
	return &DevelopmentClientPolicy{maxToKeep: maxToKeep}, nil
}

// MaxToKeep returns the retention threshold.
func (p *DevelopmentClientPolicy) MaxToKeep() int { return p.maxToKeep }

// SelectForDeletion returns ids oldest first. The launched update is passed
// over wherever it sorts and the next oldest update is taken instead.
func (p *DevelopmentClientPolicy) SelectForDeletion(launchedID string, all []updates.Update) ([]string, error) {
	if len(all) < p.maxToKeep {
		return nil, nil
	}

	sorted := slices.Clone(all)
	slices.SortStableFunc(sorted, compareByAccess)

	quota := len(sorted) - p.maxToKeep
	toDelete := make([]string, 0, quota)
	foundLaunched := false
	for _, u := range sorted {
		if len(toDelete) == quota {
			break
		}
		if u.ID == launchedID {
			if foundLaunched {
				return nil, fmt.Errorf("%w: %q", ErrDuplicateLaunchedUpdate, launchedID)
			}
			foundLaunched = true
			continue
		}
		toDelete = append(toDelete, u.ID)
	}
	return toDelete, nil
}

// UpdatesToDelete is SelectForDeletion for callers holding full records. The
// returned updates are in deletion order.
func (p *DevelopmentClientPolicy) UpdatesToDelete(launched updates.Update, all []updates.Update) ([]updates.Update, error) {
	ids, err := p.SelectForDeletion(launched.ID, all)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	byID := make(map[string]updates.Update, len(all))
	for _, u := range all {
		byID[u.ID] = u
	}
	out := make([]updates.Update, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

func compareByAccess(a, b updates.Update) int {
	if c := a.LastAccessed.Compare(b.LastAccessed); c != 0 {
		return c
	}
	return a.CommitTime.Compare(b.CommitTime)
}
