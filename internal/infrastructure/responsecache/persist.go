package responsecache

import (
	"sort"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
)

type persistedState struct {
	Entries []persistedEntry `json:"entries"`
}

type persistedEntry struct {
	ID         string                 `json:"id"`
	Tool       string                 `json:"tool"`
	Timestamp  persistence.Timestamp  `json:"timestamp"`
	FullOutput string                 `json:"fullOutput"`
	Stderr     string                 `json:"stderr,omitempty"`
	ExitCode   int                    `json:"exitCode"`
	Command    string                 `json:"command,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Load restores live entries saved by a previous process and returns how
// many were restored. Entries already past their TTL are dropped.
func (c *Cache) Load() int {
	if c.persister == nil || !c.persister.IsEnabled() {
		return 0
	}
	var state persistedState
	if !c.persister.LoadState(persistence.CacheResponses, &state) {
		return 0
	}
	sort.SliceStable(state.Entries, func(i, j int) bool {
		return state.Entries[i].Timestamp.Before(state.Entries[j].Timestamp.Time)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range state.Entries {
		if e.ID == "" {
			continue
		}
		if _, exists := c.entries[e.ID]; exists {
			continue
		}
		c.insertLocked(domain.CachedResponse{
			ID:         e.ID,
			Tool:       e.Tool,
			Timestamp:  e.Timestamp.Time,
			FullOutput: e.FullOutput,
			Stderr:     e.Stderr,
			ExitCode:   e.ExitCode,
			Command:    e.Command,
			Metadata:   e.Metadata,
		})
	}
	c.sweepLocked()
	restored := len(c.entries)
	c.logger.Debug("responses restored", map[string]interface{}{"count": restored})
	return restored
}

// persistLocked schedules a save of the live entries, oldest first.
func (c *Cache) persistLocked() {
	if c.persister == nil || !c.persister.IsEnabled() {
		return
	}
	all := make([]stored, 0, len(c.entries))
	for _, s := range c.entries {
		all = append(all, s)
	}
	sortNewestFirst(all)

	state := persistedState{Entries: make([]persistedEntry, 0, len(all))}
	for i := len(all) - 1; i >= 0; i-- {
		e := all[i]
		state.Entries = append(state.Entries, persistedEntry{
			ID:         e.ID,
			Tool:       e.Tool,
			Timestamp:  persistence.NewTimestamp(e.Timestamp),
			FullOutput: e.FullOutput,
			Stderr:     e.Stderr,
			ExitCode:   e.ExitCode,
			Command:    e.Command,
			Metadata:   e.Metadata,
		})
	}
	c.persister.SaveState(persistence.CacheResponses, state)
}
