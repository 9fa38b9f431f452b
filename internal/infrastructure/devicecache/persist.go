package devicecache

import (
	"sort"
	"time"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
	"github.com/ericvoltolin/xc-mcp/internal/infrastructure/persistence"
)

// persistedState is the devices.json payload. lastUsed is kept apart from
// history so usage survives even when no boot was ever recorded.
type persistedState struct {
	History    *persistence.OrderedMap[persistedHistory]      `json:"history"`
	LastUsed   *persistence.OrderedMap[persistence.Timestamp] `json:"lastUsed"`
	Preferred  *persistence.OrderedMap[string]                `json:"preferredByProject,omitempty"`
	Snapshot   *persistedSnapshot                             `json:"snapshot,omitempty"`
	BootStates *persistence.OrderedMap[domain.BootState]      `json:"bootStates,omitempty"`
}

// persistedSnapshot is the last enumeration, keyed by runtime identifier.
type persistedSnapshot struct {
	Devices     *persistence.OrderedMap[[]persistedDevice] `json:"devices"`
	Runtimes    []domain.Runtime                           `json:"runtimes"`
	LastUpdated persistence.Timestamp                      `json:"lastUpdated"`
}

type persistedDevice struct {
	Name                 string `json:"name"`
	UDID                 string `json:"udid"`
	IsAvailable          bool   `json:"isAvailable"`
	State                string `json:"state"`
	DeviceTypeIdentifier string `json:"deviceTypeIdentifier"`
}

type persistedHistory struct {
	BootHistory   []persistence.Timestamp `json:"bootHistory"`
	AvgBootTimeMs *int64                  `json:"avgBootTimeMs,omitempty"`
	Reliability   *float64                `json:"reliability,omitempty"`
}

// Load restores the last enumeration, boot states, usage, boot history and
// project pins saved by a previous process. It reports whether anything was
// restored.
func (c *Cache) Load() bool {
	if c.persister == nil || !c.persister.IsEnabled() {
		return false
	}
	var state persistedState
	if !c.persister.LoadState(persistence.CacheDevices, &state) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if state.History != nil {
		state.History.Range(func(udid string, ph persistedHistory) bool {
			h := c.historyLocked(udid)
			h.bootHistory = h.bootHistory[:0]
			for _, ts := range ph.BootHistory {
				h.bootHistory = append(h.bootHistory, ts.Time)
			}
			if ph.AvgBootTimeMs != nil || ph.Reliability != nil {
				m := domain.DeviceMetrics{}
				if ph.AvgBootTimeMs != nil {
					m.AvgBootTime = time.Duration(*ph.AvgBootTimeMs) * time.Millisecond
				}
				if ph.Reliability != nil {
					m.Reliability = *ph.Reliability
				}
				h.metrics = &m
			}
			return true
		})
	}
	if state.LastUsed != nil {
		state.LastUsed.Range(func(udid string, ts persistence.Timestamp) bool {
			t := ts.Time
			c.historyLocked(udid).lastUsed = &t
			return true
		})
	}
	if state.Preferred != nil {
		state.Preferred.Range(func(project, udid string) bool {
			c.pins[project] = udid
			return true
		})
	}
	if state.Snapshot != nil && state.Snapshot.Devices != nil {
		c.current = restoreSnapshot(state.Snapshot)
	}
	if state.BootStates != nil {
		state.BootStates.Range(func(udid string, bs domain.BootState) bool {
			c.states[udid] = bs
			return true
		})
	}
	c.logger.Debug("device state restored", map[string]interface{}{
		"devices":  len(c.histories),
		"snapshot": c.current != nil,
	})
	return true
}

func restoreSnapshot(ps *persistedSnapshot) *snapshot {
	snap := &snapshot{
		devices:     make(map[string][]domain.Device, ps.Devices.Len()),
		runtimes:    append([]domain.Runtime(nil), ps.Runtimes...),
		lastUpdated: ps.LastUpdated.Time,
	}
	ps.Devices.Range(func(runtime string, devices []persistedDevice) bool {
		list := make([]domain.Device, 0, len(devices))
		for _, d := range devices {
			list = append(list, domain.Device{
				Name:                 d.Name,
				UDID:                 d.UDID,
				IsAvailable:          d.IsAvailable,
				State:                d.State,
				DeviceTypeIdentifier: d.DeviceTypeIdentifier,
				Runtime:              runtime,
			})
		}
		snap.devices[runtime] = list
		return true
	})
	return snap
}

func persistSnapshot(snap *snapshot) *persistedSnapshot {
	ps := &persistedSnapshot{
		Devices:     persistence.NewOrderedMap[[]persistedDevice](),
		Runtimes:    append([]domain.Runtime(nil), snap.runtimes...),
		LastUpdated: persistence.NewTimestamp(snap.lastUpdated),
	}
	runtimes := make([]string, 0, len(snap.devices))
	for runtime := range snap.devices {
		runtimes = append(runtimes, runtime)
	}
	sort.Strings(runtimes)
	for _, runtime := range runtimes {
		devices := make([]persistedDevice, 0, len(snap.devices[runtime]))
		for _, d := range snap.devices[runtime] {
			devices = append(devices, persistedDevice{
				Name:                 d.Name,
				UDID:                 d.UDID,
				IsAvailable:          d.IsAvailable,
				State:                d.State,
				DeviceTypeIdentifier: d.DeviceTypeIdentifier,
			})
		}
		ps.Devices.Set(runtime, devices)
	}
	return ps
}

// persistLocked schedules a save of the snapshot, boot states and histories,
// most recently used first.
func (c *Cache) persistLocked() {
	if c.persister == nil || !c.persister.IsEnabled() {
		return
	}
	udids := make([]string, 0, len(c.histories))
	for udid := range c.histories {
		udids = append(udids, udid)
	}
	sort.Slice(udids, func(i, j int) bool {
		a, b := c.histories[udids[i]].lastUsed, c.histories[udids[j]].lastUsed
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		if (a == nil) != (b == nil) {
			return a != nil
		}
		return udids[i] < udids[j]
	})

	state := persistedState{
		History:    persistence.NewOrderedMap[persistedHistory](),
		LastUsed:   persistence.NewOrderedMap[persistence.Timestamp](),
		Preferred:  persistence.NewOrderedMap[string](),
		BootStates: persistence.NewOrderedMap[domain.BootState](),
	}
	if c.current != nil {
		state.Snapshot = persistSnapshot(c.current)
	}
	for _, udid := range sortedStateKeys(c.states) {
		state.BootStates.Set(udid, c.states[udid])
	}
	for _, udid := range udids {
		h := c.histories[udid]
		if h.lastUsed != nil {
			state.LastUsed.Set(udid, persistence.NewTimestamp(*h.lastUsed))
		}
		if len(h.bootHistory) == 0 && h.metrics == nil {
			continue
		}
		ph := persistedHistory{BootHistory: make([]persistence.Timestamp, 0, len(h.bootHistory))}
		for _, t := range h.bootHistory {
			ph.BootHistory = append(ph.BootHistory, persistence.NewTimestamp(t))
		}
		if h.metrics != nil {
			ms := h.metrics.AvgBootTime.Milliseconds()
			rel := h.metrics.Reliability
			ph.AvgBootTimeMs = &ms
			ph.Reliability = &rel
		}
		state.History.Set(udid, ph)
	}
	projects := make([]string, 0, len(c.pins))
	for project := range c.pins {
		projects = append(projects, project)
	}
	sort.Strings(projects)
	for _, project := range projects {
		state.Preferred.Set(project, c.pins[project])
	}
	c.persister.SaveState(persistence.CacheDevices, state)
}

func sortedStateKeys(states map[string]domain.BootState) []string {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
