package domain

import "time"

// BootState is the last known power state of a simulator.
type BootState string

const (
	BootStateBooted   BootState = "booted"
	BootStateShutdown BootState = "shutdown"
	BootStateBooting  BootState = "booting"
	BootStateUnknown  BootState = "unknown"
)

// DeviceMetrics summarises a device's boot behaviour.
type DeviceMetrics struct {
	AvgBootTime time.Duration `json:"avg_boot_time"`
	Reliability float64       `json:"reliability"`
}

// Device is one enumerated simulator plus the history carried across refreshes.
type Device struct {
	Name                 string         `json:"name"`
	UDID                 string         `json:"udid"`
	IsAvailable          bool           `json:"is_available"`
	State                string         `json:"state"`
	DeviceTypeIdentifier string         `json:"device_type_identifier"`
	Runtime              string         `json:"runtime"`
	LastUsed             *time.Time     `json:"last_used,omitempty"`
	BootHistory          []time.Time    `json:"boot_history,omitempty"`
	PerformanceMetrics   *DeviceMetrics `json:"performance_metrics,omitempty"`
}

// Runtime is an installed simulator runtime.
type Runtime struct {
	Identifier  string `json:"identifier"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	IsAvailable bool   `json:"is_available"`
}

// DeviceList is a fully merged enumeration snapshot keyed by runtime identifier.
type DeviceList struct {
	Devices     map[string][]Device `json:"devices"`
	Runtimes    []Runtime           `json:"runtimes"`
	LastUpdated time.Time           `json:"last_updated"`
}

// All flattens the snapshot in runtime order.
func (l DeviceList) All() []Device {
	var out []Device
	for _, devices := range l.Devices {
		out = append(out, devices...)
	}
	return out
}

// Count returns the number of devices across all runtimes.
func (l DeviceList) Count() int {
	n := 0
	for _, devices := range l.Devices {
		n += len(devices)
	}
	return n
}

// DeviceCacheStats reports the device cache state.
type DeviceCacheStats struct {
	IsCached          bool           `json:"is_cached"`
	LastUpdated       *time.Time     `json:"last_updated,omitempty"`
	MaxAge            time.Duration  `json:"max_age"`
	DeviceCount       int            `json:"device_count"`
	RecentlyUsedCount int            `json:"recently_used_count"`
	IsExpired         bool           `json:"is_expired"`
	TimeUntilExpiry   *time.Duration `json:"time_until_expiry,omitempty"`
}
