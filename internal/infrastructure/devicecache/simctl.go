package devicecache

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

const xcrun = "xcrun"

var (
	listDevicesArgs  = []string{"simctl", "list", "devices", "-j"}
	listRuntimesArgs = []string{"simctl", "list", "runtimes", "-j"}
)

// enumerate runs simctl for devices and runtimes. Histories are not attached.
func (c *Cache) enumerate(ctx context.Context) (map[string][]domain.Device, []domain.Runtime, error) {
	out, err := c.run(ctx, listDevicesArgs)
	if err != nil {
		return nil, nil, err
	}
	devices, err := parseDevices(out)
	if err != nil {
		return nil, nil, err
	}
	out, err = c.run(ctx, listRuntimesArgs)
	if err != nil {
		return nil, nil, err
	}
	runtimes, err := parseRuntimes(out)
	if err != nil {
		return nil, nil, err
	}
	return devices, runtimes, nil
}

func (c *Cache) run(ctx context.Context, args []string) ([]byte, error) {
	command := xcrun + " " + strings.Join(args, " ")
	result, err := c.executor.Execute(ctx, xcrun, args, c.execOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to run %s: %w", command, err)
	}
	if !result.Succeeded() {
		return nil, domain.NewUpstreamError(command, result)
	}
	return []byte(result.Stdout), nil
}

// parseDevices reads `simctl list devices -j` output keyed by runtime identifier.
func parseDevices(data []byte) (map[string][]domain.Device, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("simctl device list is not valid JSON: %w", domain.ErrUpstreamFailure)
	}
	root := gjson.GetBytes(data, "devices")
	if !root.IsObject() {
		return nil, fmt.Errorf("simctl device list has no devices object: %w", domain.ErrUpstreamFailure)
	}
	devices := make(map[string][]domain.Device)
	root.ForEach(func(runtime, list gjson.Result) bool {
		key := runtime.String()
		entries := make([]domain.Device, 0)
		list.ForEach(func(_, d gjson.Result) bool {
			udid := d.Get("udid").String()
			if udid == "" {
				return true
			}
			entries = append(entries, domain.Device{
				Name:                 d.Get("name").String(),
				UDID:                 udid,
				IsAvailable:          deviceAvailable(d),
				State:                d.Get("state").String(),
				DeviceTypeIdentifier: d.Get("deviceTypeIdentifier").String(),
				Runtime:              key,
			})
			return true
		})
		devices[key] = entries
		return true
	})
	return devices, nil
}

// deviceAvailable handles both the boolean field and the older
// "availability": "(available)" string.
func deviceAvailable(d gjson.Result) bool {
	if v := d.Get("isAvailable"); v.Exists() {
		return v.Bool()
	}
	return strings.Contains(d.Get("availability").String(), "(available)")
}

// parseRuntimes reads `simctl list runtimes -j` output.
func parseRuntimes(data []byte) ([]domain.Runtime, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("simctl runtime list is not valid JSON: %w", domain.ErrUpstreamFailure)
	}
	list := gjson.GetBytes(data, "runtimes")
	if !list.IsArray() {
		return nil, fmt.Errorf("simctl runtime list has no runtimes array: %w", domain.ErrUpstreamFailure)
	}
	var runtimes []domain.Runtime
	list.ForEach(func(_, r gjson.Result) bool {
		runtimes = append(runtimes, domain.Runtime{
			Identifier:  r.Get("identifier").String(),
			Name:        r.Get("name").String(),
			Version:     r.Get("version").String(),
			IsAvailable: deviceAvailable(r),
		})
		return true
	})
	return runtimes, nil
}

// bootStateFromSimctl maps simctl's state strings.
func bootStateFromSimctl(state string) domain.BootState {
	switch strings.ToLower(state) {
	case "booted":
		return domain.BootStateBooted
	case "shutdown":
		return domain.BootStateShutdown
	case "booting":
		return domain.BootStateBooting
	default:
		return domain.BootStateUnknown
	}
}
