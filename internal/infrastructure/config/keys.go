package config

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/go-cmp/cmp"

	"github.com/ericvoltolin/xc-mcp/internal/domain"
)

// Key is one settable entry of config.yaml, addressed by its dotted yaml path.
type Key struct {
	Name        string
	Description string

	get func(domain.Config) string
	set func(*domain.Config, string) error
}

// Value returns the effective value of k in cfg. Durations and sizes are
// rendered in their parsed form so equivalent spellings compare equal.
func (k Key) Value(cfg domain.Config) string {
	return k.get(cfg)
}

// Apply parses raw and stores it in cfg. cfg is left untouched on error.
func (k Key) Apply(cfg *domain.Config, raw string) error {
	next := *cfg
	if err := k.set(&next, strings.TrimSpace(raw)); err != nil {
		return err
	}
	*cfg = next
	return nil
}

// Reset restores the default value of k in cfg.
func (k Key) Reset(cfg *domain.Config) error {
	return k.Apply(cfg, k.get(DefaultConfig()))
}

var keys = []Key{
	durationKey("cache.device_max_age", "How long a simulator enumeration is trusted",
		func(c *domain.Config) *string { return &c.Cache.DeviceMaxAge },
		(*domain.Config).DeviceMaxAge),
	durationKey("cache.project_max_age", "Reported project cache max age (descriptors follow file mtimes)",
		func(c *domain.Config) *string { return &c.Cache.ProjectMaxAge },
		(*domain.Config).ProjectMaxAge),
	durationKey("cache.dependency_ttl", "How long a lock file snapshot is trusted",
		func(c *domain.Config) *string { return &c.Cache.DependencyTTL },
		(*domain.Config).DependencyTTL),
	{
		Name:        "persistence.enabled",
		Description: "Restore and save cache state between runs",
		get:         func(c domain.Config) string { return strconv.FormatBool(c.Persistence.Enabled) },
		set: func(c *domain.Config, raw string) error {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				return domain.Invalidf("persistence.enabled: want true or false, got %q", raw)
			}
			c.Persistence.Enabled = v
			return nil
		},
	},
	{
		Name:        "persistence.dir",
		Description: "State directory; empty tries the default locations",
		get:         func(c domain.Config) string { return c.Persistence.Dir },
		set: func(c *domain.Config, raw string) error {
			c.Persistence.Dir = raw
			return nil
		},
	},
	countKey("execution.timeout", "Seconds before xcrun or xcodebuild is killed",
		func(c *domain.Config) *int { return &c.Execution.TimeoutSeconds }),
	{
		Name:        "execution.max_buffer_bytes",
		Description: "Cap on captured output per command (accepts sizes like 16MiB)",
		get: func(c domain.Config) string {
			return humanize.IBytes(uint64(c.ExecOptions().MaxBufferBytes))
		},
		set: func(c *domain.Config, raw string) error {
			n, err := humanize.ParseBytes(raw)
			if err != nil {
				return domain.Invalidf("execution.max_buffer_bytes: %v", err)
			}
			if n == 0 || n > uint64(int(^uint(0)>>1)) {
				return domain.Invalidf("execution.max_buffer_bytes must be positive, got %q", raw)
			}
			c.Execution.MaxBufferBytes = int(n)
			return nil
		},
	},
	enumKey("history.backend", "Durable build archive format",
		func(c *domain.Config) *string { return &c.History.Backend },
		domain.HistoryBackendSQLite, domain.HistoryBackendJSONL),
	countKey("history.retention_days", "Days archived builds are kept; 0 keeps everything",
		func(c *domain.Config) *int { return &c.History.RetentionDays }),
	enumKey("logging.level", "Minimum level written to stderr",
		func(c *domain.Config) *string { return &c.Logging.Level },
		"debug", "info", "warn", "error", "fatal"),
}

// Keys lists every settable key in display order.
func Keys() []Key {
	return append([]Key(nil), keys...)
}

// LookupKey finds a key by its dotted name.
func LookupKey(name string) (Key, error) {
	for _, k := range keys {
		if k.Name == name {
			return k, nil
		}
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.Name
	}
	return Key{}, domain.Invalidf("unknown key %q (known: %s)", name, strings.Join(names, ", "))
}

// Effective maps every key to its effective value in cfg.
func Effective(cfg domain.Config) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		out[k.Name] = k.get(cfg)
	}
	return out
}

// Change is one key whose effective value differs between two configs.
type Change struct {
	Key  string
	From string
	To   string
}

// Diff lists the keys whose effective values differ, in key order.
func Diff(from, to domain.Config) []Change {
	var r changeReporter
	cmp.Equal(Effective(from), Effective(to), cmp.Reporter(&r))

	order := make(map[string]int, len(keys))
	for i, k := range keys {
		order[k.Name] = i
	}
	sort.Slice(r.changes, func(i, j int) bool {
		return order[r.changes[i].Key] < order[r.changes[j].Key]
	})
	return r.changes
}

// changeReporter collects unequal map entries from cmp.Equal.
type changeReporter struct {
	path    cmp.Path
	changes []Change
}

func (r *changeReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *changeReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

func (r *changeReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	step, ok := r.path.Last().(cmp.MapIndex)
	if !ok {
		return
	}
	vx, vy := step.Values()
	r.changes = append(r.changes, Change{
		Key:  step.Key().String(),
		From: stringValue(vx),
		To:   stringValue(vy),
	})
}

func stringValue(v reflect.Value) string {
	if !v.IsValid() {
		return ""
	}
	return fmt.Sprint(v.Interface())
}

func durationKey(name, desc string, field func(*domain.Config) *string, parse func(*domain.Config) (time.Duration, error)) Key {
	return Key{
		Name:        name,
		Description: desc,
		get: func(c domain.Config) string {
			d, err := parse(&c)
			if err != nil {
				return *field(&c)
			}
			return d.String()
		},
		set: func(c *domain.Config, raw string) error {
			if raw == "" {
				return domain.Invalidf("%s: a duration such as 30m is required", name)
			}
			*field(c) = raw
			d, err := parse(c)
			if err != nil {
				return err
			}
			*field(c) = d.String()
			return nil
		},
	}
}

func countKey(name, desc string, field func(*domain.Config) *int) Key {
	return Key{
		Name:        name,
		Description: desc,
		get:         func(c domain.Config) string { return strconv.Itoa(*field(&c)) },
		set: func(c *domain.Config, raw string) error {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return domain.Invalidf("%s: want a whole number >= 0, got %q", name, raw)
			}
			*field(c) = n
			return nil
		},
	}
}

func enumKey(name, desc string, field func(*domain.Config) *string, allowed ...string) Key {
	return Key{
		Name:        name,
		Description: fmt.Sprintf("%s (%s)", desc, strings.Join(allowed, "|")),
		get:         func(c domain.Config) string { return strings.ToLower(*field(&c)) },
		set: func(c *domain.Config, raw string) error {
			v := strings.ToLower(raw)
			for _, a := range allowed {
				if v == a {
					*field(c) = v
					return nil
				}
			}
			return domain.Invalidf("%s: want one of %s, got %q", name, strings.Join(allowed, ", "), raw)
		},
	}
}
