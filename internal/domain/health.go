package domain

// HealthStatus is the outcome of one doctor check.
type HealthStatus string

const (
	HealthOK    HealthStatus = "ok"
	HealthWarn  HealthStatus = "warn"
	HealthError HealthStatus = "error"
)

// HealthCheck is one doctor finding. Hint, when set, names the command that
// resolves a warning.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Details string       `json:"details"`
	Hint    string       `json:"hint,omitempty"`
}

// HealthReport is the ordered result of a doctor run.
type HealthReport struct {
	Checks []HealthCheck `json:"checks"`
}

// Count returns how many checks ended with status.
func (r HealthReport) Count(status HealthStatus) int {
	n := 0
	for _, c := range r.Checks {
		if c.Status == status {
			n++
		}
	}
	return n
}
