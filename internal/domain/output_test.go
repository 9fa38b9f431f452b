package domain

import "testing"

func TestScanOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		errors   int
		warnings int
	}{
		{name: "empty", output: ""},
		{name: "clean build", output: "Compiling App.swift\n** BUILD SUCCEEDED **"},
		{
			name:     "compiler diagnostics",
			output:   "/src/App.swift:3:1: error: cannot find 'x' in scope\n/src/App.swift:9:2: warning: unused variable\n/src/Other.swift:1:1: warning: deprecated",
			errors:   1,
			warnings: 2,
		},
		{name: "case insensitive", output: "ERROR: signing failed\nWarning: slow", errors: 1, warnings: 1},
		{name: "error wins on mixed line", output: "warning: treated as error: yes", errors: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScanOutput(tt.output)
			if got.ErrorCount != tt.errors || got.WarningCount != tt.warnings {
				t.Fatalf("ScanOutput() = %d errors, %d warnings; want %d, %d", got.ErrorCount, got.WarningCount, tt.errors, tt.warnings)
			}
			if got.SizeBytes != len(tt.output) {
				t.Fatalf("SizeBytes = %d, want %d", got.SizeBytes, len(tt.output))
			}
		})
	}
}
