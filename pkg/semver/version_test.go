package semver

import "testing"

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input     string
		wantMajor uint64
		wantErr   bool
	}{
		{"1.0.0", 1, false},
		{"v2.3.4", 2, false},
		{" 3.0.0-beta.1 ", 3, false},
		{"0.9.1+build.7", 0, false},
		{"1", 0, true},
		{"1.2", 0, true},
		{"", 0, true},
		{"latest", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			sv, err := ParseVersion(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("semver:version_test - expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("semver:version_test - unexpected error: %v", err)
			}
			if sv.Major() != tt.wantMajor {
				t.Errorf("semver:version_test - major = %d, want %d", sv.Major(), tt.wantMajor)
			}
		})
	}
}

func TestControlSubject(t *testing.T) {
	got, err := ControlSubject("wascc:http_server", "1.4.0")
	if err != nil {
		t.Fatalf("semver:version_test - unexpected error: %v", err)
	}
	if got != "cap.wascc.http_server.v1" {
		t.Errorf("semver:version_test - got %s, want cap.wascc.http_server.v1", got)
	}

	got, err = ControlSubject("wascc:http_server", "2.0.0-rc.1")
	if err != nil || got != "cap.wascc.http_server.v2" {
		t.Errorf("semver:version_test - got %s (%v), want cap.wascc.http_server.v2", got, err)
	}

	if _, err := ControlSubject("wascc:http_server", "two"); err == nil {
		t.Error("semver:version_test - expected error for invalid version")
	}
}
