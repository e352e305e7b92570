package commsutil

import "testing"

func TestBuildCapabilitySubject(t *testing.T) {
	tests := []struct {
		name  string
		capID string
		major uint64
		want  string
	}{
		{"http server", "wascc:http_server", 1, "cap.wascc.http_server.v1"},
		{"major zero", "wascc:http_server", 0, "cap.wascc.http_server.v0"},
		{"no namespace", "keyvalue", 2, "cap.keyvalue.v2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCapabilitySubject(tt.capID, tt.major)
			if got != tt.want {
				t.Errorf("BuildCapabilitySubject(%q, %d) = %q, want %q", tt.capID, tt.major, got, tt.want)
			}
		})
	}
}

func TestBuildActorSubject(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		module string
		op     string
		want   string
	}{
		{"simple", "actor", "m1", "HandleRequest", "actor.m1.HandleRequest"},
		{"default prefix", "", "m1", "HandleRequest", "actor.m1.HandleRequest"},
		{"dotted module", "actor", "acme.echo", "HandleRequest", "actor.acme_echo.HandleRequest"},
		{"wildcards", "wasm", "a*b>c", "HandleRequest", "wasm.a_b_c.HandleRequest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildActorSubject(tt.prefix, tt.module, tt.op)
			if got != tt.want {
				t.Errorf("BuildActorSubject(%q, %q, %q) = %q, want %q", tt.prefix, tt.module, tt.op, got, tt.want)
			}
		})
	}
}

func TestBuildListenerEventSubject(t *testing.T) {
	if got := BuildListenerEventSubject("started"); got != "httpserver.listener.started" {
		t.Errorf("BuildListenerEventSubject(started) = %q", got)
	}
}
