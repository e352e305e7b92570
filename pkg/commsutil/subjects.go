package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	DefaultActorPrefix  = "actor"
	SubjectListenerBase = "httpserver.listener"
	SubjectChangeEvent  = "httpserver.listener.changed"
)

// Message headers used on provider and actor subjects.
const (
	HeaderOrigin    = "Origin"
	HeaderOperation = "Operation"
	HeaderError     = "Error"
)

// BuildCapabilitySubject builds the control subject for a capability id such
// as "wascc:http_server": cap.wascc.http_server.v1.
func BuildCapabilitySubject(capabilityID string, major uint64) string {
	safe := sanitizeToken(strings.ReplaceAll(capabilityID, ":", "."))
	return fmt.Sprintf("cap.%s.v%d", safe, major)
}

// BuildActorSubject builds the subject a module listens on for an operation.
// Dots inside the module id would split it into several tokens, so they are replaced.
func BuildActorSubject(prefix, module, operation string) string {
	if prefix == "" {
		prefix = DefaultActorPrefix
	}
	return fmt.Sprintf("%s.%s.%s", prefix, sanitizeToken(strings.ReplaceAll(module, ".", "_")), operation)
}

// BuildListenerEventSubject builds the granular subject for a listener event kind.
func BuildListenerEventSubject(kind string) string {
	return SubjectListenerBase + "." + kind
}

// sanitizeToken replaces characters NATS treats as wildcards or separators inside a token.
func sanitizeToken(s string) string {
	return strings.NewReplacer(" ", "_", "*", "_", ">", "_", "\t", "_").Replace(s)
}
