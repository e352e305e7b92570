package listener

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/morezero/httpserver-provider/pkg/codec"
)

// Configuration keys recognized in CapabilityConfiguration.Values.
const (
	KeyPort = "PORT"
	KeyHost = "HOST"

	DefaultPort = "8080"
	DefaultHost = "0.0.0.0"
)

// ErrInvalidConfiguration is returned for bind configuration that cannot be used.
var ErrInvalidConfiguration = errors.New("listener: invalid configuration")

// BindConfig is the validated form of a module's capability configuration.
type BindConfig struct {
	Module string
	Host   string
	Port   int
}

// Addr returns HOST:PORT.
func (c BindConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ParseBindConfig applies defaults to cfg and validates it. Unrecognized keys are ignored.
// The module id is kept exactly as sent so bind and remove key the same listener.
func ParseBindConfig(cfg *codec.CapabilityConfiguration) (BindConfig, error) {
	if cfg == nil {
		return BindConfig{}, fmt.Errorf("%w: missing configuration", ErrInvalidConfiguration)
	}
	if strings.TrimSpace(cfg.Module) == "" {
		return BindConfig{}, fmt.Errorf("%w: module is required", ErrInvalidConfiguration)
	}

	host := DefaultHost
	if v, ok := cfg.Values[KeyHost]; ok {
		host = strings.TrimSpace(v)
	}
	if strings.ContainsAny(host, " /") {
		return BindConfig{}, fmt.Errorf("%w: invalid HOST %q", ErrInvalidConfiguration, host)
	}

	portStr := DefaultPort
	if v, ok := cfg.Values[KeyPort]; ok {
		portStr = strings.TrimSpace(v)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return BindConfig{}, fmt.Errorf("%w: invalid PORT %q", ErrInvalidConfiguration, portStr)
	}

	return BindConfig{Module: cfg.Module, Host: host, Port: port}, nil
}
