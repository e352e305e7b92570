// Package bootstrap loads static module bindings applied when the provider starts.
package bootstrap

import "github.com/morezero/httpserver-provider/pkg/codec"

// BootstrapBinding is one module binding from the bootstrap file.
type BootstrapBinding struct {
	Module string            `json:"module"`
	Values map[string]string `json:"values,omitempty"`
	// Required makes a failure to bind this module fatal at startup.
	Required bool `json:"required,omitempty"`
}

// Configuration converts b to the form the provider binds.
func (b BootstrapBinding) Configuration() *codec.CapabilityConfiguration {
	values := make(map[string]string, len(b.Values))
	for k, v := range b.Values {
		values[k] = v
	}
	return &codec.CapabilityConfiguration{Module: b.Module, Values: values}
}

// BootstrapConfig is the root of the bootstrap file.
type BootstrapConfig struct {
	Name        string             `json:"name,omitempty"`
	Description string             `json:"description,omitempty"`
	Bindings    []BootstrapBinding `json:"bindings"`
}

// Modules returns the module ids in file order.
func (c *BootstrapConfig) Modules() []string {
	out := make([]string, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		out = append(out, b.Module)
	}
	return out
}
