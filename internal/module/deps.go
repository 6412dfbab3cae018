package module

import (
	"context"

	"github.com/darcy0x/nethawk/internal/toolkit"
)

// Runner is the slice of the toolkit runner modules invoke tools
// through. Tests substitute a recording fake.
type Runner interface {
	Run(ctx context.Context, spec toolkit.RunSpec) (*toolkit.Invocation, error)
}

// Tools is the availability registry surface modules consult before
// any invocation.
type Tools interface {
	Available(name string) bool
	Describe(name string) toolkit.Descriptor
	Missing(names ...string) []string
}
