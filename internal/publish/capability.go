package publish

import "sync/atomic"

// Capability records whether the platform accepts embedded-application
// controls. It starts optimistic and can only be downgraded; there is no
// automatic re-upgrade for the life of the process.
type Capability struct {
	rejected atomic.Bool
}

// NewCapability returns a capability that assumes web-app support.
func NewCapability() *Capability {
	return &Capability{}
}

// WebAppSupported reports whether web-app controls should still be tried.
func (c *Capability) WebAppSupported() bool {
	return !c.rejected.Load()
}

// Downgrade switches to plain link controls. It reports whether this call
// performed the switch.
func (c *Capability) Downgrade() bool {
	return c.rejected.CompareAndSwap(false, true)
}
