package health

import "context"

// CheckFunc adapts a probe function into a Checker.
type CheckFunc struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

// NewCheck builds a checker from a probe function.
func NewCheck(name string, critical bool, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, critical: critical, fn: fn}
}

func (c *CheckFunc) Name() string                    { return c.name }
func (c *CheckFunc) Critical() bool                  { return c.critical }
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }
