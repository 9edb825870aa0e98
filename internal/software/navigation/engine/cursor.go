package engine

import "fieldnav/internal/domain/navigation"

// StepCursor tracks the current step of a route, clamped to its bounds.
type StepCursor struct {
	route *navigation.Route
	index int
}

// ResetTo points the cursor at the first step of r.
func (c *StepCursor) ResetTo(r *navigation.Route) {
	c.route = r
	c.index = 0
}

// Next advances one step; a no-op on the last step.
func (c *StepCursor) Next() bool {
	if c.index+1 >= c.Len() {
		return false
	}
	c.index++
	return true
}

// Previous goes back one step; a no-op on the first step.
func (c *StepCursor) Previous() bool {
	if c.index == 0 || c.Len() == 0 {
		return false
	}
	c.index--
	return true
}

func (c *StepCursor) Index() int { return c.index }

func (c *StepCursor) Len() int {
	if c.route == nil {
		return 0
	}
	return len(c.route.Steps)
}

// Current returns the step under the cursor.
func (c *StepCursor) Current() (navigation.RouteStep, bool) {
	if c.Len() == 0 {
		return navigation.RouteStep{}, false
	}
	return c.route.Steps[c.index], true
}
