package engine

import (
	"math/rand"
	"testing"

	"fieldnav/internal/domain/navigation"
)

func TestStepCursorStaysInBounds(t *testing.T) {
	route := threeSteps("a")
	var c StepCursor
	c.ResetTo(&route)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 1000; i++ {
		if rng.Intn(2) == 0 {
			c.Next()
		} else {
			c.Previous()
		}
		if c.Index() < 0 || c.Index() >= c.Len() {
			t.Fatalf("step %d: index %d out of [0,%d)", i, c.Index(), c.Len())
		}
	}
}

func TestStepCursorClamps(t *testing.T) {
	route := threeSteps("a")
	var c StepCursor
	c.ResetTo(&route)

	if c.Previous() {
		t.Fatal("Previous moved before the first step")
	}
	c.Next()
	c.Next()
	if c.Next() {
		t.Fatal("Next moved past the last step")
	}
	if st, ok := c.Current(); !ok || st.InstructionText != "a: arrive" {
		t.Fatalf("Current = %+v, %v", st, ok)
	}

	other := navigation.Route{Steps: route.Steps[:1]}
	c.ResetTo(&other)
	if c.Index() != 0 || c.Len() != 1 {
		t.Fatalf("after ResetTo: index %d len %d", c.Index(), c.Len())
	}
}

func TestStepCursorWithoutRoute(t *testing.T) {
	var c StepCursor
	if c.Next() || c.Previous() {
		t.Fatal("cursor without a route moved")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("Current reported a step without a route")
	}
}
