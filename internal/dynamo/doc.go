// Package dynamo provides core simulation primitives for dynamical systems.
//
// The package defines the fundamental interfaces and types shared by the
// model, the solver and the drivers:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, t))
//   - [Solver]: numerical integrator producing states on an output grid
//   - [ForEach]: bounded parallel map used by the campaign and sweep drivers
//
// # Errors
//
// Invalid inputs wrap [ErrInvalidParameter]; solver failures wrap
// [ErrIntegration] and usually arrive as a [*SimulationError] carrying the
// step, time and state at which the solver gave up.
//
// # Thread Safety
//
// Nothing in this package holds mutable state. Systems and solvers built on
// it are expected to be safe for concurrent use with distinct inputs.
package dynamo
