// Package physics provides the closed-loop pitch model.
//
// The plant is a rotational spring-damper driven by an actuator under
// proportional(-integral) control of a step pitch command:
//
//   - [Params]: plant, controller and run constants (SI units, command in degrees)
//   - [Derivative]: the pure state derivative of (theta, q, e_int)
//   - [PitchLoop]: [dynamo.System] adapter for a fixed parameter set
//   - [TheoreticalSteadyState]: closed-form final angle for P and PI loops
//
// All internal angles are radians; only ThetaCmdDeg is in degrees.
//
// # Example
//
//	p := physics.DefaultParams()
//	dx := physics.Derivative(0, dynamo.State{0, 0, 0}, p)
package physics
