// Package scene defines the contracts between the telemetry pipeline and the
// renderer: the Sink that places visual objects, the CoordinateTransform that
// maps sender-local poses into the aligned reference space, and the pose math
// both sides share.
//
// A Sink is only ever called from the render loop. Recorder is an in-memory
// Sink that mirrors the scene for headless runs, the monitor and tests.
package scene
