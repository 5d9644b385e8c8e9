// Package confidence provides the statistical gate that decides whether a
// pipeline stage is trustworthy based on its accumulated outcome history.
//
// The Gate keeps a success/total counter pair per action type and computes a
// Wilson score interval over the observed success proportion. The one-sided
// lower bound is compared against a caller-supplied target level: a stage is
// high-confidence only when even the conservative bound clears the target.
//
// The Gate is an injected component, not a singleton. Construct one per
// process (or per test) and share it by reference; RegisterOutcome and
// Evaluate are safe for concurrent use.
//
// An action type with no recorded outcomes evaluates as fully confident.
// The gate must never become a point of failure for the pipeline, so absence
// of evidence degrades to "proceed", not "block".
package confidence
