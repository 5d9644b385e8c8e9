// Package orchestrator owns a request's lifecycle end to end: entity
// extraction, confidence gating, validation with one self-correction
// pass, planning, sequential execution with synchronous checkpointing,
// and memory write-back.
//
// The package exposes two surfaces. Orchestrator.ProcessRequest runs one
// request synchronously. Service wraps an Orchestrator with a bounded
// worker pool and a rate limiter for asynchronous submission and
// polling.
package orchestrator
