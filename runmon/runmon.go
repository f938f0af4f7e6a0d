// Package runmon is the core of the runmon application: it runs a single
// workload while a sampling tool records CPU and memory usage into a file in
// the background.
//
// Mechanism of Operation
//
// A Session owns exactly two goroutines. The caller's goroutine runs the
// workload to completion, while a Sampler goroutine owns the sampling tool.
// The only state shared between the two is the sampler's StopEvent:
//
//    caller                         sampler goroutine
//    ------                         -----------------
//    Run ──────── go ─────────────► open output, spawn dstat
//        ◄─────── Started ───────── wait for stop event
//    run workload                   │
//    wait one interval              │
//    RequestStop ── stop event ───► SIGTERM, wait one interval,
//                                   SIGKILL if needed, reap
//        ◄─────── done ──────────── return
//
// Once the sampler is started, the stop request and the join are never skipped,
// not even when the workload fails or the session is canceled. A failing
// workload is reported in the session Report; only an unsupported workload or
// a sampler that can't be spawned fail the session itself, and both happen
// before the workload is started.
//
// Workload Kinds
//
// The workload's extension decides how it is launched. Scripts (.py) receive
// their positional arguments followed by their named --key=value arguments.
// Shell scripts (.sh) only receive positional arguments, unless configured
// otherwise.
package runmon
