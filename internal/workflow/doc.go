// Package workflow orchestrates pipeline steps for tasks.
//
// The Manager accepts step triggers, runs synchronous steps inline, and hands
// long-running steps to a bounded worker pool. RunAll sequences the whole
// pipeline in dependency order and waits for queued steps by polling the task
// repository. Heartbeats are written for every running step, and the watchdog
// fails steps whose heartbeat lapses; steps left in flight by a previous
// process are failed at Start.
package workflow
