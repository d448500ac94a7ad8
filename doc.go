// Package taskengine implements task execution and time tracking for
// the vehicle-service console: the task lifecycle state machine
// (not started → in progress → paused → completed), per-second
// elapsed-time accumulation while a task is active, immutable time-log
// entries per work session, and escalation to an administrator when a
// customer does not sign off on a paused task within the approval
// window.
//
// The engine is a library; persistence, notification delivery and the
// UI consume it through the interfaces in service/dao,
// service/notification and service/messaging.
package taskengine
