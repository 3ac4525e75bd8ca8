// Package lockfile provides non-blocking advisory file locking on top of
// POSIX flock.
//
// Locks are per open file description, cooperative, and held only for the
// duration of one operation. Acquisition never blocks: a contended lock
// surfaces immediately as ErrContended so callers can fail fast instead of
// stalling.
package lockfile
