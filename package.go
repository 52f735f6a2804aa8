// Package asyncrw provides an asynchronous reader-writer lock. Any
// number of read operations may run in parallel, while a write
// operation runs in isolation from every other reader and writer.
// Callers hand the lock a unit of work instead of holding it
// explicitly; the lock admits the work, runs it and releases
// afterwards, on every exit path.
//
// Key components:
//
//   - RWLock: The lock itself. Admission is strictly FIFO once
//     anything is waiting, with consecutive queued readers admitted
//     together. A queued writer is never bypassed.
//
//   - Read, Write, ReadValue, WriteValue: Blocking entry points that
//     return the work's result or error.
//
//   - ReadAsync, WriteAsync, GoRead, GoWrite: Entry points that decide
//     admission in the caller and return a Future immediately.
//
//   - Scheduler: The resume context a queued request is woken on.
//     Background, Inline and Loop are provided; WithScheduler attaches
//     one to a context.
//
// Acquisition is not reentrant. Work must not request the same lock
// again: a writer nested in anything, or a reader nested behind a
// queued writer, waits on itself forever.
package asyncrw
