// Package jobs runs exports in the background.
//
// A Tracker persists submissions as CREATED processes, refusing a second
// in-flight export of the same type for one requester. A Runner is a worker
// pool that claims CREATED processes with a compare-and-set transition to
// PROCESSING, executes them and records DONE or ERROR. Failures never reach
// the submitter; they are stored on the process and reported through the
// notifier.
//
// Two sweepers run on cron schedules through Scheduler: StuckSweeper fails
// processes stuck in PROCESSING and RetentionSweeper deletes expired
// per-user and report archives.
package jobs
