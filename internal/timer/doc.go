// Package timer runs persistent background jobs.
//
// A Job pairs a cron or fixed-interval schedule with an action and reports every
// trigger against its schedule_job row: one schedule_status_log row per run and one
// schedule_event_log row per lifecycle notification. Rows that are Offline stay
// scheduled but leave no trace. JobScheduler handles share one robfig/cron loop;
// the registers load System and User rows at boot and Lifecycle runs that off the
// startup path.
package timer
