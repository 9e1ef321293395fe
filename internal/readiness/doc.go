// Package readiness blocks until a dependent service answers a probe.
//
// A [Waiter] probes at a fixed interval and gives up once its budget is spent.
// Only failures accepted by the retry classifier are retried; any other
// failure ends the wait immediately. It is used to wait for the MySQL server
// before the installer creates its databases.
package readiness
