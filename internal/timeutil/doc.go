// Package timeutil provides timers used by the background execution host and
// the call duration counter.
package timeutil
