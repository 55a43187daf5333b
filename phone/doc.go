// Package phone implements the SIP registration and call lifecycle coordinator.
//
// A [Phone] owns the single SIP account and the single tracked call of the
// application. It drives the SIP engine, keeps the registration state in sync
// with the engine reports, reconnects on network changes and keeps the
// registration alive while the application runs in background.
//
// All coordinator state is owned by a serial [Loop]. Public methods may be
// called from any goroutine; event subscribers run on the loop and may call
// back into the coordinator with the context they receive.
package phone

//go:generate go tool errtrace -w .
