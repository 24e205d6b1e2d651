package server

// DataAccessor is the embedding application's side of the data contract.
// The server never owns application data; it reads and writes named values
// through this capability, leaving serialization to the application.
type DataAccessor interface {
	// Get returns the current value for the named data item, or false if
	// the name is unknown.
	Get(name string) (any, bool)

	// Set stores a value for the named data item and reports whether the
	// application accepted it.
	Set(name string, value any) bool
}

// Notifier consumes popped update records and turns them into
// protocol-level change signals toward remote clients. It is the GATT /
// object-broker layer's side of the contract.
//
// A plain error is logged and the run loop continues; wrap the error in
// FatalError to stop the server with a degraded health state.
type Notifier interface {
	Notify(rec Record, value any) error
}

// FatalError marks a notifier failure as unrecoverable for the run loop.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return "fatal: " + e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }
