package reconcile

import "errors"

var (
	// ErrSyncInFlight is returned when a pass is requested while another is
	// still running.
	ErrSyncInFlight = errors.New("sync already in flight")
	// ErrOffline is returned when a pass is requested without network.
	ErrOffline = errors.New("offline")
)
