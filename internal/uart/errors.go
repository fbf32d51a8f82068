package uart

import "errors"

// Sentinel errors surfaced by the uart operations. All of them abort
// the current operation; none are retried internally. Match with
// errors.Is.
var (
	// ErrAdapterNotFound means no local adapter description contained
	// the requested logical name.
	ErrAdapterNotFound = errors.New("adapter not found")

	// ErrDeviceNotFound means the discovery event stream terminated
	// without the requested address appearing.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrTimeout means the discovery wait expired before the requested
	// address appeared.
	ErrTimeout = errors.New("device discovery timed out")

	// ErrPropertyUnavailable means a peripheral's advertisement
	// snapshot could not be read. During a scan this aborts the whole
	// scan; no partial results are returned.
	ErrPropertyUnavailable = errors.New("advertisement properties unavailable")

	// ErrCharacteristicNotFound means a required characteristic UUID
	// was absent after service discovery.
	ErrCharacteristicNotFound = errors.New("characteristic not found")

	// ErrDecode means a notification payload was not valid UTF-8.
	ErrDecode = errors.New("notification payload is not valid UTF-8")

	// ErrNotConnected means the link never reached the connected state
	// despite the connect call succeeding, after bounded retries.
	ErrNotConnected = errors.New("link did not reach connected state")
)
