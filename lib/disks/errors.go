package disks

import "errors"

var (
	// ErrInvalidState is returned when a hot-attach or hot-detach is
	// requested against a domain that is not running.
	ErrInvalidState = errors.New("domain is not running")

	// ErrConfirmTimeout is returned when the hypervisor did not report
	// the expected state within the confirmation budget. The operation
	// may still complete asynchronously; callers must re-query the
	// inventory rather than assume failure.
	ErrConfirmTimeout = errors.New("state change not confirmed within budget")

	// ErrInventoryParse is returned when the domain's disk description
	// cannot be parsed into a consistent inventory. Entries are never
	// silently dropped, since a partial view would corrupt device
	// allocation.
	ErrInventoryParse = errors.New("unparseable domain disk inventory")
)
