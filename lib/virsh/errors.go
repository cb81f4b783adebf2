package virsh

import "errors"

var (
	// ErrInvalidArgument is returned when a value fails allow-list
	// validation before command construction.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDomainNotFound is returned when the hypervisor has no domain
	// with the given name.
	ErrDomainNotFound = errors.New("domain not found")

	// ErrDomainNotRunning is returned when an operation requires a
	// running domain.
	ErrDomainNotRunning = errors.New("domain is not running")

	// ErrDomainAlreadyActive is returned when starting a domain that
	// is already running.
	ErrDomainAlreadyActive = errors.New("domain is already active")

	// ErrDeviceInUse is returned when the hypervisor rejects an attach
	// because the target device or source image is already taken.
	ErrDeviceInUse = errors.New("device already in use")

	// ErrDeviceNotFound is returned when a detach names a device the
	// domain does not have.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrPoolNotFound is returned when the storage pool does not exist
	// or is inactive.
	ErrPoolNotFound = errors.New("storage pool not found")

	// ErrVolumeNotFound is returned when the storage volume does not exist.
	ErrVolumeNotFound = errors.New("storage volume not found")

	// ErrVolumeExists is returned when creating a volume whose name is taken.
	ErrVolumeExists = errors.New("storage volume already exists")
)
