// Package disks drives the hot-attach and hot-detach of qcow2-backed
// block devices on domains of the remote hypervisor.
//
// The service is stateless: every operation re-reads the domain's live
// disk inventory, and concurrent requests racing on the same domain
// surface as a conflict from the hypervisor instead of being hidden
// behind in-process locking.
package disks

import (
	"context"
	"time"
)

// hypervisor is the slice of the virsh command surface this package
// needs. *virsh.Client satisfies it.
type hypervisor interface {
	DomainState(ctx context.Context, name string) (string, error)
	DomainXML(ctx context.Context, name string) (string, error)
	AttachDevice(ctx context.Context, domain, deviceXML string) error
	DetachDevice(ctx context.Context, domain, deviceXML string) error
}

// Config carries the orchestration knobs.
type Config struct {
	// DevicePrefix is the virtio target name prefix, normally "vd".
	DevicePrefix string
	// MaxDevices bounds the allocator's candidate namespace.
	MaxDevices int

	// AttachConfirmRetries is the exact number of confirmation polls
	// after an attach is issued, spaced AttachConfirmDelay apart.
	AttachConfirmRetries int
	AttachConfirmDelay   time.Duration

	// DetachTimeout is the absolute confirmation deadline after a
	// detach is issued; the inventory is polled every
	// DetachPollInterval until the device disappears or the deadline
	// passes.
	DetachTimeout      time.Duration
	DetachPollInterval time.Duration
}

// Manager orchestrates disk attach, detach, and inventory reads.
type Manager interface {
	List(ctx context.Context, vmName string) ([]DiskAttachment, error)
	Attach(ctx context.Context, req AttachRequest) (*AttachResult, error)
	Detach(ctx context.Context, req DetachRequest) (*DetachResult, error)
}

type manager struct {
	hv  hypervisor
	cfg Config
}

// NewManager creates a disk manager over the given virsh surface.
func NewManager(hv hypervisor, cfg Config) Manager {
	return &manager{hv: hv, cfg: cfg}
}
