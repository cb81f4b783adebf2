package disks

import (
	"context"
	"fmt"
	"time"

	"github.com/virtgate/virtgate/lib/devname"
	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/virsh"
)

// Attach hot-attaches the requested qcow2 image to a running domain.
//
// Protocol: confirm the domain is running, snapshot the inventory,
// allocate the first free target name, issue the attach, then poll the
// inventory until the device appears with the expected source path.
// The issue step is never retried; issuing attach twice against the
// same device is not idempotent on the hypervisor side. A stale
// snapshot losing the allocation race surfaces as the hypervisor's
// conflict error, not a silent re-allocation.
func (m *manager) Attach(ctx context.Context, req AttachRequest) (*AttachResult, error) {
	log := logger.FromContext(ctx)

	if err := virsh.ValidateName("domain name", req.VMName); err != nil {
		return nil, err
	}
	if err := virsh.ValidateDiskImagePath(req.QCOW2Path); err != nil {
		return nil, err
	}

	state, err := m.hv.DomainState(ctx, req.VMName)
	if err != nil {
		return nil, err
	}
	if state != virsh.StateRunning {
		return nil, fmt.Errorf("%w: domain %s is %q, hot-attach requires a running domain", ErrInvalidState, req.VMName, state)
	}

	inv, err := m.readInventory(ctx, req.VMName)
	if err != nil {
		return nil, err
	}
	if existing, ok := inv.findBySource(req.QCOW2Path); ok {
		return nil, fmt.Errorf("%w: image %s is already attached as %s", virsh.ErrDeviceInUse, req.QCOW2Path, existing.TargetDev)
	}

	targetDev, err := devname.Next(inv.used, m.cfg.DevicePrefix, m.cfg.MaxDevices)
	if err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "attaching disk", "vm", req.VMName, "source", req.QCOW2Path, "target_dev", targetDev)

	xml, err := deviceXML(req.QCOW2Path, targetDev, busVirtio)
	if err != nil {
		return nil, err
	}
	// Once issued, the mutation must run to completion even if the
	// client goes away; only the confirmation polls honor request
	// cancellation. A killed half-applied attach would leave the
	// domain in a state nobody observed.
	if err := m.hv.AttachDevice(context.WithoutCancel(ctx), req.VMName, xml); err != nil {
		return nil, err
	}

	if err := m.confirmAttached(ctx, req, targetDev); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "disk attach confirmed", "vm", req.VMName, "target_dev", targetDev)
	return &AttachResult{TargetDev: targetDev}, nil
}

// confirmAttached polls the inventory exactly AttachConfirmRetries
// times, AttachConfirmDelay apart, for the new device to appear. A
// transient inventory read failure counts as an unconfirmed attempt
// rather than aborting, since the hypervisor may still be settling.
func (m *manager) confirmAttached(ctx context.Context, req AttachRequest, targetDev string) error {
	log := logger.FromContext(ctx)

	for attempt := 1; attempt <= m.cfg.AttachConfirmRetries; attempt++ {
		inv, err := m.readInventory(ctx, req.VMName)
		if err != nil {
			log.WarnContext(ctx, "inventory read failed during attach confirmation",
				"vm", req.VMName, "attempt", attempt, "error", err)
		} else if d, ok := inv.find(targetDev); ok && d.SourceFile == req.QCOW2Path {
			return nil
		}

		if attempt < m.cfg.AttachConfirmRetries {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: confirmation cancelled: %v", ErrConfirmTimeout, ctx.Err())
			case <-time.After(m.cfg.AttachConfirmDelay):
			}
		}
	}
	return fmt.Errorf("%w: disk %s not visible as %s on %s after %d attempts",
		ErrConfirmTimeout, req.QCOW2Path, targetDev, req.VMName, m.cfg.AttachConfirmRetries)
}
