package disks

import (
	"context"
	"fmt"
	"time"

	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/virsh"
)

// Detach hot-detaches the named target device from a running domain.
//
// Detach is idempotent: if the device is already absent the call
// reports AlreadyDetached without issuing any remote command. After a
// detach is issued, absence is confirmed against an absolute deadline
// rather than a retry count, because guest-side unplug duration is
// unbounded in the worst case and callers need a fixed maximum wait.
func (m *manager) Detach(ctx context.Context, req DetachRequest) (*DetachResult, error) {
	log := logger.FromContext(ctx)

	if err := virsh.ValidateName("domain name", req.VMName); err != nil {
		return nil, err
	}
	if err := virsh.ValidateTargetDevice(m.cfg.DevicePrefix, req.TargetDev); err != nil {
		return nil, err
	}

	state, err := m.hv.DomainState(ctx, req.VMName)
	if err != nil {
		return nil, err
	}
	if state != virsh.StateRunning {
		return nil, fmt.Errorf("%w: domain %s is %q, hot-detach requires a running domain", ErrInvalidState, req.VMName, state)
	}

	inv, err := m.readInventory(ctx, req.VMName)
	if err != nil {
		return nil, err
	}
	attached, ok := inv.find(req.TargetDev)
	if !ok {
		log.InfoContext(ctx, "disk already detached", "vm", req.VMName, "target_dev", req.TargetDev)
		return &DetachResult{AlreadyDetached: true}, nil
	}

	log.InfoContext(ctx, "detaching disk", "vm", req.VMName, "target_dev", req.TargetDev, "source", attached.SourceFile)

	// The detach XML must identify the attached device, so it carries
	// the source path and bus read from the inventory.
	xml, err := deviceXML(attached.SourceFile, attached.TargetDev, attached.Bus)
	if err != nil {
		return nil, err
	}
	// As with attach, the issued mutation is shielded from request
	// cancellation; only the confirmation polls below honor it.
	if err := m.hv.DetachDevice(context.WithoutCancel(ctx), req.VMName, xml); err != nil {
		return nil, err
	}

	if err := m.confirmDetached(ctx, req.VMName, req.TargetDev); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "disk detach confirmed", "vm", req.VMName, "target_dev", req.TargetDev)
	return &DetachResult{}, nil
}

// confirmDetached polls the inventory every DetachPollInterval until
// the device disappears or DetachTimeout of wall-clock time elapses.
func (m *manager) confirmDetached(ctx context.Context, vmName, targetDev string) error {
	log := logger.FromContext(ctx)
	deadline := time.Now().Add(m.cfg.DetachTimeout)

	for {
		inv, err := m.readInventory(ctx, vmName)
		if err != nil {
			log.WarnContext(ctx, "inventory read failed during detach confirmation",
				"vm", vmName, "error", err)
		} else if _, ok := inv.find(targetDev); !ok {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: device %s still attached to %s after %s",
				ErrConfirmTimeout, targetDev, vmName, m.cfg.DetachTimeout)
		}

		wait := m.cfg.DetachPollInterval
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: confirmation cancelled: %v", ErrConfirmTimeout, ctx.Err())
		case <-time.After(wait):
		}
	}
}

// interface conformance check for the virsh client
var _ hypervisor = (*virsh.Client)(nil)
