package disks

import (
	"context"
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// inventory is one point-in-time snapshot of a domain's disks.
type inventory struct {
	// disks holds the file-backed attachments, in domain XML order.
	disks []DiskAttachment
	// used holds every target name on the domain regardless of bus or
	// backing type, so allocation never collides with non-file or
	// non-virtio devices.
	used map[string]struct{}
}

func (inv *inventory) find(targetDev string) (DiskAttachment, bool) {
	for _, d := range inv.disks {
		if d.TargetDev == targetDev {
			return d, true
		}
	}
	return DiskAttachment{}, false
}

func (inv *inventory) findBySource(sourceFile string) (DiskAttachment, bool) {
	for _, d := range inv.disks {
		if d.SourceFile == sourceFile {
			return d, true
		}
	}
	return DiskAttachment{}, false
}

// List returns the domain's current file-backed disk attachments.
func (m *manager) List(ctx context.Context, vmName string) ([]DiskAttachment, error) {
	inv, err := m.readInventory(ctx, vmName)
	if err != nil {
		return nil, err
	}
	return inv.disks, nil
}

func (m *manager) readInventory(ctx context.Context, vmName string) (*inventory, error) {
	xmlDesc, err := m.hv.DomainXML(ctx, vmName)
	if err != nil {
		return nil, err
	}
	return parseInventory(xmlDesc)
}

// parseInventory extracts the disk view from a domain XML description.
// Parsing is strict: a file-backed disk entry missing its target
// device or source path makes the whole snapshot an error, because a
// dropped entry would hand the allocator a false uniqueness view.
func parseInventory(xmlDesc string) (*inventory, error) {
	var dom libvirtxml.Domain
	if err := dom.Unmarshal(xmlDesc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInventoryParse, err)
	}

	inv := &inventory{used: make(map[string]struct{})}
	if dom.Devices == nil {
		return inv, nil
	}

	for _, d := range dom.Devices.Disks {
		if d.Target != nil && d.Target.Dev != "" {
			inv.used[d.Target.Dev] = struct{}{}
		}

		if d.Source == nil || d.Source.File == nil {
			// Non-file backing (volume, block, network) or an empty
			// cdrom tray. Its target name is still reserved above.
			continue
		}
		if d.Source.File.File == "" || d.Target == nil || d.Target.Dev == "" {
			return nil, fmt.Errorf("%w: disk entry missing target device or source path", ErrInventoryParse)
		}
		inv.disks = append(inv.disks, DiskAttachment{
			TargetDev:  d.Target.Dev,
			SourceFile: d.Source.File.File,
			Bus:        d.Target.Bus,
		})
	}
	return inv, nil
}
