package disks

import (
	"fmt"

	"libvirt.org/go/libvirtxml"
)

const (
	busVirtio   = "virtio"
	driverQcow2 = "qcow2"
)

// deviceXML builds the <disk> element handed to virsh
// attach-device/detach-device. For detach the element must match the
// attached device, so the bus comes from the inventory snapshot.
func deviceXML(sourceFile, targetDev, bus string) (string, error) {
	if bus == "" {
		bus = busVirtio
	}
	disk := &libvirtxml.DomainDisk{
		Device: "disk",
		Driver: &libvirtxml.DomainDiskDriver{
			Name:  "qemu",
			Type:  driverQcow2,
			Cache: "none",
		},
		Source: &libvirtxml.DomainDiskSource{
			File: &libvirtxml.DomainDiskSourceFile{File: sourceFile},
		},
		Target: &libvirtxml.DomainDiskTarget{
			Dev: targetDev,
			Bus: bus,
		},
	}
	xml, err := disk.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal disk XML: %w", err)
	}
	return xml, nil
}
