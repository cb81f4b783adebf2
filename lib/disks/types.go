package disks

// DiskAttachment is one file-backed block device currently attached to
// a domain. The hypervisor's live configuration is the only source of
// truth; values are never cached across requests.
type DiskAttachment struct {
	TargetDev  string `json:"target_dev"`
	SourceFile string `json:"source_file"`
	Bus        string `json:"bus"`
}

// AttachRequest asks for a qcow2 image to be hot-attached to a domain.
// The target device is chosen by the allocator, not the caller.
type AttachRequest struct {
	VMName    string `json:"vm_name"`
	QCOW2Path string `json:"qcow2_path"`
}

// AttachResult reports the device the image was attached as.
type AttachResult struct {
	TargetDev string `json:"target_dev"`
}

// DetachRequest asks for the named target device to be hot-detached.
type DetachRequest struct {
	VMName    string `json:"vm_name"`
	TargetDev string `json:"target_dev"`
}

// DetachResult distinguishes a performed detach from the idempotent
// no-op where the device was already absent.
type DetachResult struct {
	AlreadyDetached bool `json:"-"`
}
