package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/virtgate/virtgate/lib/disks"
	"github.com/virtgate/virtgate/lib/logger"
)

type attachDiskResponse struct {
	Status    string `json:"status"`
	TargetDev string `json:"target_dev"`
}

type detachDiskResponse struct {
	Status string `json:"status"`
}

type listDisksResponse struct {
	VMName string                 `json:"vm_name"`
	Disks  []disks.DiskAttachment `json:"disks"`
}

// AttachDisk hot-attaches a qcow2 image to a running VM.
func (s *ApiService) AttachDisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req disks.AttachRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.VMName == "" || req.QCOW2Path == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "vm_name and qcow2_path are required"})
		return
	}

	res, err := s.DiskManager.Attach(ctx, req)
	if err != nil {
		log.WarnContext(ctx, "disk attach failed", "vm", req.VMName, "error", err)
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, attachDiskResponse{Status: "success", TargetDev: res.TargetDev})
}

// DetachDisk hot-detaches a target device from a running VM.
// Detaching an already-absent device succeeds with a distinct status.
func (s *ApiService) DetachDisk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req disks.DetachRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.VMName == "" || req.TargetDev == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "vm_name and target_dev are required"})
		return
	}

	res, err := s.DiskManager.Detach(ctx, req)
	if err != nil {
		log.WarnContext(ctx, "disk detach failed", "vm", req.VMName, "target_dev", req.TargetDev, "error", err)
		respondError(ctx, w, err)
		return
	}
	status := lo.Ternary(res.AlreadyDetached, "already_detached", "success")
	writeJSON(w, http.StatusOK, detachDiskResponse{Status: status})
}

// ListDisks returns the file-backed disks currently attached to a VM.
func (s *ApiService) ListDisks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vmName := chi.URLParam(r, "vmName")

	attachments, err := s.DiskManager.List(ctx, vmName)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if attachments == nil {
		attachments = []disks.DiskAttachment{}
	}
	writeJSON(w, http.StatusOK, listDisksResponse{VMName: vmName, Disks: attachments})
}
