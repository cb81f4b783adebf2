package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/vms"
)

type listVMsResponse struct {
	VMs []vms.VM `json:"vms"`
}

// ListVMs lists all domains with their power state.
func (s *ApiService) ListVMs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	list, err := s.VMManager.List(ctx)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if list == nil {
		list = []vms.VM{}
	}
	writeJSON(w, http.StatusOK, listVMsResponse{VMs: list})
}

// GetVM returns one domain's identity and power state.
func (s *ApiService) GetVM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	vmName := chi.URLParam(r, "vmName")

	vm, err := s.VMManager.Get(ctx, vmName)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, vm)
}

// StartVM boots a domain.
func (s *ApiService) StartVM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	vmName := chi.URLParam(r, "vmName")

	if err := s.VMManager.Start(ctx, vmName); err != nil {
		log.WarnContext(ctx, "vm start failed", "vm", vmName, "error", err)
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// StopVM requests a graceful guest shutdown of a domain.
func (s *ApiService) StopVM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	vmName := chi.URLParam(r, "vmName")

	if err := s.VMManager.Stop(ctx, vmName); err != nil {
		log.WarnContext(ctx, "vm stop failed", "vm", vmName, "error", err)
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
