package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/virtgate/virtgate/cmd/api/config"
	"github.com/virtgate/virtgate/lib/devname"
	"github.com/virtgate/virtgate/lib/disks"
	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/remote"
	"github.com/virtgate/virtgate/lib/virsh"
	"github.com/virtgate/virtgate/lib/vms"
	"github.com/virtgate/virtgate/lib/volumes"
)

// ApiService carries the managers the handlers dispatch into.
type ApiService struct {
	Config        *config.Config
	DiskManager   disks.Manager
	VolumeManager volumes.Manager
	VMManager     vms.Manager
}

// New creates a new ApiService
func New(
	cfg *config.Config,
	diskManager disks.Manager,
	volumeManager volumes.Manager,
	vmManager vms.Manager,
) *ApiService {
	return &ApiService{
		Config:        cfg,
		DiskManager:   diskManager,
		VolumeManager: volumeManager,
		VMManager:     vmManager,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError maps an orchestration error onto its stable HTTP status
// and error code. Automated callers branch on the code field, never on
// message text.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	log := logger.FromContext(ctx)

	switch {
	case errors.Is(err, virsh.ErrInvalidArgument), errors.Is(err, volumes.ErrInvalidSize):
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: err.Error()})
	case errors.Is(err, virsh.ErrDomainNotFound),
		errors.Is(err, virsh.ErrDeviceNotFound),
		errors.Is(err, virsh.ErrPoolNotFound),
		errors.Is(err, virsh.ErrVolumeNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: err.Error()})
	case errors.Is(err, virsh.ErrDeviceInUse), errors.Is(err, virsh.ErrVolumeExists):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "conflict", Message: err.Error()})
	case errors.Is(err, disks.ErrInvalidState),
		errors.Is(err, virsh.ErrDomainNotRunning),
		errors.Is(err, virsh.ErrDomainAlreadyActive):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "invalid_state", Message: err.Error()})
	case errors.Is(err, devname.ErrExhausted):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "exhausted", Message: err.Error()})
	case errors.Is(err, disks.ErrConfirmTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Code: "timeout", Message: err.Error()})
	case errors.Is(err, disks.ErrInventoryParse), isTransportError(err):
		log.ErrorContext(ctx, "remote operation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "remote_error", Message: "remote operation failed"})
	default:
		log.ErrorContext(ctx, "request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: "internal error"})
	}
}

func isTransportError(err error) bool {
	var connErr *remote.ConnectionError
	var cmdErr *remote.CommandError
	return errors.As(err, &connErr) || errors.As(err, &cmdErr)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Message: "malformed request body"})
		return false
	}
	return true
}
