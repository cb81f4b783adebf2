package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/volumes"
)

type createVolumeRequest struct {
	SizeGB int `json:"size_gb"`
}

type createVolumeResponse struct {
	Status string `json:"status"`
	Name   string `json:"name"`
	Path   string `json:"path"`
}

type listVolumesResponse struct {
	Pool    string           `json:"pool"`
	Volumes []volumes.Volume `json:"volumes"`
}

// poolParam returns the pool from the URL, or the configured default
// pool on routes that omit the segment.
func (s *ApiService) poolParam(r *http.Request) string {
	if pool := chi.URLParam(r, "pool"); pool != "" {
		return pool
	}
	return s.Config.StoragePool
}

// CreateVolume creates a qcow2 volume in a storage pool. An omitted or
// zero size_gb selects the configured default size.
func (s *ApiService) CreateVolume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	pool := s.poolParam(r)
	name := chi.URLParam(r, "name")

	var req createVolumeRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	vol, err := s.VolumeManager.Create(ctx, pool, name, req.SizeGB)
	if err != nil {
		log.WarnContext(ctx, "volume create failed", "pool", pool, "name", name, "error", err)
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createVolumeResponse{Status: "success", Name: vol.Name, Path: vol.Path})
}

// ListVolumes lists the volumes in a storage pool.
func (s *ApiService) ListVolumes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pool := s.poolParam(r)

	vols, err := s.VolumeManager.List(ctx, pool)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	if vols == nil {
		vols = []volumes.Volume{}
	}
	writeJSON(w, http.StatusOK, listVolumesResponse{Pool: pool, Volumes: vols})
}

// DeleteVolume removes a volume from a storage pool.
func (s *ApiService) DeleteVolume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	pool := s.poolParam(r)
	name := chi.URLParam(r, "name")

	if err := s.VolumeManager.Delete(ctx, pool, name); err != nil {
		log.WarnContext(ctx, "volume delete failed", "pool", pool, "name", name, "error", err)
		respondError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
