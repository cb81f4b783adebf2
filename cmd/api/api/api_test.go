package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtgate/virtgate/cmd/api/config"
	"github.com/virtgate/virtgate/lib/devname"
	"github.com/virtgate/virtgate/lib/disks"
	"github.com/virtgate/virtgate/lib/remote"
	"github.com/virtgate/virtgate/lib/virsh"
	"github.com/virtgate/virtgate/lib/vms"
	"github.com/virtgate/virtgate/lib/volumes"
)

type fakeDiskManager struct {
	listRes   []disks.DiskAttachment
	listErr   error
	attachRes *disks.AttachResult
	attachErr error
	detachRes *disks.DetachResult
	detachErr error
}

func (f *fakeDiskManager) List(context.Context, string) ([]disks.DiskAttachment, error) {
	return f.listRes, f.listErr
}

func (f *fakeDiskManager) Attach(context.Context, disks.AttachRequest) (*disks.AttachResult, error) {
	return f.attachRes, f.attachErr
}

func (f *fakeDiskManager) Detach(context.Context, disks.DetachRequest) (*disks.DetachResult, error) {
	return f.detachRes, f.detachErr
}

type fakeVolumeManager struct {
	listRes   []volumes.Volume
	listErr   error
	createRes *volumes.Volume
	createErr error
	deleteErr error
}

func (f *fakeVolumeManager) List(context.Context, string) ([]volumes.Volume, error) {
	return f.listRes, f.listErr
}

func (f *fakeVolumeManager) Create(context.Context, string, string, int) (*volumes.Volume, error) {
	return f.createRes, f.createErr
}

func (f *fakeVolumeManager) Delete(context.Context, string, string) error {
	return f.deleteErr
}

type fakeVMManager struct {
	listRes  []vms.VM
	listErr  error
	getRes   *vms.VM
	getErr   error
	startErr error
	stopErr  error
}

func (f *fakeVMManager) List(context.Context) ([]vms.VM, error)       { return f.listRes, f.listErr }
func (f *fakeVMManager) Get(context.Context, string) (*vms.VM, error) { return f.getRes, f.getErr }
func (f *fakeVMManager) Start(context.Context, string) error          { return f.startErr }
func (f *fakeVMManager) Stop(context.Context, string) error           { return f.stopErr }

func newTestRouter(dm disks.Manager, vm volumes.Manager, vmm vms.Manager) http.Handler {
	svc := New(&config.Config{StoragePool: "tank"}, dm, vm, vmm)

	r := chi.NewRouter()
	r.Get("/health", svc.Health)
	r.Post("/disk/attach", svc.AttachDisk)
	r.Post("/disk/detach", svc.DetachDisk)
	r.Get("/disk/list/{vmName}", svc.ListDisks)
	r.Get("/volume/list", svc.ListVolumes)
	r.Post("/volume/create/{name}", svc.CreateVolume)
	r.Delete("/volume/delete/{name}", svc.DeleteVolume)
	r.Get("/volume/{pool}/list", svc.ListVolumes)
	r.Post("/volume/{pool}/create/{name}", svc.CreateVolume)
	r.Delete("/volume/{pool}/delete/{name}", svc.DeleteVolume)
	r.Get("/vm/list", svc.ListVMs)
	r.Get("/vm/info/{vmName}", svc.GetVM)
	r.Post("/vm/start/{vmName}", svc.StartVM)
	r.Post("/vm/stop/{vmName}", svc.StopVM)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body=%s", rec.Body.String())
	return rec, decoded
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, &fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestAttachDisk(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{attachRes: &disks.AttachResult{TargetDev: "vdb"}},
		&fakeVolumeManager{}, &fakeVMManager{})

	rec, body := doRequest(t, h, http.MethodPost, "/disk/attach",
		`{"vm_name":"web-01","qcow2_path":"/var/lib/libvirt/images/data.qcow2"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "vdb", body["target_dev"])
}

func TestAttachDiskValidation(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, &fakeVMManager{})

	rec, body := doRequest(t, h, http.MethodPost, "/disk/attach", `{"vm_name":"web-01"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["code"])

	rec, body = doRequest(t, h, http.MethodPost, "/disk/attach", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["code"])
}

func TestAttachDiskErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"vm not found", fmt.Errorf("%w: ghost", virsh.ErrDomainNotFound), http.StatusNotFound, "not_found"},
		{"vm not running", fmt.Errorf("%w: domain is shut off", disks.ErrInvalidState), http.StatusConflict, "invalid_state"},
		{"source in use", fmt.Errorf("%w: already attached as vda", virsh.ErrDeviceInUse), http.StatusConflict, "conflict"},
		{"namespace full", fmt.Errorf("%w: all 702 names taken", devname.ErrExhausted), http.StatusConflict, "exhausted"},
		{"confirm timeout", fmt.Errorf("%w: not visible after 5 attempts", disks.ErrConfirmTimeout), http.StatusGatewayTimeout, "timeout"},
		{"invalid path", fmt.Errorf("%w: path must end with .qcow2", virsh.ErrInvalidArgument), http.StatusBadRequest, "invalid_request"},
		{"inventory parse", fmt.Errorf("%w: garbled XML", disks.ErrInventoryParse), http.StatusInternalServerError, "remote_error"},
		{"ssh failure", &remote.ConnectionError{Host: "kvm-01", Err: fmt.Errorf("connection refused")}, http.StatusInternalServerError, "remote_error"},
		{"unknown", fmt.Errorf("something unexpected"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestRouter(&fakeDiskManager{attachErr: tt.err}, &fakeVolumeManager{}, &fakeVMManager{})
			rec, body := doRequest(t, h, http.MethodPost, "/disk/attach",
				`{"vm_name":"web-01","qcow2_path":"/var/lib/libvirt/images/data.qcow2"}`)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestDetachDiskStatuses(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{detachRes: &disks.DetachResult{}},
		&fakeVolumeManager{}, &fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodPost, "/disk/detach",
		`{"vm_name":"web-01","target_dev":"vdb"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	h = newTestRouter(&fakeDiskManager{detachRes: &disks.DetachResult{AlreadyDetached: true}},
		&fakeVolumeManager{}, &fakeVMManager{})
	rec, body = doRequest(t, h, http.MethodPost, "/disk/detach",
		`{"vm_name":"web-01","target_dev":"vdb"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "already_detached", body["status"])
}

func TestListDisksEmptyIsArray(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, &fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodGet, "/disk/list/web-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "web-01", body["vm_name"])
	disksField, ok := body["disks"].([]any)
	require.True(t, ok, "disks must serialize as an array, got %T", body["disks"])
	assert.Empty(t, disksField)
}

func TestCreateVolume(t *testing.T) {
	vol := &volumes.Volume{Name: "data", Path: "/var/lib/libvirt/images/data.qcow2"}
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{createRes: vol}, &fakeVMManager{})

	// Body is optional; no body selects the default size.
	rec, body := doRequest(t, h, http.MethodPost, "/volume/default/create/data", "")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "data", body["name"])
	assert.Equal(t, "/var/lib/libvirt/images/data.qcow2", body["path"])

	rec, _ = doRequest(t, h, http.MethodPost, "/volume/default/create/data", `{"size_gb":20}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateVolumeErrors(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{},
		&fakeVolumeManager{createErr: fmt.Errorf("%w: storage vol 'data' already exists", virsh.ErrVolumeExists)},
		&fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodPost, "/volume/default/create/data", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", body["code"])

	h = newTestRouter(&fakeDiskManager{},
		&fakeVolumeManager{createErr: fmt.Errorf("%w: size must not exceed 1024 GB", volumes.ErrInvalidSize)},
		&fakeVMManager{})
	rec, body = doRequest(t, h, http.MethodPost, "/volume/default/create/data", `{"size_gb":4096}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", body["code"])
}

func TestListVolumesPoolNotFound(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{},
		&fakeVolumeManager{listErr: fmt.Errorf("%w: failed to get pool 'nope'", virsh.ErrPoolNotFound)},
		&fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodGet, "/volume/nope/list", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["code"])
}

func TestVolumeRoutesFallBackToConfiguredPool(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, &fakeVMManager{})

	rec, body := doRequest(t, h, http.MethodGet, "/volume/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tank", body["pool"])

	// An explicit pool segment still wins.
	rec, body = doRequest(t, h, http.MethodGet, "/volume/other/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "other", body["pool"])
}

func TestDeleteVolume(t *testing.T) {
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, &fakeVMManager{})
	rec, body := doRequest(t, h, http.MethodDelete, "/volume/default/delete/data", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
}

func TestVMEndpoints(t *testing.T) {
	vmm := &fakeVMManager{
		listRes: []vms.VM{{Name: "web-01", State: virsh.StateRunning}},
		getRes:  &vms.VM{Name: "web-01", State: virsh.StateRunning},
	}
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, vmm)

	rec, body := doRequest(t, h, http.MethodGet, "/vm/list", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	list, ok := body["vms"].([]any)
	require.True(t, ok)
	assert.Len(t, list, 1)

	rec, body = doRequest(t, h, http.MethodGet, "/vm/info/web-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "web-01", body["name"])
	assert.Equal(t, virsh.StateRunning, body["state"])

	rec, body = doRequest(t, h, http.MethodPost, "/vm/start/web-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])

	rec, body = doRequest(t, h, http.MethodPost, "/vm/stop/web-01", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
}

func TestStartVMAlreadyActive(t *testing.T) {
	vmm := &fakeVMManager{startErr: fmt.Errorf("%w: Domain is already active", virsh.ErrDomainAlreadyActive)}
	h := newTestRouter(&fakeDiskManager{}, &fakeVolumeManager{}, vmm)

	rec, body := doRequest(t, h, http.MethodPost, "/vm/start/web-01", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_state", body["code"])
}
