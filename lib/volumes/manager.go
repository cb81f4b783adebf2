// Package volumes manages qcow2 storage volumes in the remote host's
// libvirt storage pools.
package volumes

import (
	"context"
	"errors"
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/virtgate/virtgate/lib/logger"
	"github.com/virtgate/virtgate/lib/virsh"
)

// ErrInvalidSize is returned for a volume size outside the accepted range.
var ErrInvalidSize = errors.New("invalid volume size")

// MaxSizeGB bounds a single volume request.
const MaxSizeGB = 1024

// Volume is one storage volume visible in a pool.
type Volume struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// poolClient is the slice of the virsh command surface this package
// needs. *virsh.Client satisfies it.
type poolClient interface {
	CreateVolume(ctx context.Context, pool, name string, capacityBytes uint64) (string, error)
	DeleteVolume(ctx context.Context, pool, name string) error
	ListVolumes(ctx context.Context, pool string) ([]virsh.VolumeInfo, error)
	RefreshPool(ctx context.Context, pool string) error
}

// Manager handles volume lifecycle operations.
type Manager interface {
	List(ctx context.Context, pool string) ([]Volume, error)
	Create(ctx context.Context, pool, name string, sizeGB int) (*Volume, error)
	Delete(ctx context.Context, pool, name string) error
}

type manager struct {
	hv          poolClient
	defaultSize datasize.ByteSize
}

// NewManager creates a volume manager. defaultSize is used when a
// create request does not specify a size.
func NewManager(hv poolClient, defaultSize datasize.ByteSize) Manager {
	return &manager{hv: hv, defaultSize: defaultSize}
}

// List returns the volumes in pool, refreshing it first so the view
// includes images placed out of band.
func (m *manager) List(ctx context.Context, pool string) ([]Volume, error) {
	if err := m.hv.RefreshPool(ctx, pool); err != nil {
		return nil, err
	}
	infos, err := m.hv.ListVolumes(ctx, pool)
	if err != nil {
		return nil, err
	}
	vols := make([]Volume, 0, len(infos))
	for _, info := range infos {
		vols = append(vols, Volume{Name: info.Name, Path: info.Path})
	}
	return vols, nil
}

// Create allocates a new qcow2 volume in pool. sizeGB of 0 selects the
// configured default size.
func (m *manager) Create(ctx context.Context, pool, name string, sizeGB int) (*Volume, error) {
	log := logger.FromContext(ctx)

	var capacity uint64
	switch {
	case sizeGB == 0:
		capacity = m.defaultSize.Bytes()
	case sizeGB < 0:
		return nil, fmt.Errorf("%w: size must be a positive number of GB", ErrInvalidSize)
	case sizeGB > MaxSizeGB:
		return nil, fmt.Errorf("%w: size must not exceed %d GB", ErrInvalidSize, MaxSizeGB)
	default:
		capacity = uint64(sizeGB) * uint64(datasize.GB)
	}

	log.InfoContext(ctx, "creating volume", "pool", pool, "name", name, "capacity_bytes", capacity)
	path, err := m.hv.CreateVolume(ctx, pool, name, capacity)
	if err != nil {
		return nil, err
	}
	return &Volume{Name: name, Path: path}, nil
}

// Delete removes the named volume from pool.
func (m *manager) Delete(ctx context.Context, pool, name string) error {
	log := logger.FromContext(ctx)
	log.InfoContext(ctx, "deleting volume", "pool", pool, "name", name)
	return m.hv.DeleteVolume(ctx, pool, name)
}
