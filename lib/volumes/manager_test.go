package volumes

import (
	"context"
	"fmt"
	"testing"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtgate/virtgate/lib/virsh"
)

type fakePoolClient struct {
	vols      []virsh.VolumeInfo
	createErr error
	deleteErr error

	refreshed    []string
	createdBytes uint64
	createdName  string
	deletedName  string
}

func (f *fakePoolClient) CreateVolume(_ context.Context, pool, name string, capacityBytes uint64) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.createdName = name
	f.createdBytes = capacityBytes
	return "/var/lib/libvirt/images/" + name + ".qcow2", nil
}

func (f *fakePoolClient) DeleteVolume(_ context.Context, pool, name string) error {
	f.deletedName = name
	return f.deleteErr
}

func (f *fakePoolClient) ListVolumes(_ context.Context, pool string) ([]virsh.VolumeInfo, error) {
	return f.vols, nil
}

func (f *fakePoolClient) RefreshPool(_ context.Context, pool string) error {
	f.refreshed = append(f.refreshed, pool)
	return nil
}

func TestListRefreshesPoolFirst(t *testing.T) {
	hv := &fakePoolClient{vols: []virsh.VolumeInfo{
		{Name: "data", Path: "/var/lib/libvirt/images/data.qcow2"},
	}}
	m := NewManager(hv, 1*datasize.GB)

	vols, err := m.List(context.Background(), "default")
	require.NoError(t, err)
	assert.Equal(t, []string{"default"}, hv.refreshed)
	assert.Equal(t, []Volume{{Name: "data", Path: "/var/lib/libvirt/images/data.qcow2"}}, vols)
}

func TestListEmptyPool(t *testing.T) {
	m := NewManager(&fakePoolClient{}, 1*datasize.GB)
	vols, err := m.List(context.Background(), "default")
	require.NoError(t, err)
	assert.NotNil(t, vols)
	assert.Empty(t, vols)
}

func TestCreateUsesDefaultSize(t *testing.T) {
	hv := &fakePoolClient{}
	m := NewManager(hv, 5*datasize.GB)

	vol, err := m.Create(context.Background(), "default", "data", 0)
	require.NoError(t, err)
	assert.Equal(t, (5 * datasize.GB).Bytes(), hv.createdBytes)
	assert.Equal(t, "data", vol.Name)
	assert.Equal(t, "/var/lib/libvirt/images/data.qcow2", vol.Path)
}

func TestCreateExplicitSize(t *testing.T) {
	hv := &fakePoolClient{}
	m := NewManager(hv, 1*datasize.GB)

	_, err := m.Create(context.Background(), "default", "data", 20)
	require.NoError(t, err)
	assert.Equal(t, (20 * datasize.GB).Bytes(), hv.createdBytes)
}

func TestCreateSizeBounds(t *testing.T) {
	hv := &fakePoolClient{}
	m := NewManager(hv, 1*datasize.GB)

	_, err := m.Create(context.Background(), "default", "data", -1)
	require.ErrorIs(t, err, ErrInvalidSize)

	_, err = m.Create(context.Background(), "default", "data", MaxSizeGB+1)
	require.ErrorIs(t, err, ErrInvalidSize)
	assert.Empty(t, hv.createdName, "no remote command for rejected sizes")

	_, err = m.Create(context.Background(), "default", "data", MaxSizeGB)
	require.NoError(t, err)
}

func TestCreateConflictPropagates(t *testing.T) {
	hv := &fakePoolClient{createErr: fmt.Errorf("%w: storage vol 'data' already exists", virsh.ErrVolumeExists)}
	m := NewManager(hv, 1*datasize.GB)

	_, err := m.Create(context.Background(), "default", "data", 0)
	require.ErrorIs(t, err, virsh.ErrVolumeExists)
}

func TestDelete(t *testing.T) {
	hv := &fakePoolClient{}
	m := NewManager(hv, 1*datasize.GB)

	require.NoError(t, m.Delete(context.Background(), "default", "data"))
	assert.Equal(t, "data", hv.deletedName)

	hv.deleteErr = fmt.Errorf("%w: failed to get vol 'data'", virsh.ErrVolumeNotFound)
	assert.ErrorIs(t, m.Delete(context.Background(), "default", "data"), virsh.ErrVolumeNotFound)
}
