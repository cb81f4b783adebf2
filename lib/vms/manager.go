// Package vms reads identity and power state of the remote host's
// domains and drives power transitions. Domain creation and deletion
// are deliberately absent; the hypervisor owns the domain set.
package vms

import (
	"context"

	"github.com/virtgate/virtgate/lib/logger"
)

// VM is a domain's identity and power state as reported by the hypervisor.
type VM struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// domainClient is the slice of the virsh command surface this package
// needs. *virsh.Client satisfies it.
type domainClient interface {
	ListDomains(ctx context.Context) ([]string, error)
	DomainState(ctx context.Context, name string) (string, error)
	StartDomain(ctx context.Context, name string) error
	ShutdownDomain(ctx context.Context, name string) error
}

// Manager handles VM queries and power operations.
type Manager interface {
	List(ctx context.Context) ([]VM, error)
	Get(ctx context.Context, name string) (*VM, error)
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
}

type manager struct {
	hv domainClient
}

// NewManager creates a VM manager over the given virsh surface.
func NewManager(hv domainClient) Manager {
	return &manager{hv: hv}
}

// List returns every defined domain with its current power state.
func (m *manager) List(ctx context.Context) ([]VM, error) {
	log := logger.FromContext(ctx)

	names, err := m.hv.ListDomains(ctx)
	if err != nil {
		return nil, err
	}

	vms := make([]VM, 0, len(names))
	for _, name := range names {
		state, err := m.hv.DomainState(ctx, name)
		if err != nil {
			// A domain can disappear between the listing and the state
			// read; skip it rather than failing the whole listing.
			log.WarnContext(ctx, "failed to read domain state", "vm", name, "error", err)
			continue
		}
		vms = append(vms, VM{Name: name, State: state})
	}
	return vms, nil
}

// Get returns the named domain's identity and power state.
func (m *manager) Get(ctx context.Context, name string) (*VM, error) {
	state, err := m.hv.DomainState(ctx, name)
	if err != nil {
		return nil, err
	}
	return &VM{Name: name, State: state}, nil
}

// Start boots the named domain.
func (m *manager) Start(ctx context.Context, name string) error {
	logger.FromContext(ctx).InfoContext(ctx, "starting domain", "vm", name)
	return m.hv.StartDomain(ctx, name)
}

// Stop requests a graceful guest shutdown of the named domain.
func (m *manager) Stop(ctx context.Context, name string) error {
	logger.FromContext(ctx).InfoContext(ctx, "stopping domain", "vm", name)
	return m.hv.ShutdownDomain(ctx, name)
}
