// Package virsh is the whitelisted command surface against the remote
// hypervisor. Only the fixed templates below ever reach the remote
// shell, and every interpolated value is validated against an
// allow-list pattern first.
//
// Raw command failures are classified here, exactly once, into the
// package's sentinel errors; callers propagate them without
// re-interpretation.
package virsh

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/virtgate/virtgate/lib/remote"
)

// Domain power states as reported by `virsh domstate`.
const (
	StateRunning = "running"
	StateShutOff = "shut off"
	StatePaused  = "paused"
)

// Client issues virsh commands through a remote.Runner.
type Client struct {
	runner remote.Runner
}

// NewClient wraps runner in the whitelisted command surface.
func NewClient(runner remote.Runner) *Client {
	return &Client{runner: runner}
}

// DomainState returns the power state of the named domain.
func (c *Client) DomainState(ctx context.Context, name string) (string, error) {
	if err := ValidateName("domain name", name); err != nil {
		return "", err
	}
	res, err := c.runner.Run(ctx, "virsh domstate "+name)
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// DomainExists reports whether the named domain is defined on the host.
func (c *Client) DomainExists(ctx context.Context, name string) (bool, error) {
	_, err := c.DomainState(ctx, name)
	if errors.Is(err, ErrDomainNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DomainXML returns the live XML description of the named domain.
func (c *Client) DomainXML(ctx context.Context, name string) (string, error) {
	if err := ValidateName("domain name", name); err != nil {
		return "", err
	}
	res, err := c.runner.Run(ctx, "virsh dumpxml "+name)
	if err != nil {
		return "", classify(err)
	}
	return res.Stdout, nil
}

// ListDomains returns the names of all defined domains, running or not.
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	res, err := c.runner.Run(ctx, "virsh list --all --name")
	if err != nil {
		return nil, classify(err)
	}
	var names []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if name := strings.TrimSpace(line); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// StartDomain boots the named domain.
func (c *Client) StartDomain(ctx context.Context, name string) error {
	if err := ValidateName("domain name", name); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, "virsh start "+name); err != nil {
		return classify(err)
	}
	return nil
}

// ShutdownDomain requests a graceful guest shutdown of the named domain.
func (c *Client) ShutdownDomain(ctx context.Context, name string) error {
	if err := ValidateName("domain name", name); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, "virsh shutdown "+name); err != nil {
		return classify(err)
	}
	return nil
}

// AttachDevice hot-attaches the device described by deviceXML to the
// domain, live and persisted in the config. The XML is staged on the
// remote host over SFTP because attach-device reads it from a file.
func (c *Client) AttachDevice(ctx context.Context, domain, deviceXML string) error {
	return c.deviceCommand(ctx, "attach-device", domain, deviceXML)
}

// DetachDevice hot-detaches the device described by deviceXML from the
// domain, live and persisted in the config.
func (c *Client) DetachDevice(ctx context.Context, domain, deviceXML string) error {
	return c.deviceCommand(ctx, "detach-device", domain, deviceXML)
}

func (c *Client) deviceCommand(ctx context.Context, verb, domain, deviceXML string) error {
	if err := ValidateName("domain name", domain); err != nil {
		return err
	}

	xmlPath := fmt.Sprintf("/tmp/virtgate-%s.xml", uuid.NewString())
	if err := c.runner.Upload(ctx, []byte(deviceXML), xmlPath); err != nil {
		return err
	}
	// The staged file is scratch; removal failure is not worth failing
	// the operation over. Use Background so a cancelled request still
	// cleans up.
	defer func() {
		_ = c.runner.Remove(context.Background(), xmlPath)
	}()

	cmd := fmt.Sprintf("virsh %s %s %s --live --config", verb, domain, xmlPath)
	if _, err := c.runner.Run(ctx, cmd); err != nil {
		return classify(err)
	}
	return nil
}

// VolumeInfo is one storage volume in a pool.
type VolumeInfo struct {
	Name string
	Path string
}

// CreateVolume creates a qcow2 volume of the given capacity in pool
// and returns its host-side path.
func (c *Client) CreateVolume(ctx context.Context, pool, name string, capacityBytes uint64) (string, error) {
	if err := ValidateName("pool name", pool); err != nil {
		return "", err
	}
	if err := ValidateName("volume name", name); err != nil {
		return "", err
	}
	cmd := fmt.Sprintf("virsh vol-create-as %s %s %d --format qcow2", pool, name, capacityBytes)
	if _, err := c.runner.Run(ctx, cmd); err != nil {
		return "", classify(err)
	}
	return c.VolumePath(ctx, pool, name)
}

// DeleteVolume removes the named volume from pool.
func (c *Client) DeleteVolume(ctx context.Context, pool, name string) error {
	if err := ValidateName("pool name", pool); err != nil {
		return err
	}
	if err := ValidateName("volume name", name); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, fmt.Sprintf("virsh vol-delete %s --pool %s", name, pool)); err != nil {
		return classify(err)
	}
	return nil
}

// VolumePath returns the host-side path of the named volume.
func (c *Client) VolumePath(ctx context.Context, pool, name string) (string, error) {
	if err := ValidateName("pool name", pool); err != nil {
		return "", err
	}
	if err := ValidateName("volume name", name); err != nil {
		return "", err
	}
	res, err := c.runner.Run(ctx, fmt.Sprintf("virsh vol-path %s --pool %s", name, pool))
	if err != nil {
		return "", classify(err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// RefreshPool re-scans the pool so vol-list reflects out-of-band changes.
func (c *Client) RefreshPool(ctx context.Context, pool string) error {
	if err := ValidateName("pool name", pool); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, "virsh pool-refresh "+pool); err != nil {
		return classify(err)
	}
	return nil
}

// ListVolumes returns the volumes in pool. Output parsing expects the
// two-column `virsh vol-list` table (name, path).
func (c *Client) ListVolumes(ctx context.Context, pool string) ([]VolumeInfo, error) {
	if err := ValidateName("pool name", pool); err != nil {
		return nil, err
	}
	res, err := c.runner.Run(ctx, "virsh vol-list "+pool)
	if err != nil {
		return nil, classify(err)
	}

	var vols []VolumeInfo
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Name") || strings.HasPrefix(line, "---") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		vols = append(vols, VolumeInfo{Name: fields[0], Path: fields[1]})
	}
	return vols, nil
}

// classify maps a raw execution failure onto the package's sentinel
// errors by inspecting the hypervisor's stderr. Unrecognized failures
// pass through as the transport error.
func classify(err error) error {
	var cmdErr *remote.CommandError
	if !errors.As(err, &cmdErr) {
		return err
	}

	stderr := strings.ToLower(cmdErr.Stderr)
	switch {
	case strings.Contains(stderr, "domain not found"),
		strings.Contains(stderr, "failed to get domain"),
		strings.Contains(stderr, "no domain with matching name"):
		return fmt.Errorf("%w: %s", ErrDomainNotFound, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "domain is not running"),
		strings.Contains(stderr, "domain is not active"):
		return fmt.Errorf("%w: %s", ErrDomainNotRunning, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "domain is already active"),
		strings.Contains(stderr, "domain is already running"):
		return fmt.Errorf("%w: %s", ErrDomainAlreadyActive, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "already in use"),
		strings.Contains(stderr, "duplicate device"),
		strings.Contains(stderr, "target already exists"):
		return fmt.Errorf("%w: %s", ErrDeviceInUse, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "no disk found"),
		strings.Contains(stderr, "no target device"),
		strings.Contains(stderr, "device not found"):
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "failed to get pool"),
		strings.Contains(stderr, "no storage pool with matching name"),
		strings.Contains(stderr, "pool is not active"):
		return fmt.Errorf("%w: %s", ErrPoolNotFound, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "failed to get vol"),
		strings.Contains(stderr, "no storage vol with matching name"):
		return fmt.Errorf("%w: %s", ErrVolumeNotFound, strings.TrimSpace(cmdErr.Stderr))
	case strings.Contains(stderr, "storage vol") && strings.Contains(stderr, "already exists"):
		return fmt.Errorf("%w: %s", ErrVolumeExists, strings.TrimSpace(cmdErr.Stderr))
	}
	return err
}
