package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/virtgate/virtgate/cmd/api/api"
	"github.com/virtgate/virtgate/cmd/api/config"
	"github.com/virtgate/virtgate/lib/disks"
	"github.com/virtgate/virtgate/lib/logger"
	mw "github.com/virtgate/virtgate/lib/middleware"
	"github.com/virtgate/virtgate/lib/remote"
	"github.com/virtgate/virtgate/lib/virsh"
	"github.com/virtgate/virtgate/lib/vms"
	"github.com/virtgate/virtgate/lib/volumes"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application terminated", "error", err)
		os.Exit(1)
	}
	slog.Info("main() exiting normally")
}

func run() error {
	cfg := config.Load()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if cfg.LibvirtSSHHost == "" {
		return fmt.Errorf("LIBVIRT_SSH_HOST is required")
	}
	if cfg.LibvirtSSHKeyPath == "" {
		return fmt.Errorf("LIBVIRT_SSH_KEY_PATH is required")
	}

	var defaultVolumeSize datasize.ByteSize
	if err := defaultVolumeSize.UnmarshalText([]byte(cfg.QCOW2DefaultSize)); err != nil {
		return fmt.Errorf("invalid QCOW2_DEFAULT_SIZE %q: %w", cfg.QCOW2DefaultSize, err)
	}

	// Connect to the libvirt host
	log.Info("connecting to libvirt host", "host", cfg.LibvirtSSHHost, "user", cfg.LibvirtSSHUser)
	sshClient, err := remote.Dial(remote.Config{
		Host:           cfg.LibvirtSSHHost,
		Port:           cfg.LibvirtSSHPort,
		User:           cfg.LibvirtSSHUser,
		PrivateKeyPath: cfg.LibvirtSSHKeyPath,
		KnownHostsPath: cfg.LibvirtSSHKnownHosts,
	})
	if err != nil {
		return fmt.Errorf("connect to libvirt host: %w", err)
	}
	defer func() {
		log.Info("closing SSH connection")
		if err := sshClient.Close(); err != nil {
			log.Warn("error closing SSH connection", "error", err)
		}
	}()

	virshClient := virsh.NewClient(sshClient)

	diskManager := disks.NewManager(virshClient, disks.Config{
		DevicePrefix:         cfg.VirtioDiskPrefix,
		MaxDevices:           cfg.MaxVirtioDevices,
		AttachConfirmRetries: cfg.DiskAttachConfirmRetries,
		AttachConfirmDelay:   cfg.DiskAttachConfirmDelay,
		DetachTimeout:        cfg.DiskDetachTimeout,
		DetachPollInterval:   cfg.DiskDetachPollInterval,
	})
	volumeManager := volumes.NewManager(virshClient, defaultVolumeSize)
	vmManager := vms.NewManager(virshClient)

	svc := api.New(cfg, diskManager, volumeManager, vmManager)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Create router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(mw.InjectLogger(log))
	r.Use(mw.AccessLogger(log))

	r.Get("/health", svc.Health)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		// Detach confirmation may legitimately wait out its full
		// deadline, so the request timeout sits above it.
		r.Use(middleware.Timeout(cfg.DiskDetachTimeout + 30*time.Second))

		r.Route("/disk", func(r chi.Router) {
			r.Post("/attach", svc.AttachDisk)
			r.Post("/detach", svc.DetachDisk)
			r.Get("/list/{vmName}", svc.ListDisks)
		})

		r.Route("/volume", func(r chi.Router) {
			// Without a pool segment these target STORAGE_POOL.
			r.Get("/list", svc.ListVolumes)
			r.Post("/create/{name}", svc.CreateVolume)
			r.Delete("/delete/{name}", svc.DeleteVolume)

			r.Route("/{pool}", func(r chi.Router) {
				r.Get("/list", svc.ListVolumes)
				r.Post("/create/{name}", svc.CreateVolume)
				r.Delete("/delete/{name}", svc.DeleteVolume)
			})
		})

		r.Route("/vm", func(r chi.Router) {
			r.Get("/list", svc.ListVMs)
			r.Get("/info/{vmName}", svc.GetVM)
			r.Post("/start/{vmName}", svc.StartVM)
			r.Post("/stop/{vmName}", svc.StopVM)
		})
	})

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, cfg.Port),
		Handler: r,
	}

	// Error group for coordinated shutdown
	grp, gctx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		log.Info("starting virtgate API", "addr", srv.Addr, "api_prefix", cfg.APIPrefix)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
			return err
		}
		return nil
	})

	grp.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received")

		// Use WithoutCancel to preserve context values while preventing cancellation
		shutdownCtx := context.WithoutCancel(gctx)
		shutdownCtx, cancel := context.WithTimeout(shutdownCtx, 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown http server", "error", err)
			return err
		}
		log.Info("http server shutdown complete")
		return nil
	})

	err = grp.Wait()
	slog.Info("all goroutines finished")
	return err
}
