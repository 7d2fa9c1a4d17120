package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ulikoehler/YakDB-sub001/lib/db"
	"github.com/ulikoehler/YakDB-sub001/lib/lifecycle"
	"github.com/ulikoehler/YakDB-sub001/lib/tablespace"
	"github.com/ulikoehler/YakDB-sub001/rpc/common"
	"github.com/ulikoehler/YakDB-sub001/rpc/discovery"
	"github.com/ulikoehler/YakDB-sub001/rpc/httpapi"
	"github.com/ulikoehler/YakDB-sub001/rpc/jobs"
	"github.com/ulikoehler/YakDB-sub001/rpc/serializer"
	"github.com/ulikoehler/YakDB-sub001/rpc/transport"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("rpc")

// ErrTeardownSkipped is part of the shutdown error when the drain timed out and the
// tables were left open
var ErrTeardownSkipped = errors.New("table teardown skipped, drain did not complete")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewFrameSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) IRPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.ScanChunkSize <= 0 {
		config.ScanChunkSize = common.DefaultScanChunkSize
	}
	if config.ShutdownTimeoutSecond <= 0 {
		config.ShutdownTimeoutSecond = common.DefaultShutdownTimeoutSecond
	}

	features := db.FeaturesAll
	if config.HTTPEndpoint != "" {
		features |= db.FeatureHTTPFrontend
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())

	return &rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		registry:   lifecycle.NewRegistry(),
		jobs:       jobs.NewManager(config.ScanChunkSize, scanChunkBytes(config.Transport.MaxMessageBytes)),
		features:   features,
		jobCtx:     jobCtx,
		cancelJobs: cancelJobs,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	tables   *tablespace.Tablespace
	registry *lifecycle.Registry
	jobs     *jobs.Manager
	metrics  *serverMetrics
	features db.Feature

	// parent context of every scan job, cancelled on shutdown
	jobCtx     context.Context
	cancelJobs context.CancelFunc

	httpListener net.Listener
	httpServer   *http.Server
	beacon       *discovery.Beacon

	listenOnce sync.Once
	listenErr  error
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IRPCServer)
// --------------------------------------------------------------------------

func (s *rpcServer) Listen() error {
	s.listenOnce.Do(func() {
		s.listenErr = s.init()
	})
	return s.listenErr
}

func (s *rpcServer) Addr() net.Addr {
	return s.transport.Addr()
}

func (s *rpcServer) HTTPAddr() net.Addr {
	if s.httpListener == nil {
		return nil
	}
	return s.httpListener.Addr()
}

func (s *rpcServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	// Worker pool, each worker is a tracked task that ends when the intake stops
	for i := 0; i < s.config.Workers; i++ {
		release, err := s.registry.Acquire("worker")
		if err != nil {
			return err
		}
		g.Go(func() error {
			defer release()
			s.work()
			return nil
		})
	}

	g.Go(func() error {
		return s.transport.Serve(gctx)
	})

	if s.httpServer != nil {
		g.Go(func() error {
			Logger.Infof("HTTP front end listening on %s", s.httpListener.Addr())
			if err := s.httpServer.Serve(s.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http front end: %w", err)
			}
			return nil
		})
	}

	if s.beacon != nil {
		g.Go(func() error {
			return s.beacon.Run(gctx)
		})
	}

	Logger.Infof("YakDB server v%s ready with %d workers", common.ServerVersion, s.config.Workers)

	// Shutdown runs as soon as the caller cancels or any component failed
	var shutdownErr error
	g.Go(func() error {
		<-gctx.Done()
		shutdownErr = s.shutdown()
		return nil
	})

	err := g.Wait()
	return errors.Join(err, shutdownErr)
}

// --------------------------------------------------------------------------
// Startup and Shutdown
// --------------------------------------------------------------------------

func (s *rpcServer) init() error {

	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	// Table presets are the initial configuration of individual tables
	var presets map[uint32]db.TableConfig
	if s.config.TablePresetsFile != "" {
		var err error
		if presets, err = db.LoadTableConfigs(s.config.TablePresetsFile); err != nil {
			return err
		}
		Logger.Infof("Loaded presets for %d tables from %s", len(presets), s.config.TablePresetsFile)
	}

	tables, err := tablespace.New(tablespace.Config{
		DataDir:   s.config.DataDir,
		MaxTables: s.config.MaxTables,
		Presets:   presets,
	})
	if err != nil {
		return err
	}
	s.tables = tables

	s.metrics = newServerMetrics(s.tables.NumOpen, s.registry.Active, s.jobs.Active)

	// A disconnecting peer takes its scan jobs with it
	s.transport.OnDisconnect(func(peer transport.PeerID) {
		if n := s.jobs.CancelPeer(peer); n > 0 {
			Logger.Debugf("Cancelled %d scan jobs of disconnected peer %d", n, peer)
		}
	})

	if err := s.transport.Listen(s.config); err != nil {
		return err
	}

	// Optional HTTP front end
	if s.config.HTTPEndpoint != "" {
		ln, err := net.Listen("tcp", s.config.HTTPEndpoint)
		if err != nil {
			_ = s.transport.Close()
			return fmt.Errorf("failed to bind http front end: %w", err)
		}
		s.httpListener = ln
		s.httpServer = &http.Server{
			Handler: httpapi.NewRouter(httpapi.Options{
				Tables:   s.tables,
				Registry: s.registry,
				Metrics:  s.metrics.WritePrometheus,
				Info:     s.info,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	// Optional discovery beacon
	if s.config.DiscoveryAddress != "" {
		beacon, err := discovery.NewBeacon(discovery.BeaconConfig{
			Address:     s.config.DiscoveryAddress,
			ClusterName: s.config.ClusterName,
			Interval:    time.Duration(s.config.DiscoveryIntervalSec) * time.Second,
		})
		if err != nil {
			_ = s.transport.Close()
			if s.httpListener != nil {
				_ = s.httpListener.Close()
			}
			return err
		}
		s.beacon = beacon
	}

	Logger.Infof("YakDB setup completed successfully")
	return nil
}

// shutdown tears the server down in dependency order. No table is closed before every
// task that may still use it has finished.
func (s *rpcServer) shutdown() error {
	Logger.Infof("Shutting down")
	var errs []error

	// 1. no new requests
	s.transport.StopIntake()

	// 2. stop scan jobs between chunks
	if n := s.jobs.CancelAll(); n > 0 {
		Logger.Infof("Cancelled %d scan jobs", n)
	}
	s.cancelJobs()

	// the HTTP front end stops accepting, running handlers are drained below
	timeout := time.Duration(s.config.ShutdownTimeoutSecond) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http front end: %w", err))
		}
	}
	if s.beacon != nil {
		_ = s.beacon.Close()
	}

	// 3. wait for workers, admin tasks, scan jobs and HTTP handlers
	drainErr := s.registry.Drain(ctx)
	if drainErr != nil {
		Logger.Errorf("Drain did not complete: %v", drainErr)
		errs = append(errs, drainErr)
	}

	// 4. flush the remaining responses
	if err := s.transport.Close(); err != nil {
		errs = append(errs, err)
	}

	// 5. close every table. Live tasks may still hold borrows, closing would block
	// on them, so the tables are left to the engine's crash recovery.
	if drainErr != nil {
		Logger.Errorf("Skipping table teardown, %d tasks still live", s.registry.Active())
		errs = append(errs, ErrTeardownSkipped)
	} else if err := s.tables.Teardown(); err != nil {
		errs = append(errs, err)
	}

	Logger.Infof("Shutdown complete")
	return errors.Join(errs...)
}

// scanChunkBytes keeps a scan chunk below half of the message limit
func scanChunkBytes(maxMessageBytes int) int {
	if maxMessageBytes <= 0 || maxMessageBytes > common.DefaultMaxMessageBytes {
		return common.DefaultScanChunkBytes
	}
	return maxMessageBytes / 2
}

// info is the server summary of the HTTP front end
func (s *rpcServer) info() httpapi.ServerInfo {
	return httpapi.ServerInfo{
		Version:     common.ServerVersion,
		Features:    uint64(s.features),
		OpenTables:  s.tables.OpenTables(),
		LiveTasks:   s.registry.Active(),
		ActiveScans: s.jobs.Active(),
		Workers:     s.config.Workers,
	}
}
