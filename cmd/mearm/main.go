package main

import (
	"context"
	"net/http"
	"os"
	"os/user"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gwillem/mearm/pkg/control"
	"github.com/gwillem/mearm/pkg/lease"
	"github.com/gwillem/mearm/pkg/obs"
	"github.com/gwillem/mearm/pkg/robot"
)

type Options struct {
	Config      string `short:"c" long:"config" env:"MEARM_CONFIG" default:"mearm.json" description:"Arm configuration file"`
	Verbose     bool   `short:"v" long:"verbose" description:"Debug logging"`
	Sim         bool   `long:"sim" description:"Drive a simulated arm instead of the hardware"`
	MetricsAddr string `long:"metrics-addr" env:"MEARM_METRICS_ADDR" description:"Serve prometheus metrics on this address"`

	Home     HomeCommand     `command:"home" description:"Move every joint to its home angle"`
	SelfTest SelfTestCommand `command:"selftest" description:"Sweep every joint through its range (servos disconnected!)"`
	Joint    JointCommand    `command:"joint" description:"Show a joint's position or limits"`
	Set      SetCommand      `command:"set" description:"Move a joint or change its limits"`
	Ports    PortsCommand    `command:"ports" description:"List serial ports"`
	Init     InitCommand     `command:"init" description:"Write the default configuration"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "MeArm - control a MeArm robot arm"

	// .env is optional; real environment variables win
	_ = godotenv.Load()

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

// session is one CLI invocation holding the control lease.
type session struct {
	ctl    *control.Controller
	id     string
	cfg    *robot.Config
	logger *zap.SugaredLogger
	stop   context.CancelFunc
}

// openSession loads the config, opens the arm and takes the control lease.
// When home is set and the config asks for it, the arm is homed under the
// lease before returning.
func openSession(ctx context.Context, home bool) (*session, error) {
	logger, err := obs.NewLogger("mearm", opts.Verbose)
	if err != nil {
		return nil, errors.Wrap(err, "logger")
	}

	cfg, err := robot.LoadConfigFrom(opts.Config)
	if err != nil {
		if !os.IsNotExist(errors.Cause(err)) {
			return nil, err
		}
		logger.Infof("%s not found, using the default configuration", opts.Config)
		cfg = robot.DefaultConfig()
	}

	reg := prometheus.NewRegistry()
	metrics := obs.NewMetrics(reg)
	ctx, stop := context.WithCancel(ctx)
	if opts.MetricsAddr != "" {
		go serveMetrics(ctx, opts.MetricsAddr, reg, logger)
	}

	backend, err := openBackend(cfg, logger, metrics)
	if err != nil {
		stop()
		return nil, err
	}

	s := newSession(ctx, cfg, backend, logger, metrics, stop)
	if err := s.start(ctx, home && cfg.HomeOnStart); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// newSession wires the lease and its monitor around backend. The monitor
// runs until stop is called.
func newSession(ctx context.Context, cfg *robot.Config, backend control.Backend, logger *zap.SugaredLogger, metrics *obs.Metrics, stop context.CancelFunc) *session {
	l := lease.New(lease.Config{Duration: cfg.Lease.Duration(), Logger: logger, Metrics: metrics})
	go lease.NewMonitor(l, nil, cfg.Lease.SweepInterval()).Run(ctx)

	ctl := control.New(backend, l, control.Config{Logger: logger})
	return &session{ctl: ctl, id: ctl.NewSession(), cfg: cfg, logger: logger, stop: stop}
}

// start takes the control lease and optionally homes the arm through it.
func (s *session) start(ctx context.Context, home bool) error {
	if _, err := s.ctl.Acquire(s.id, operator(), origin()); err != nil {
		return err
	}
	if home {
		return s.ctl.HomeAll(ctx, s.id)
	}
	return nil
}

func (s *session) Close() error {
	if _, held := s.ctl.Status(); held {
		_ = s.ctl.Release(s.id)
	}
	s.stop()
	err := s.ctl.Close()
	_ = s.logger.Sync()
	return err
}

func operator() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return lease.DefaultName
}

func origin() string {
	host, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return host
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Infof("serving metrics on %s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("metrics server: %v", err)
	}
}
