// Package orchestrator drives Snapdog's startup sequence: a fixed
// chain of validation steps followed by the first reconciliation pass
// and the initial state publish, mirroring the phased startup/
// background-polling split internal/connwatch.Watcher.run uses for a
// single dependency, generalized here to a whole-process state
// machine with several distinct steps.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/snapdog/snapdog/internal/config"
	"github.com/snapdog/snapdog/internal/grouping"
	"github.com/snapdog/snapdog/internal/mediator"
	"github.com/snapdog/snapdog/internal/statepublisher"
)

// State names one step of the startup sequence.
type State int

const (
	StateValidatingPorts State = iota
	StateValidatingNetwork
	StateValidatingDirectories
	StateWaitingForSnapcast
	StateReconciling
	StatePublishing
	StateRunning
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateValidatingPorts:
		return "ValidatingPorts"
	case StateValidatingNetwork:
		return "ValidatingNetwork"
	case StateValidatingDirectories:
		return "ValidatingDirectories"
	case StateWaitingForSnapcast:
		return "WaitingForSnapcast"
	case StateReconciling:
		return "Reconciling"
	case StatePublishing:
		return "Publishing"
	case StateRunning:
		return "Running"
	case StateShutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// StateChanged is published each time the orchestrator advances (or
// aborts) a startup step, for the /health/ready endpoint and logs.
type StateChanged struct {
	State State
	Err   error
}

func (StateChanged) NotificationName() string { return "OrchestratorStateChanged" }

// SnapcastStatusChecker is the narrow capability orchestrator needs
// from internal/snapcast.Client to probe readiness — defined locally
// so this package does not import the snapcast wire client directly.
type SnapcastStatusChecker interface {
	GetServerStatus(ctx context.Context) ([]grouping.SnapcastGroup, error)
}

// Orchestrator runs the startup sequence once and then blocks in
// StateRunning until its context is cancelled.
type Orchestrator struct {
	cfg       *config.Config
	logger    *slog.Logger
	med       *mediator.Mediator
	snapcast  SnapcastStatusChecker
	reconcile func(ctx context.Context) grouping.Health
	publisher *statepublisher.Publisher

	netDialTargets []string
}

// New builds an Orchestrator. reconcile is usually
// (*grouping.Reconciler).Reconcile, injected as a function rather
// than the concrete type so this package stays decoupled from the
// reconciler's construction details.
func New(cfg *config.Config, med *mediator.Mediator, snap SnapcastStatusChecker, reconcile func(ctx context.Context) grouping.Health, publisher *statepublisher.Publisher, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		cfg:       cfg,
		logger:    logger,
		med:       med,
		snapcast:  snap,
		reconcile: reconcile,
		publisher: publisher,
	}
	o.netDialTargets = append(o.netDialTargets, net.JoinHostPort(cfg.Services.Snapcast.Host, strconv.Itoa(cfg.Services.Snapcast.Port)))
	return o
}

func (o *Orchestrator) advance(s State, err error) {
	o.logger.Info("orchestrator: entering state", "state", s.String())
	o.med.Publish(StateChanged{State: s, Err: err})
}

// Run executes every startup step in order and then blocks until ctx
// is cancelled. A validation step that exhausts its retries aborts
// startup and returns a non-nil error; the caller (cmd/snapdogd) is
// expected to exit with status 2 per spec.md §6.
func (o *Orchestrator) Run(ctx context.Context) error {
	sv := o.cfg.Resilience.StartupValidation

	o.advance(StateValidatingPorts, nil)
	if err := retryWithBackoff(ctx, sv, o.logger, "validating-ports", o.validatePorts); err != nil {
		o.advance(StateShutdown, err)
		return err
	}

	o.advance(StateValidatingNetwork, nil)
	o.validateNetwork(ctx) // best-effort, never fails startup

	o.advance(StateValidatingDirectories, nil)
	if err := retryWithBackoff(ctx, sv, o.logger, "validating-directories", o.validateDirectories); err != nil {
		o.advance(StateShutdown, err)
		return err
	}

	o.advance(StateWaitingForSnapcast, nil)
	o.waitForSnapcast(ctx)

	o.advance(StateReconciling, nil)
	health := o.reconcile(ctx)
	o.logger.Info("orchestrator: initial reconciliation complete", "health", health)

	o.advance(StatePublishing, nil)
	o.publisher.Subscribe()
	o.publisher.PublishStartupState()
	if f := o.publisher.Failures(); f > 0 {
		o.logger.Warn("orchestrator: startup state publish had failures", "failures", f)
	}

	o.advance(StateRunning, nil)
	<-ctx.Done()
	return nil
}

// validatePorts confirms every port Snapdog declares is free locally:
// its own HTTP listen port, plus the Snapcast JSON-RPC and MQTT broker
// ports per spec.md §4.9. A busy MQTT/Snapcast port most often means a
// stray snapdogd (or something squatting in its place) is already
// running against this host; a busy HTTP port means another process
// has Snapdog's own API endpoint. Either way this step only detects
// and logs the conflict — per the spec's ambiguous startup contract it
// does not rebind, it reports the failure on the configured port and
// lets retryWithBackoff decide whether to give up.
func (o *Orchestrator) validatePorts(ctx context.Context) error {
	var errs []error

	if err := o.checkPortFree("http", o.cfg.Listen.Address, o.cfg.Listen.Port); err != nil {
		errs = append(errs, err)
	}
	if err := o.checkPortFree("snapcast", o.cfg.Services.Snapcast.Host, o.cfg.Services.Snapcast.Port); err != nil {
		errs = append(errs, err)
	}
	if host, port, ok := mqttBrokerHostPort(o.cfg.Services.MQTT.BrokerURL); ok {
		if err := o.checkPortFree("mqtt", host, port); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// checkPortFree probes host:port for a bind conflict. If busy, it also
// searches offsets 1..100 purely to log a usable alternative — the
// configured port is still reported as the failure.
func (o *Orchestrator) checkPortFree(name, host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		ln.Close()
		return nil
	}

	for offset := 1; offset <= 100; offset++ {
		altPort := port + offset
		altAddr := net.JoinHostPort(host, strconv.Itoa(altPort))
		altLn, altErr := net.Listen("tcp", altAddr)
		if altErr == nil {
			altLn.Close()
			o.logger.Warn("orchestrator: configured port is busy, an alternative is free",
				"service", name,
				"configured_port", port,
				"alternative_port", altPort,
			)
			break
		}
	}
	return fmt.Errorf("%s port %d unavailable: %w", name, port, err)
}

// mqttBrokerHostPort extracts the host and port Snapdog's MQTT client
// dials out to from its broker URL (e.g. "tcp://localhost:1883"). ok
// is false when MQTT is unconfigured or the URL has no explicit port,
// in which case the port-free check is skipped rather than guessing
// the scheme's default.
func mqttBrokerHostPort(brokerURL string) (host string, port int, ok bool) {
	if brokerURL == "" {
		return "", 0, false
	}
	u, err := url.Parse(brokerURL)
	if err != nil || u.Port() == "" {
		return "", 0, false
	}
	p, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", 0, false
	}
	return u.Hostname(), p, true
}

// validateNetwork best-effort probes reachability of configured
// external services. Failures are logged, never retried, and never
// abort startup — spec.md §4.9 treats this step as advisory.
func (o *Orchestrator) validateNetwork(ctx context.Context) {
	for _, target := range o.netDialTargets {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", target)
		cancel()
		if err != nil {
			o.logger.Warn("orchestrator: network reachability check failed", "target", target, "error", err)
			continue
		}
		conn.Close()
	}
}

// validateDirectories ensures every configured directory exists and
// is writable, creating it if absent.
func (o *Orchestrator) validateDirectories(ctx context.Context) error {
	for _, dir := range []string{o.cfg.Directories.DataDir, o.cfg.Directories.CacheDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
		probe, err := os.CreateTemp(dir, ".snapdog-write-test-*")
		if err != nil {
			return fmt.Errorf("directory %s is not writable: %w", dir, err)
		}
		name := probe.Name()
		probe.Close()
		os.Remove(name)
	}
	return nil
}

// waitForSnapcast polls the Snapcast server every second for up to
// 30 seconds, proceeding regardless of outcome — the grouping
// reconciler that runs next already treats an unreachable Snapcast
// server as a Degraded pass, not a fatal condition.
func (o *Orchestrator) waitForSnapcast(ctx context.Context) {
	deadline := time.Now().Add(30 * time.Second)
	for {
		probeCtx, cancel := context.WithTimeout(ctx, time.Second)
		_, err := o.snapcast.GetServerStatus(probeCtx)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			o.logger.Warn("orchestrator: snapcast still unreachable after 30s, proceeding", "error", err)
			return
		}
		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

