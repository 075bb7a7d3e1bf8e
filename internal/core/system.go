package core

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"SwarmFormation/internal/device"
	"SwarmFormation/internal/estimator"
	"SwarmFormation/internal/formation"
	"SwarmFormation/internal/model"
	"SwarmFormation/internal/operator"
	"SwarmFormation/internal/parser"
	"SwarmFormation/internal/radio"
	"SwarmFormation/internal/recorder"
	"SwarmFormation/internal/stabilizer"
	"SwarmFormation/internal/util"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads the YAML configuration at path over the defaults and validates it.
func LoadConfig(path string) (*model.Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := model.DefaultConfig()
	// an explicit formations section replaces the default table
	cfg.Formations = nil
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Formations == nil {
		cfg.Formations = model.DefaultFormations()
	}
	if err := errors.Join(cfg.Validate(), checkSeparation(&cfg)); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// checkSeparation rejects shapes whose stations crowd closer than
// swarm.min_separation, leader included.
func checkSeparation(cfg *model.Config) error {
	if cfg.Swarm.MinSeparation <= 0 {
		return nil
	}
	table := formation.NewTable(cfg.Formations)
	var errs []error
	for _, shape := range table.Shapes() {
		if d := table.MinSeparation(shape); d < cfg.Swarm.MinSeparation {
			errs = append(errs, fmt.Errorf("formations.%s: stations %.3f m apart, below swarm.min_separation %.3f", shape, d, cfg.Swarm.MinSeparation))
		}
	}
	return errors.Join(errs...)
}

// NewRole builds the state machine for the configured role.
func NewRole(cfg *model.Config, tr radio.Transport, est Estimator, op operator.Channel) (Role, error) {
	switch cfg.Node.Role {
	case model.RoleLeader:
		return NewLeader(cfg, tr, est, op)
	case model.RoleFollower:
		return NewFollower(cfg, tr, est)
	}
	return nil, fmt.Errorf("unknown role %q", cfg.Node.Role)
}

// System manages the lifecycle of one node: its radio, estimator,
// commander, operator console, flight recorder and control loop.
type System struct {
	cfg      *model.Config
	Role     Role
	Runner   *Runner
	Operator *operator.Server
	Recorder *recorder.Recorder

	closers []func()

	started   bool
	startLock sync.Mutex
}

// NewSystem opens every adapter the configuration names and builds the role.
// On error, whatever was opened is closed again.
func NewSystem(cfg *model.Config) (_ *System, err error) {
	s := &System{cfg: cfg}
	defer func() {
		if err != nil {
			s.close()
		}
	}()

	tr, err := s.openRadio()
	if err != nil {
		return nil, err
	}
	est, cmd, err := s.openVehicle()
	if err != nil {
		return nil, err
	}

	var op operator.Channel
	if cfg.Node.Role == model.RoleLeader {
		s.Operator = operator.NewServer(cfg.Operator.Addr)
		op = s.Operator
	}

	if cfg.Recorder.Path != "" {
		rec, err := recorder.Open(cfg.Recorder.Path, tr.SelfID())
		if err != nil {
			return nil, err
		}
		s.Recorder = rec
		s.closers = append(s.closers, func() { _ = rec.Close() })
		tr.RegisterCallback(rec.Tap(tr.SelfID()))
	}

	s.Role, err = NewRole(cfg, tr, est, op)
	if err != nil {
		return nil, err
	}
	s.Runner = NewRunner(s.Role, cmd, cfg.Tick())
	return s, nil
}

func (s *System) openRadio() (radio.Transport, error) {
	rc := s.cfg.Radio
	switch rc.Kind {
	case "serial":
		dev, err := device.NewSerialDevice(rc.Device, rc.Baud)
		if err != nil {
			return nil, fmt.Errorf("open radio: %w", err)
		}
		link := radio.NewSerialLink(s.cfg.Node.ID, dev, 4*rc.MaxPacketsPerTick)
		s.closers = append(s.closers, func() { _ = link.Close() })
		return link, nil
	case "memory":
		return nil, errors.New("radio kind memory is only available to the simulation")
	}
	return nil, fmt.Errorf("unknown radio kind %q", rc.Kind)
}

func (s *System) openVehicle() (Estimator, Commander, error) {
	var (
		est Estimator
		sim *estimator.Kinematic
	)
	ec := s.cfg.Estimator
	switch ec.Kind {
	case "nmea":
		var origin *parser.Fix
		if ec.OriginLat != 0 || ec.OriginLon != 0 {
			origin = &parser.Fix{Lat: ec.OriginLat, Lon: ec.OriginLon}
		}
		n, stop, err := estimator.OpenNMEA(ec.Device, ec.Baud, origin)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, stop)
		est = n
	case "sim":
		sim = estimator.NewKinematic(model.Position{}, s.cfg.Simulation.Response, nil)
		est = sim
	default:
		return nil, nil, fmt.Errorf("unknown estimator kind %q", ec.Kind)
	}

	cc := s.cfg.Commander
	switch cc.Kind {
	case "serial":
		c, err := stabilizer.OpenSerialCommander(cc.Device, cc.Baud)
		if err != nil {
			return nil, nil, err
		}
		s.closers = append(s.closers, func() { _ = c.Close() })
		return est, c, nil
	case "log":
		return est, stabilizer.NewLogCommander(s.cfg.Node.ID.String()), nil
	case "sim":
		if sim == nil {
			return nil, nil, errors.New("commander kind sim needs estimator kind sim")
		}
		return est, sim, nil
	}
	return nil, nil, fmt.Errorf("unknown commander kind %q", cc.Kind)
}

// StartAll starts the operator console (leader only) and the control loop.
func (s *System) StartAll(ctx context.Context) error {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if s.started {
		return nil
	}
	if s.Operator != nil {
		if err := s.Operator.Start(); err != nil {
			return err
		}
	}
	s.Runner.Start(ctx)
	s.started = true
	util.Info("[system] node %s running as %s", s.Role.ID(), s.cfg.Node.Role)
	return nil
}

// StopAll stops the loop first, then the adapters.
func (s *System) StopAll() {
	s.startLock.Lock()
	defer s.startLock.Unlock()
	if !s.started {
		s.close()
		return
	}
	s.Runner.Stop()
	if s.Operator != nil {
		s.Operator.Stop()
	}
	s.close()
	s.started = false
	util.Info("[system] node %s stopped after %d ticks (%s)", s.Role.ID(), s.Runner.Ticks(), s.Role.Counters())
}

func (s *System) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
