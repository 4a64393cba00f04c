// Package fixtures loads the static network tables (stations, block geometry and
// the per-region trains, signals and KPIs) that seed the simulation.
package fixtures

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/railtwin/traincontrol/internal/domain/kpi"
	"github.com/railtwin/traincontrol/internal/domain/track"
	"github.com/railtwin/traincontrol/internal/domain/train"
)

//go:embed regions.yaml
var defaultData []byte

// ErrInvalidFixture is returned when the network tables are inconsistent.
var ErrInvalidFixture = errors.New("invalid fixture")

// HoldAdvisory is the canned alert raised the first time a given train is
// halted at a signal during a session.
type HoldAdvisory struct {
	TrainID     string `yaml:"trainId"`
	Title       string `yaml:"title"`
	Message     string `yaml:"message"`
	Explanation string `yaml:"explanation"`
}

// Region is the initial state of one control region.
type Region struct {
	Name       string         `yaml:"name"`
	Trains     []train.Train  `yaml:"trains"`
	Signals    []track.Signal `yaml:"signals"`
	KPIs       kpi.Set        `yaml:"kpis"`
	Advisories []HoldAdvisory `yaml:"advisories"`
}

// Network is the full fixture set.
type Network struct {
	Stations []track.Station `yaml:"stations"`
	Layout   track.Layout    `yaml:"blocks"`
	Regions  []Region        `yaml:"regions"`
}

// Default returns the embedded network tables.
func Default() (*Network, error) {
	return Parse(defaultData)
}

// LoadFile reads network tables from a YAML file.
func LoadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates network tables.
func Parse(data []byte) (*Network, error) {
	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if err := n.validate(); err != nil {
		return nil, err
	}
	for ri := range n.Regions {
		r := &n.Regions[ri]
		for ti := range r.Trains {
			r.Trains[ti].Speed = r.Trains[ti].CruiseSpeed
		}
		for si := range r.Signals {
			r.Signals[si].State = track.SignalGreen
		}
	}
	return &n, nil
}

func (n *Network) validate() error {
	if len(n.Regions) == 0 {
		return fmt.Errorf("%w: at least one region must be defined", ErrInvalidFixture)
	}
	blocks := make(map[string]bool, len(n.Layout))
	for _, g := range n.Layout {
		if g.ID == "" {
			return fmt.Errorf("%w: block without id", ErrInvalidFixture)
		}
		if g.End <= g.Start {
			return fmt.Errorf("%w: block %s has an empty range", ErrInvalidFixture, g.ID)
		}
		blocks[g.ID] = true
	}

	seen := make(map[string]bool, len(n.Regions))
	for _, r := range n.Regions {
		if r.Name == "" {
			return fmt.Errorf("%w: region without name", ErrInvalidFixture)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: duplicate region %q", ErrInvalidFixture, r.Name)
		}
		seen[r.Name] = true

		for _, t := range r.Trains {
			if t.ID == "" {
				return fmt.Errorf("%w: region %s: train without id", ErrInvalidFixture, r.Name)
			}
			if len(t.Path) == 0 {
				return fmt.Errorf("%w: train %s has no path", ErrInvalidFixture, t.ID)
			}
		}
		for _, s := range r.Signals {
			if !blocks[s.ProtectsBlock] {
				return fmt.Errorf("%w: signal %s protects unknown block %q", ErrInvalidFixture, s.ID, s.ProtectsBlock)
			}
		}
	}
	return nil
}

// RegionNames lists the regions in fixture order.
func (n *Network) RegionNames() []string {
	names := make([]string, 0, len(n.Regions))
	for _, r := range n.Regions {
		names = append(names, r.Name)
	}
	return names
}

// Region returns a deep copy of the named region's initial state.
func (n *Network) Region(name string) (Region, bool) {
	for _, r := range n.Regions {
		if r.Name == name {
			return r.clone(), true
		}
	}
	return Region{}, false
}

func (r Region) clone() Region {
	c := r
	c.Trains = make([]train.Train, len(r.Trains))
	for i, t := range r.Trains {
		c.Trains[i] = t.Clone()
	}
	c.Signals = append([]track.Signal(nil), r.Signals...)
	c.Advisories = append([]HoldAdvisory(nil), r.Advisories...)
	return c
}
