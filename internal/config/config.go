package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wildstyl3r/erdmc/internal/constants"
)

var ErrInvalid = errors.New("config: invalid simulation description")

const (
	ERD = "ERD"
	RBS = "RBS"

	Wide   = "WIDE"
	Narrow = "NARROW"

	TOF  = "TOF"
	GAS  = "GAS"
	FOIL = "FOIL"

	Gap        = "gap"
	FoilLayer  = "foil"
	Circle     = "circle"
	Rectangle  = "rectangle"
	Analytic   = "analytic"
	TableInput = "table"
)

type Isotope struct {
	M        float64 // [kg]
	Fraction float64
}

type Species struct {
	Z        int
	Isotopes []Isotope
}

// Mass is the abundance-weighted mass.
func (s Species) Mass() (m float64) {
	var total float64
	for _, iso := range s.Isotopes {
		m += iso.M * iso.Fraction
		total += iso.Fraction
	}
	if total > 0 {
		m /= total
	}
	return
}

type Beam struct {
	Species
	Energy       float64 // [J]
	EnergySpread float64 // [J]
	Angle        float64 // [rad]
	SpotX, SpotY float64 // [m]
	Divergence   float64 // [rad]
}

type Element struct {
	Z        int
	M        float64 // [kg]
	Fraction float64
}

type StoppingPoint struct {
	E      float64 // [J]
	S      float64 // [J/m]
	Omega2 float64 // [J^2/m]
}

type Layer struct {
	Name      string
	Thickness float64 // [m]
	Density   float64 // [kg/m^3]
	Elements  []Element
	Stopping  map[int][]StoppingPoint
}

type Breakpoint struct {
	Depth         float64 // [m]
	Concentration float64
}

type Foil struct {
	Kind     string
	Length   float64    // [m]
	Shape    string
	Size     [2]float64 // [m], diameter or sides
	Density  float64    // [kg/m^3]
	Elements []Element
	Timing   bool
}

type Detector struct {
	Type  string
	Angle float64 // [rad]
	Foils []Foil
}

// Simulation is the fully populated run configuration in SI units.
type Simulation struct {
	Seed     uint64
	Workers  int
	RNG      string
	Type     string
	NSimu    int
	NPresimu int
	EMin     float64 // [J]
	MinAngle float64 // [rad]

	RecoilWidth      string
	WideAngle        float64 // [rad]
	PresimPercentile float64
	PresimBinSize    int

	Stopping  string
	OutputDir string
	Advanced  bool
	MakeDir   bool

	Beam         Beam
	Recoil       Species
	Layers       []Layer
	Distribution []Breakpoint
	Detector     Detector
}

var defaultValues = map[string]any{ // in SI
	"Workers":          1,
	"RNG":              "host",
	"Type":             ERD,
	"EMin":             0.1 * constants.MeV,
	"MinAngle":         2. * 3.141592653589793 / 180.,
	"RecoilWidth":      Wide,
	"WideAngle":        2. * 3.141592653589793 / 180.,
	"PresimPercentile": 0.99,
	"PresimBinSize":    100,
	"Stopping":         Analytic,
	"OutputDir":        ".",
	"MakeDir":          true,
}

type definedKeys map[string]struct{}

func (d definedKeys) isDefined(path ...string) bool {
	_, ok := d[strings.Join(path, ".")]
	return ok
}

func Load(path string) (*Simulation, error) {
	var f File
	defined := definedKeys{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		collectKeys(defined, "", raw)
	default:
		meta, err := toml.DecodeFile(path, &f)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		for _, key := range meta.Keys() {
			defined[key.String()] = struct{}{}
		}
	}
	return f.Simulation(defined)
}

func collectKeys(defined definedKeys, prefix string, node map[string]any) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		defined[key] = struct{}{}
		if child, ok := v.(map[string]any); ok {
			collectKeys(defined, key, child)
		}
	}
}

// Simulation converts the description to SI and applies defaults to every
// top-level key missing from defined.
func (f *File) Simulation(defined definedKeys) (*Simulation, error) {
	units, conflicts, unknown := checkUnits(f.Units)
	if len(conflicts) > 0 {
		return nil, fmt.Errorf("%w: input unit conflict %v", ErrInvalid, conflicts)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("%w: unknown input units %v", ErrInvalid, unknown)
	}
	length := func(v float64) float64 { return SI(v, lengthUnit, units) }
	energy := func(v float64) float64 { return SI(v, energyUnit, units) }
	angle := func(v float64) float64 { return SI(v, angleUnit, units) }

	s := &Simulation{
		Seed:             f.Seed,
		Workers:          f.Workers,
		RNG:              f.RNG,
		Type:             strings.ToUpper(f.Type),
		NSimu:            f.NSimu,
		NPresimu:         f.NPresimu,
		EMin:             energy(f.EMin),
		MinAngle:         angle(f.MinAngle),
		RecoilWidth:      strings.ToUpper(f.RecoilWidth),
		WideAngle:        angle(f.WideAngle),
		PresimPercentile: f.PresimPercentile,
		PresimBinSize:    f.PresimBinSize,
		Stopping:         strings.ToLower(f.Stopping),
		OutputDir:        f.OutputDir,
		Advanced:         f.Advanced,
		MakeDir:          f.MakeDir,
		Beam: Beam{
			Species:      f.Beam.SpeciesFile.species(),
			Energy:       energy(f.Beam.Energy),
			EnergySpread: energy(f.Beam.EnergySpread),
			Angle:        angle(f.Beam.Angle),
			SpotX:        length(f.Beam.SpotX),
			SpotY:        length(f.Beam.SpotY),
			Divergence:   angle(f.Beam.Divergence),
		},
		Recoil: f.Recoil.species(),
		Detector: Detector{
			Type:  strings.ToUpper(f.Detector.Type),
			Angle: angle(f.Detector.Angle),
		},
	}

	for _, l := range f.Layers {
		layer := Layer{
			Name:      l.Name,
			Thickness: length(l.Thickness),
			Density:   l.Density * gramPerCm3,
			Elements:  elements(l.Elements),
		}
		if len(l.Stopping) > 0 {
			layer.Stopping = make(map[int][]StoppingPoint, len(l.Stopping))
			for _, st := range l.Stopping {
				for _, p := range st.Points {
					layer.Stopping[st.Z] = append(layer.Stopping[st.Z], StoppingPoint{
						E:      energy(p[0]),
						S:      SI(p[1], stoppingUnit, units),
						Omega2: SI(p[2], stragglUnit, units),
					})
				}
			}
		}
		s.Layers = append(s.Layers, layer)
	}
	for _, b := range f.Distribution {
		s.Distribution = append(s.Distribution, Breakpoint{Depth: length(b.Depth), Concentration: b.Concentration})
	}
	for _, foil := range f.Detector.Foils {
		s.Detector.Foils = append(s.Detector.Foils, Foil{
			Kind:     strings.ToLower(foil.Kind),
			Length:   length(foil.Length),
			Shape:    strings.ToLower(foil.Shape),
			Size:     [2]float64{length(foil.Size[0]), length(foil.Size[1])},
			Density:  foil.Density * gramPerCm3,
			Elements: elements(foil.Elements),
			Timing:   foil.Timing,
		})
	}

	s.applyDefaults(defined)
	return s, nil
}

func (s *Simulation) applyDefaults(defined definedKeys) {
	sv := reflect.ValueOf(s).Elem()
	for name, value := range defaultValues {
		if defined.isDefined(name) {
			continue
		}
		sv.FieldByName(name).Set(reflect.ValueOf(value))
	}
	if s.Detector.Type == "" {
		s.Detector.Type = TOF
	}
}

func (sf SpeciesFile) species() Species {
	s := Species{Z: sf.Z}
	if len(sf.Isotopes) == 0 {
		s.Isotopes = []Isotope{{M: sf.A * constants.AtomicMassUnit, Fraction: 1}}
		return s
	}
	for _, iso := range sf.Isotopes {
		s.Isotopes = append(s.Isotopes, Isotope{M: iso.A * constants.AtomicMassUnit, Fraction: iso.Fraction})
	}
	return s
}

func elements(ef []ElementFile) []Element {
	out := make([]Element, 0, len(ef))
	for _, e := range ef {
		out = append(out, Element{Z: e.Z, M: e.A * constants.AtomicMassUnit, Fraction: e.Fraction})
	}
	return out
}
