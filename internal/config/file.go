package config

// File mirrors the simulation description as written by the user, in input units.
type File struct {
	Seed     uint64  `toml:"Seed" yaml:"Seed"`
	Workers  int     `toml:"Workers" yaml:"Workers"`
	RNG      string  `toml:"RNG" yaml:"RNG"`
	Type     string  `toml:"Type" yaml:"Type"`
	NSimu    int     `toml:"NSimu" yaml:"NSimu"`
	NPresimu int     `toml:"NPresimu" yaml:"NPresimu"`
	EMin     float64 `toml:"EMin" yaml:"EMin"`
	MinAngle float64 `toml:"MinAngle" yaml:"MinAngle"`

	RecoilWidth      string  `toml:"RecoilWidth" yaml:"RecoilWidth"`
	WideAngle        float64 `toml:"WideAngle" yaml:"WideAngle"`
	PresimPercentile float64 `toml:"PresimPercentile" yaml:"PresimPercentile"`
	PresimBinSize    int     `toml:"PresimBinSize" yaml:"PresimBinSize"`

	Stopping  string   `toml:"Stopping" yaml:"Stopping"`
	OutputDir string   `toml:"OutputDir" yaml:"OutputDir"`
	Advanced  bool     `toml:"Advanced" yaml:"Advanced"`
	MakeDir   bool     `toml:"MakeDir" yaml:"MakeDir"`
	Units     []string `toml:"InputUnits" yaml:"InputUnits"`

	Beam         BeamFile         `toml:"Beam" yaml:"Beam"`
	Recoil       SpeciesFile      `toml:"Recoil" yaml:"Recoil"`
	Layers       []LayerFile      `toml:"Layers" yaml:"Layers"`
	Distribution []BreakpointFile `toml:"Distribution" yaml:"Distribution"`
	Detector     DetectorFile     `toml:"Detector" yaml:"Detector"`
}

type IsotopeFile struct {
	A        float64 `toml:"A" yaml:"A"`
	Fraction float64 `toml:"Fraction" yaml:"Fraction"`
}

type SpeciesFile struct {
	Z        int           `toml:"Z" yaml:"Z"`
	A        float64       `toml:"A" yaml:"A"` // [u]
	Isotopes []IsotopeFile `toml:"Isotopes" yaml:"Isotopes"`
}

type BeamFile struct {
	SpeciesFile `yaml:",inline"`

	Energy       float64 `toml:"Energy" yaml:"Energy"`
	EnergySpread float64 `toml:"EnergySpread" yaml:"EnergySpread"` // standard deviation
	Angle        float64 `toml:"Angle" yaml:"Angle"`               // to the surface normal
	SpotX        float64 `toml:"SpotX" yaml:"SpotX"`
	SpotY        float64 `toml:"SpotY" yaml:"SpotY"`
	Divergence   float64 `toml:"Divergence" yaml:"Divergence"`
}

type ElementFile struct {
	Z        int     `toml:"Z" yaml:"Z"`
	A        float64 `toml:"A" yaml:"A"`
	Fraction float64 `toml:"Fraction" yaml:"Fraction"`
}

type StoppingFile struct {
	Z int `toml:"Z" yaml:"Z"`
	// rows of energy, stopping, straggling variance per length
	Points [][3]float64 `toml:"Points" yaml:"Points"`
}

type LayerFile struct {
	Name      string         `toml:"Name" yaml:"Name"`
	Thickness float64        `toml:"Thickness" yaml:"Thickness"`
	Density   float64        `toml:"Density" yaml:"Density"` // [g/cm3]
	Elements  []ElementFile  `toml:"Elements" yaml:"Elements"`
	Stopping  []StoppingFile `toml:"Stopping" yaml:"Stopping"`
}

type BreakpointFile struct {
	Depth         float64 `toml:"Depth" yaml:"Depth"`
	Concentration float64 `toml:"Concentration" yaml:"Concentration"`
}

type FoilFile struct {
	Kind     string        `toml:"Kind" yaml:"Kind"` // gap | foil
	Length   float64       `toml:"Length" yaml:"Length"`
	Shape    string        `toml:"Shape" yaml:"Shape"` // circle | rectangle
	Size     [2]float64    `toml:"Size" yaml:"Size"`
	Density  float64       `toml:"Density" yaml:"Density"`
	Elements []ElementFile `toml:"Elements" yaml:"Elements"`
	Timing   bool          `toml:"Timing" yaml:"Timing"`
}

type DetectorFile struct {
	Type  string     `toml:"Type" yaml:"Type"`
	Angle float64    `toml:"Angle" yaml:"Angle"` // to the beam
	Foils []FoilFile `toml:"Foils" yaml:"Foils"`
}
