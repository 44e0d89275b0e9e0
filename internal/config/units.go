package config

import (
	"math"
	"slices"

	"github.com/wildstyl3r/erdmc/internal/constants"
)

var unitToSI = map[string]float64{
	"m":   1,                   // [m]
	"mm":  1e-3,                // [m]
	"um":  1e-6,                // [m]
	"nm":  constants.NanoMeter, // [m]
	"A":   1e-10,               // [m]
	"J":   1,                   // [J]
	"eV":  constants.ElectronVolt,
	"keV": constants.KeV,
	"MeV": constants.MeV,
	"rad": 1,
	"deg": math.Pi / 180.,
}

type UnitClass int

const (
	Length UnitClass = iota
	Energy
	Angle
)

var unitsInClass = map[UnitClass][]string{
	Length: {"m", "mm", "um", "nm", "A"},
	Energy: {"J", "eV", "keV", "MeV"},
	Angle:  {"rad", "deg"},
}

var classesOfUnits = func() map[string]UnitClass {
	m := map[string]UnitClass{}
	for class, units := range unitsInClass {
		for _, u := range units {
			m[u] = class
		}
	}
	return m
}()

type UnitElement = struct {
	Class UnitClass
	Power int
}

var defaultUnits = []string{"MeV", "nm", "deg"}

// checkUnits completes units with the default unit of every class not listed.
func checkUnits(units []string) (extended, conflicts, unknown []string) {
	classes := map[UnitClass]struct{}{}
	for _, unit := range units {
		class, known := classesOfUnits[unit]
		if !known {
			unknown = append(unknown, unit)
			continue
		}
		if _, some := classes[class]; some {
			conflicts = append(conflicts, unit)
		} else {
			classes[class] = struct{}{}
		}
	}
	extended = slices.Clone(units)
	for _, unit := range defaultUnits {
		if _, some := classes[classesOfUnits[unit]]; !some {
			extended = append(extended, unit)
		}
	}
	return
}

// SI converts v, whose dimension is the product of classes, from units to SI.
func SI(v float64, classes []UnitElement, units []string) float64 {
	for _, uc := range classes {
		i := slices.IndexFunc(units, func(u string) bool {
			c, ok := classesOfUnits[u]
			return ok && c == uc.Class
		})
		if i < 0 {
			continue
		}
		v *= math.Pow(unitToSI[units[i]], float64(uc.Power))
	}
	return v
}

var (
	lengthUnit   = []UnitElement{{Class: Length, Power: 1}}
	energyUnit   = []UnitElement{{Class: Energy, Power: 1}}
	angleUnit    = []UnitElement{{Class: Angle, Power: 1}}
	stoppingUnit = []UnitElement{{Class: Energy, Power: 1}, {Class: Length, Power: -1}}
	stragglUnit  = []UnitElement{{Class: Energy, Power: 2}, {Class: Length, Power: -1}}
)

const (
	gramPerCm3 = 1e3 // [kg/m^3]
)
