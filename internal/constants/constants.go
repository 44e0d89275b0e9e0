package constants

const ElectronCharge float64 = 1.602176634e-19           // [C]
const ElectronMass float64 = 9.1093837139e-31            // [kg]
const FreeSpacePermittivityE0 float64 = 8.8541878188e-12 // [m^-3 kg^{-1} s^4 A^2]
const AtomicMassUnit float64 = 1.66053906892e-27         // [kg]
const BohrRadius float64 = 5.29177210544e-11             // [m]

// e^2 / (4 pi eps0)
const CoulombConstant float64 = ElectronCharge * ElectronCharge / (4. * 3.141592653589793 * FreeSpacePermittivityE0) // [J m]

const MeV float64 = 1e6 * ElectronCharge // [J]
const KeV float64 = 1e3 * ElectronCharge // [J]
const NanoMeter float64 = 1e-9           // [m]

const ReducedPlanck float64 = 1.054571817e-34                 // [J s]
const BohrVelocity float64 = CoulombConstant / ReducedPlanck // [m/s]
const ElectronVolt float64 = ElectronCharge                  // [J]
