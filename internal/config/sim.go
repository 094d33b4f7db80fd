package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/photonsim.defaults.json"

// EnvPrefix prefixes every environment override (PHOTONSIM_STORE_INDIVIDUAL_PHOTONS, ...).
const EnvPrefix = "PHOTONSIM_"

// DefaultDetectorVolume is the logical volume whose deposits are recorded.
const DefaultDetectorVolume = "detector"

const maxConfigFileSize = 1 * 1024 * 1024 // 1MB

// SimConfig is the root configuration of the bookkeeping engine and its
// sinks. Every field is optional; the Get* methods supply defaults for
// anything left unset, so partial files are safe.
type SimConfig struct {
	// Classification
	CherenkovThresholdMeV     *float64 `json:"cherenkov_threshold_mev,omitempty" yaml:"cherenkov_threshold_mev,omitempty"`
	DecayElectronMinEnergyMeV *float64 `json:"decay_electron_min_energy_mev,omitempty" yaml:"decay_electron_min_energy_mev,omitempty"`
	DecayProcesses            []string `json:"decay_processes,omitempty" yaml:"decay_processes,omitempty"`

	// Deflection splitting
	DeflectionAngleDeg   *float64 `json:"deflection_angle_deg,omitempty" yaml:"deflection_angle_deg,omitempty"`
	SoftScatterProcesses []string `json:"soft_scatter_processes,omitempty" yaml:"soft_scatter_processes,omitempty"`

	// Output toggles
	StoreIndividualPhotons *bool   `json:"store_individual_photons,omitempty" yaml:"store_individual_photons,omitempty"`
	StoreIndividualEdeps   *bool   `json:"store_individual_edeps,omitempty" yaml:"store_individual_edeps,omitempty"`
	DetectorVolume         *string `json:"detector_volume,omitempty" yaml:"detector_volume,omitempty"`

	// Histogram binning
	AngleBins       *int     `json:"angle_bins,omitempty" yaml:"angle_bins,omitempty"`
	DistanceBins    *int     `json:"distance_bins,omitempty" yaml:"distance_bins,omitempty"`
	DistanceMaxMM   *float64 `json:"distance_max_mm,omitempty" yaml:"distance_max_mm,omitempty"`
	TimeBins        *int     `json:"time_bins,omitempty" yaml:"time_bins,omitempty"`
	TimeMaxNs       *float64 `json:"time_max_ns,omitempty" yaml:"time_max_ns,omitempty"`
	WavelengthBins  *int     `json:"wavelength_bins,omitempty" yaml:"wavelength_bins,omitempty"`
	WavelengthMinNm *float64 `json:"wavelength_min_nm,omitempty" yaml:"wavelength_min_nm,omitempty"`
	WavelengthMaxNm *float64 `json:"wavelength_max_nm,omitempty" yaml:"wavelength_max_nm,omitempty"`
	EdepBins        *int     `json:"edep_bins,omitempty" yaml:"edep_bins,omitempty"`
	EdepMaxKeV      *float64 `json:"edep_max_kev,omitempty" yaml:"edep_max_kev,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptySimConfig returns a SimConfig with all fields unset.
func EmptySimConfig() *SimConfig {
	return &SimConfig{}
}

// DefaultSimConfig returns a SimConfig with every field set to its default.
func DefaultSimConfig() *SimConfig {
	c := EmptySimConfig()
	return &SimConfig{
		CherenkovThresholdMeV:     ptrFloat64(c.GetCherenkovThresholdMeV()),
		DecayElectronMinEnergyMeV: ptrFloat64(c.GetDecayElectronMinEnergyMeV()),
		DecayProcesses:            c.GetDecayProcesses(),
		DeflectionAngleDeg:        ptrFloat64(c.GetDeflectionAngleDeg()),
		SoftScatterProcesses:      c.GetSoftScatterProcesses(),
		StoreIndividualPhotons:    ptrBool(c.GetStoreIndividualPhotons()),
		StoreIndividualEdeps:      ptrBool(c.GetStoreIndividualEdeps()),
		DetectorVolume:            ptrString(c.GetDetectorVolume()),
		AngleBins:                 ptrInt(c.GetAngleBins()),
		DistanceBins:              ptrInt(c.GetDistanceBins()),
		DistanceMaxMM:             ptrFloat64(c.GetDistanceMaxMM()),
		TimeBins:                  ptrInt(c.GetTimeBins()),
		TimeMaxNs:                 ptrFloat64(c.GetTimeMaxNs()),
		WavelengthBins:            ptrInt(c.GetWavelengthBins()),
		WavelengthMinNm:           ptrFloat64(c.GetWavelengthMinNm()),
		WavelengthMaxNm:           ptrFloat64(c.GetWavelengthMaxNm()),
		EdepBins:                  ptrInt(c.GetEdepBins()),
		EdepMaxKeV:                ptrFloat64(c.GetEdepMaxKeV()),
	}
}

// LoadSimConfig loads a SimConfig from a .json, .yaml or .yml file.
// Fields omitted from the file keep their defaults.
func LoadSimConfig(path string) (*SimConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptySimConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. Panics if the file cannot be loaded; intended
// for test setup.
func MustLoadDefaultConfig() *SimConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadSimConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// envOverrides mirrors the overridable subset of SimConfig.
type envOverrides struct {
	CherenkovThresholdMeV     *float64 `env:"CHERENKOV_THRESHOLD_MEV"`
	DecayElectronMinEnergyMeV *float64 `env:"DECAY_ELECTRON_MIN_ENERGY_MEV"`
	DeflectionAngleDeg        *float64 `env:"DEFLECTION_ANGLE_DEG"`
	SoftScatterProcesses      []string `env:"SOFT_SCATTER_PROCESSES" envSeparator:","`
	StoreIndividualPhotons    *bool    `env:"STORE_INDIVIDUAL_PHOTONS"`
	StoreIndividualEdeps      *bool    `env:"STORE_INDIVIDUAL_EDEPS"`
	DetectorVolume            *string  `env:"DETECTOR_VOLUME"`
}

// ApplyEnv overrides fields from PHOTONSIM_* environment variables.
func (c *SimConfig) ApplyEnv() error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix})
}

// ApplyEnvFrom overrides fields from the given variables instead of the
// process environment. Keys carry the PHOTONSIM_ prefix.
func (c *SimConfig) ApplyEnvFrom(vars map[string]string) error {
	return c.applyEnv(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func (c *SimConfig) applyEnv(opts env.Options) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.CherenkovThresholdMeV != nil {
		c.CherenkovThresholdMeV = o.CherenkovThresholdMeV
	}
	if o.DecayElectronMinEnergyMeV != nil {
		c.DecayElectronMinEnergyMeV = o.DecayElectronMinEnergyMeV
	}
	if o.DeflectionAngleDeg != nil {
		c.DeflectionAngleDeg = o.DeflectionAngleDeg
	}
	if len(o.SoftScatterProcesses) > 0 {
		c.SoftScatterProcesses = o.SoftScatterProcesses
	}
	if o.StoreIndividualPhotons != nil {
		c.StoreIndividualPhotons = o.StoreIndividualPhotons
	}
	if o.StoreIndividualEdeps != nil {
		c.StoreIndividualEdeps = o.StoreIndividualEdeps
	}
	if o.DetectorVolume != nil {
		c.DetectorVolume = o.DetectorVolume
	}
	return c.Validate()
}

// Validate checks that the configuration values are valid.
func (c *SimConfig) Validate() error {
	if c.CherenkovThresholdMeV != nil && *c.CherenkovThresholdMeV < 0 {
		return fmt.Errorf("cherenkov_threshold_mev must be non-negative, got %f", *c.CherenkovThresholdMeV)
	}
	if c.DecayElectronMinEnergyMeV != nil && *c.DecayElectronMinEnergyMeV < 0 {
		return fmt.Errorf("decay_electron_min_energy_mev must be non-negative, got %f", *c.DecayElectronMinEnergyMeV)
	}
	if c.DeflectionAngleDeg != nil {
		if *c.DeflectionAngleDeg <= 0 || *c.DeflectionAngleDeg >= 180 {
			return fmt.Errorf("deflection_angle_deg must be in (0, 180), got %f", *c.DeflectionAngleDeg)
		}
	}
	if slices.Contains(c.SoftScatterProcesses, "") {
		return fmt.Errorf("soft_scatter_processes must not contain empty names")
	}
	if slices.Contains(c.DecayProcesses, "") {
		return fmt.Errorf("decay_processes must not contain empty names")
	}

	bins := map[string]*int{
		"angle_bins":      c.AngleBins,
		"distance_bins":   c.DistanceBins,
		"time_bins":       c.TimeBins,
		"wavelength_bins": c.WavelengthBins,
		"edep_bins":       c.EdepBins,
	}
	for name, v := range bins {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	ranges := map[string]*float64{
		"distance_max_mm": c.DistanceMaxMM,
		"time_max_ns":     c.TimeMaxNs,
		"edep_max_kev":    c.EdepMaxKeV,
	}
	for name, v := range ranges {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %f", name, *v)
		}
	}
	if c.GetWavelengthMaxNm() <= c.GetWavelengthMinNm() {
		return fmt.Errorf("wavelength_max_nm (%f) must exceed wavelength_min_nm (%f)",
			c.GetWavelengthMaxNm(), c.GetWavelengthMinNm())
	}
	return nil
}

// GetCherenkovThresholdMeV returns the cherenkov_threshold_mev value or the default.
func (c *SimConfig) GetCherenkovThresholdMeV() float64 {
	if c.CherenkovThresholdMeV == nil {
		return 160.0
	}
	return *c.CherenkovThresholdMeV
}

// GetDecayElectronMinEnergyMeV returns the decay_electron_min_energy_mev value or the default.
func (c *SimConfig) GetDecayElectronMinEnergyMeV() float64 {
	if c.DecayElectronMinEnergyMeV == nil {
		return 1.0
	}
	return *c.DecayElectronMinEnergyMeV
}

// GetDecayProcesses returns the decay_processes value or the default.
func (c *SimConfig) GetDecayProcesses() []string {
	if len(c.DecayProcesses) == 0 {
		return []string{"Decay", "DecayWithSpin", "muMinusCaptureAtRest"}
	}
	return slices.Clone(c.DecayProcesses)
}

// GetDeflectionAngleDeg returns the deflection_angle_deg value or the default.
func (c *SimConfig) GetDeflectionAngleDeg() float64 {
	if c.DeflectionAngleDeg == nil {
		return 5.0
	}
	return *c.DeflectionAngleDeg
}

// GetSoftScatterProcesses returns the soft_scatter_processes value or the default.
func (c *SimConfig) GetSoftScatterProcesses() []string {
	if len(c.SoftScatterProcesses) == 0 {
		return []string{"hadElastic", "CoulombScat", "msc", "hIoni", "ionIoni"}
	}
	return slices.Clone(c.SoftScatterProcesses)
}

// GetStoreIndividualPhotons returns the store_individual_photons value or the default.
func (c *SimConfig) GetStoreIndividualPhotons() bool {
	if c.StoreIndividualPhotons == nil {
		return true
	}
	return *c.StoreIndividualPhotons
}

// GetStoreIndividualEdeps returns the store_individual_edeps value or the default.
func (c *SimConfig) GetStoreIndividualEdeps() bool {
	if c.StoreIndividualEdeps == nil {
		return true
	}
	return *c.StoreIndividualEdeps
}

// GetDetectorVolume returns the detector_volume value or the default.
func (c *SimConfig) GetDetectorVolume() string {
	if c.DetectorVolume == nil {
		return DefaultDetectorVolume
	}
	return *c.DetectorVolume
}

// GetAngleBins returns the angle_bins value or the default.
func (c *SimConfig) GetAngleBins() int {
	if c.AngleBins == nil {
		return 180
	}
	return *c.AngleBins
}

// GetDistanceBins returns the distance_bins value or the default.
func (c *SimConfig) GetDistanceBins() int {
	if c.DistanceBins == nil {
		return 200
	}
	return *c.DistanceBins
}

// GetDistanceMaxMM returns the distance_max_mm value or the default.
func (c *SimConfig) GetDistanceMaxMM() float64 {
	if c.DistanceMaxMM == nil {
		return 10000
	}
	return *c.DistanceMaxMM
}

// GetTimeBins returns the time_bins value or the default.
func (c *SimConfig) GetTimeBins() int {
	if c.TimeBins == nil {
		return 200
	}
	return *c.TimeBins
}

// GetTimeMaxNs returns the time_max_ns value or the default.
func (c *SimConfig) GetTimeMaxNs() float64 {
	if c.TimeMaxNs == nil {
		return 100
	}
	return *c.TimeMaxNs
}

// GetWavelengthBins returns the wavelength_bins value or the default.
func (c *SimConfig) GetWavelengthBins() int {
	if c.WavelengthBins == nil {
		return 120
	}
	return *c.WavelengthBins
}

// GetWavelengthMinNm returns the wavelength_min_nm value or the default.
func (c *SimConfig) GetWavelengthMinNm() float64 {
	if c.WavelengthMinNm == nil {
		return 200
	}
	return *c.WavelengthMinNm
}

// GetWavelengthMaxNm returns the wavelength_max_nm value or the default.
func (c *SimConfig) GetWavelengthMaxNm() float64 {
	if c.WavelengthMaxNm == nil {
		return 800
	}
	return *c.WavelengthMaxNm
}

// GetEdepBins returns the edep_bins value or the default.
func (c *SimConfig) GetEdepBins() int {
	if c.EdepBins == nil {
		return 100
	}
	return *c.EdepBins
}

// GetEdepMaxKeV returns the edep_max_kev value or the default.
func (c *SimConfig) GetEdepMaxKeV() float64 {
	if c.EdepMaxKeV == nil {
		return 1000
	}
	return *c.EdepMaxKeV
}
