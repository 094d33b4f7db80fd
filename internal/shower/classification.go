package shower

import "strings"

// Classification defaults.
const (
	// DefaultCherenkovThresholdMeV is the minimum momentum (MeV/c) for a
	// secondary pion to be classified.
	DefaultCherenkovThresholdMeV = 160.0
	// DefaultDecayElectronMinEnergyMeV excludes atomic-relaxation electrons.
	DefaultDecayElectronMinEnergyMeV = 1.0
	// InelasticProcessMarker identifies hadronic inelastic creator processes
	// (pi+Inelastic, protonInelastic, ...).
	InelasticProcessMarker = "Inelastic"
	// DeflectionProcessPrefix tags tracks spawned by a deflection split.
	DeflectionProcessPrefix = "Deflection"
)

// DefaultDecayProcesses are the free-decay and capture-at-rest processes
// that can create decay electrons.
var DefaultDecayProcesses = []string{"Decay", "DecayWithSpin", "muMinusCaptureAtRest"}

// ClassifierConfig holds the thresholds used by the classification rules.
type ClassifierConfig struct {
	CherenkovThresholdMeV     float64
	DecayElectronMinEnergyMeV float64
	DecayProcesses            []string
}

// DefaultClassifierConfig returns the classifier settings used when no
// configuration file is loaded.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		CherenkovThresholdMeV:     DefaultCherenkovThresholdMeV,
		DecayElectronMinEnergyMeV: DefaultDecayElectronMinEnergyMeV,
		DecayProcesses:            append([]string(nil), DefaultDecayProcesses...),
	}
}

// Classifier evaluates the category rules for a newly created track.
// It holds no per-event state; subID counters live in the EventContext.
type Classifier struct {
	cfg   ClassifierConfig
	decay map[string]bool
}

// NewClassifier creates a classifier from cfg.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	decay := make(map[string]bool, len(cfg.DecayProcesses))
	for _, p := range cfg.DecayProcesses {
		decay[p] = true
	}
	return &Classifier{cfg: cfg, decay: decay}
}

// Evaluate applies the rules in priority order and returns the matched
// category together with the category parent. Unmatched tracks return
// Uncategorized and their nearest classified ancestor, which lets later
// genealogy walks skip them in one hop.
func (c *Classifier) Evaluate(reg *TrackRegistry, rec TrackRecord) (Category, int) {
	// 1. Primary
	if rec.ParentTrackID == RootTrackID {
		return Primary, RootTrackID
	}

	parent, hasParent := reg.Lookup(rec.ParentTrackID)

	// 2. Decay electron (muon or charged pion decay, capture at rest)
	if c.isDecayElectron(rec, parent, hasParent) {
		return DecayElectron, rec.ParentTrackID
	}

	// 3. Gamma from neutral pion decay
	if c.isGammaShower(rec, parent, hasParent) {
		return GammaShower, rec.ParentTrackID
	}

	// 4. Secondary pion above the Cherenkov threshold
	if c.isSecondaryPion(rec, parent, hasParent) {
		return SecondaryPion, reg.NearestClassified(rec.ParentTrackID)
	}

	return Uncategorized, reg.NearestClassified(rec.ParentTrackID)
}

func (c *Classifier) isDecayElectron(rec, parent TrackRecord, hasParent bool) bool {
	if !isElectronLike(rec.ParticleName) || !c.decay[rec.CreatorProcess] || !hasParent {
		return false
	}
	if !isMuon(parent.ParticleName) && !IsChargedPion(parent.ParticleName) {
		return false
	}
	return rec.Energy > c.cfg.DecayElectronMinEnergyMeV
}

func (c *Classifier) isGammaShower(rec, parent TrackRecord, hasParent bool) bool {
	return rec.ParticleName == ParticleGamma &&
		rec.CreatorProcess == "Decay" &&
		hasParent && parent.ParticleName == ParticlePiZero
}

func (c *Classifier) isSecondaryPion(rec, parent TrackRecord, hasParent bool) bool {
	if !IsChargedPion(rec.ParticleName) {
		return false
	}
	inelastic := strings.Contains(rec.CreatorProcess, InelasticProcessMarker)
	deflected := IsDeflectionProcess(rec.CreatorProcess)
	pionParent := hasParent && IsChargedPion(parent.ParticleName) && parent.Category.Classified()
	if !inelastic && !deflected && !pionParent {
		return false
	}
	return rec.Momentum.Norm() >= c.cfg.CherenkovThresholdMeV
}

// IsDeflectionProcess reports whether process is a synthetic split marker.
func IsDeflectionProcess(process string) bool {
	return strings.HasPrefix(process, DeflectionProcessPrefix)
}

// DeflectionProcessName builds the creator process tag for a split spawn.
func DeflectionProcessName(original string) string {
	return DeflectionProcessPrefix + "_" + original
}
