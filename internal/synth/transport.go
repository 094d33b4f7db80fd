// Package synth provides a toy transport engine that produces shower-like
// event streams for demos and end-to-end tests.
//
// The physics is deliberately crude: straight steps of fixed length through
// water, constant dE/dx, Gaussian multiple scattering with an occasional
// large-angle hadronic elastic scatter, pion inelastic interactions, pion
// and muon decays, neutral pion decay to photon pairs, pair conversion and
// Cherenkov emission above threshold.
package synth

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/photonsim/internal/shower"
)

// Physical constants (MeV, mm, ns).
const (
	speedOfLight    = 299.792458 // mm/ns
	refractiveIndex = 1.33
	radiationLength = 360.8 // mm, water

	massElectron = 0.51099895
	massMuon     = 105.6583755
	massPion     = 139.57039
	massPiZero   = 134.9768
)

var pdgCodes = map[string]int{
	shower.ParticleElectron: 11,
	shower.ParticlePositron: -11,
	shower.ParticleMuMinus:  13,
	shower.ParticleMuPlus:   -13,
	shower.ParticlePiPlus:   211,
	shower.ParticlePiMinus:  -211,
	shower.ParticlePiZero:   111,
	shower.ParticleGamma:    22,
}

var masses = map[string]float64{
	shower.ParticleElectron: massElectron,
	shower.ParticlePositron: massElectron,
	shower.ParticleMuMinus:  massMuon,
	shower.ParticleMuPlus:   massMuon,
	shower.ParticlePiPlus:   massPion,
	shower.ParticlePiMinus:  massPion,
	shower.ParticlePiZero:   massPiZero,
	shower.ParticleGamma:    0,
}

// Handler consumes the generated events and answers each step with the
// bookkeeping outcome. *shower.Engine and *stream.Recorder implement it.
type Handler interface {
	Handle(ctx context.Context, ev shower.Event) (shower.StepOutcome, error)
}

// Transport generates events. Fields may be adjusted after NewTransport.
type Transport struct {
	// Primary beam
	PrimaryParticle  string
	PrimaryEnergyMeV float64 // kinetic

	// Stepping. MaxTracks caps IDs per event, photons included.
	StepLengthMM     float64
	DEDxMeVPerMM     float64
	CutoffMeV        float64
	MaxTracks        int
	MaxStepsPerTrack int

	// Interaction lengths (mm) and the per-step large-angle scatter odds
	// for charged pions.
	PionInelasticMM  float64
	PionDecayMM      float64
	PairConversionMM float64
	HadElasticProb   float64
	HadElasticMinDeg float64
	HadElasticMaxDeg float64

	// Cherenkov photons per mm at saturation, before sin^2 scaling.
	PhotonYieldPerMM  float64
	MaxPhotonsPerStep int
	WavelengthMinNm   float64
	WavelengthMaxNm   float64

	Volume string

	src *rand.PCG
	rng *rand.Rand
}

// NewTransport returns a Transport with defaults suited to a 2 GeV pion in
// water, seeded deterministically.
func NewTransport(seed uint64) *Transport {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Transport{
		PrimaryParticle:   shower.ParticlePiPlus,
		PrimaryEnergyMeV:  2000,
		StepLengthMM:      10,
		DEDxMeVPerMM:      0.2,
		CutoffMeV:         1,
		MaxTracks:         5000,
		MaxStepsPerTrack:  2000,
		PionInelasticMM:   800,
		PionDecayMM:       50000,
		PairConversionMM:  470,
		HadElasticProb:    0.02,
		HadElasticMinDeg:  6,
		HadElasticMaxDeg:  40,
		PhotonYieldPerMM:  4,
		MaxPhotonsPerStep: 20,
		WavelengthMinNm:   300,
		WavelengthMaxNm:   600,
		Volume:            "detector",
		src:               src,
		rng:               rand.New(src),
	}
}

// Summary counts what one Run generated.
type Summary struct {
	Events  int
	Tracks  int
	Steps   int
	Photons int
	Spawns  int
}

type track struct {
	id       int
	particle string
	pos      r3.Vector
	mom      r3.Vector // MeV/c
	time     float64
	steps    int
}

func (t *track) mass() float64 { return masses[t.particle] }

func (t *track) kinetic() float64 {
	m := t.mass()
	return math.Sqrt(t.mom.Norm2()+m*m) - m
}

func (t *track) beta() float64 {
	p := t.mom.Norm()
	if p == 0 {
		return 0
	}
	m := t.mass()
	return p / math.Sqrt(p*p+m*m)
}

// eventState is the transport bookkeeping of one event.
type eventState struct {
	h       Handler
	nextID  int
	stack   []*track
	summary *Summary
}

func (s *eventState) newID() int {
	s.nextID++
	return s.nextID
}

// Run generates events [first, first+n) and feeds them to h.
func (t *Transport) Run(ctx context.Context, h Handler, first, n int) (Summary, error) {
	var sum Summary
	for i := range n {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := t.RunEvent(ctx, h, first+i, &sum); err != nil {
			return sum, fmt.Errorf("event %d: %w", first+i, err)
		}
	}
	return sum, nil
}

// RunEvent generates one event and adds its counts to sum.
func (t *Transport) RunEvent(ctx context.Context, h Handler, eventID int, sum *Summary) error {
	if _, ok := masses[t.PrimaryParticle]; !ok {
		return fmt.Errorf("unsupported primary %q", t.PrimaryParticle)
	}
	st := &eventState{h: h, summary: sum}

	if _, err := h.Handle(ctx, shower.EventBoundary{
		Kind: shower.BoundaryBegin, EventID: eventID, PrimaryEnergy: t.PrimaryEnergyMeV,
	}); err != nil {
		return err
	}

	m := masses[t.PrimaryParticle]
	p := math.Sqrt(t.PrimaryEnergyMeV*t.PrimaryEnergyMeV + 2*t.PrimaryEnergyMeV*m)
	if err := t.create(ctx, st, t.PrimaryParticle, shower.RootTrackID, r3.Vector{}, r3.Vector{Z: p}, 0, ""); err != nil {
		return err
	}

	for len(st.stack) > 0 {
		tr := st.stack[len(st.stack)-1]
		st.stack = st.stack[:len(st.stack)-1]
		if err := t.transport(ctx, st, tr); err != nil {
			return err
		}
	}

	if _, err := h.Handle(ctx, shower.EventBoundary{Kind: shower.BoundaryEnd, EventID: eventID}); err != nil {
		return err
	}
	sum.Events++
	return nil
}

// create registers a new track with the handler and queues it.
func (t *Transport) create(ctx context.Context, st *eventState, particle string, parent int,
	pos, mom r3.Vector, time float64, process string) error {
	if st.nextID >= t.MaxTracks {
		return nil
	}
	tr := &track{id: st.newID(), particle: particle, pos: pos, mom: mom, time: time}
	if _, err := st.h.Handle(ctx, shower.TrackCreated{
		TrackID:        tr.id,
		ParticleName:   particle,
		PDGCode:        pdgCodes[particle],
		ParentTrackID:  parent,
		Position:       pos,
		Momentum:       mom,
		KineticEnergy:  tr.kinetic(),
		Time:           time,
		CreatorProcess: process,
	}); err != nil {
		return err
	}
	st.summary.Tracks++
	st.stack = append(st.stack, tr)
	return nil
}

// transport steps tr until it stops, interacts or is split.
func (t *Transport) transport(ctx context.Context, st *eventState, tr *track) error {
	for tr.steps < t.MaxStepsPerTrack {
		done, err := t.step(ctx, st, tr)
		if err != nil || done {
			return err
		}
	}
	return nil
}

// step advances tr by one step. It reports whether the track is finished.
func (t *Transport) step(ctx context.Context, st *eventState, tr *track) (bool, error) {
	tr.steps++
	switch tr.particle {
	case shower.ParticlePiZero:
		return true, t.piZeroDecay(ctx, st, tr)
	case shower.ParticleGamma:
		return t.gammaStep(ctx, st, tr)
	}

	dir := tr.mom.Normalize()
	length := t.StepLengthMM
	startPos, startTime := tr.pos, tr.time
	beta := tr.beta()

	// Continuous loss
	kin := tr.kinetic()
	edep := math.Min(t.DEDxMeVPerMM*length, kin)
	kin -= edep

	process := "msc"
	var interaction string
	if shower.IsChargedPion(tr.particle) {
		switch {
		case t.rng.Float64() < length/t.PionInelasticMM:
			interaction = tr.particle + "Inelastic"
		case t.rng.Float64() < length/t.PionDecayMM:
			interaction = "Decay"
		case t.rng.Float64() < t.HadElasticProb:
			process = "hadElastic"
		}
	}

	// Direction change
	var theta float64
	if process == "hadElastic" {
		theta = distuv.Uniform{Min: t.HadElasticMinDeg, Max: t.HadElasticMaxDeg, Src: t.src}.Rand() * math.Pi / 180
	} else if p := tr.mom.Norm(); p > 0 && beta > 0 {
		theta0 := 13.6 / (p * beta) * math.Sqrt(length/radiationLength)
		theta = math.Abs(distuv.Normal{Mu: 0, Sigma: theta0, Src: t.src}.Rand())
	}
	newDir := rotate(dir, theta, 2*math.Pi*t.rng.Float64())

	tr.pos = tr.pos.Add(dir.Mul(length))
	if beta > 0 {
		tr.time += length / (beta * speedOfLight)
	}
	m := tr.mass()
	p := math.Sqrt(math.Max(kin*kin+2*kin*m, 0))
	tr.mom = newDir.Mul(p)

	status := shower.StatusAlive
	stopped := kin < t.CutoffMeV
	if interaction != "" || stopped {
		status = shower.StatusStopAndKill
	}
	if interaction != "" {
		process = interaction
	} else if stopped {
		process = ionisationProcess(tr.particle)
	}

	if err := t.emitCherenkov(ctx, st, tr, startPos, startTime, dir, beta, length); err != nil {
		return true, err
	}

	out, err := st.h.Handle(ctx, shower.StepCompleted{
		TrackID:           tr.id,
		StepNumber:        tr.steps,
		ProcessName:       process,
		MomentumDirection: newDir,
		Momentum:          tr.mom,
		KineticEnergy:     kin,
		Position:          tr.pos,
		Time:              tr.time,
		Status:            status,
		EnergyDeposit:     edep,
		Volume:            t.Volume,
	})
	if err != nil {
		return true, err
	}
	st.summary.Steps++

	if out.Spawn != nil {
		st.summary.Spawns++
		if err := t.spawn(ctx, st, out.Spawn); err != nil {
			return true, err
		}
	}
	if out.Terminate {
		return true, nil
	}

	switch {
	case interaction == "Decay":
		return true, t.pionDecay(ctx, st, tr)
	case interaction != "":
		return true, t.pionInelastic(ctx, st, tr, interaction)
	case stopped:
		return true, t.stopped(ctx, st, tr)
	}
	return false, nil
}

// spawn creates the continuation track the engine asked for.
func (t *Transport) spawn(ctx context.Context, st *eventState, sp *shower.TrackSpawn) error {
	if st.nextID >= t.MaxTracks {
		return nil
	}
	tr := &track{id: st.newID(), particle: sp.ParticleName, pos: sp.Position, mom: sp.Momentum, time: sp.Time}
	if _, err := st.h.Handle(ctx, sp.Created(tr.id)); err != nil {
		return err
	}
	st.summary.Tracks++
	st.stack = append(st.stack, tr)
	return nil
}

func ionisationProcess(particle string) string {
	switch {
	case isMuonName(particle):
		return "muIoni"
	case shower.IsChargedPion(particle):
		return "hIoni"
	}
	return "eIoni"
}

func isMuonName(name string) bool {
	return name == shower.ParticleMuMinus || name == shower.ParticleMuPlus
}

// emitCherenkov emits photons along the step from start in direction dir.
func (t *Transport) emitCherenkov(ctx context.Context, st *eventState, tr *track,
	start r3.Vector, startTime float64, dir r3.Vector, beta, length float64) error {
	cosTheta := 1 / (refractiveIndex * beta)
	if beta == 0 || cosTheta >= 1 {
		return nil
	}
	lambda := t.PhotonYieldPerMM * length * (1 - cosTheta*cosTheta)
	if lambda <= 0 {
		return nil
	}
	n := int(distuv.Poisson{Lambda: lambda, Src: t.src}.Rand())
	n = min(n, t.MaxPhotonsPerStep)
	theta := math.Acos(cosTheta)
	wl := distuv.Uniform{Min: t.WavelengthMinNm, Max: t.WavelengthMaxNm, Src: t.src}
	for range n {
		if st.nextID >= t.MaxTracks {
			return nil
		}
		f := t.rng.Float64()
		if _, err := st.h.Handle(ctx, shower.PhotonEmitted{
			TrackID:        st.newID(),
			ParentTrackID:  tr.id,
			Position:       start.Add(dir.Mul(f * length)),
			Direction:      rotate(dir, theta, 2*math.Pi*t.rng.Float64()),
			Time:           startTime + f*length/(beta*speedOfLight),
			Wavelength:     wl.Rand(),
			CreatorProcess: "Cerenkov",
		}); err != nil {
			return err
		}
		st.summary.Photons++
	}
	return nil
}

func (t *Transport) gammaStep(ctx context.Context, st *eventState, tr *track) (bool, error) {
	e := tr.mom.Norm()
	dir := tr.mom.Normalize()
	if e < 2*massElectron+t.CutoffMeV {
		return true, t.finalStep(ctx, st, tr, "phot", e)
	}
	dist := distuv.Exponential{Rate: 1 / t.PairConversionMM, Src: t.src}.Rand()
	tr.pos = tr.pos.Add(dir.Mul(dist))
	tr.time += dist / speedOfLight
	if err := t.finalStep(ctx, st, tr, "conv", 0); err != nil {
		return true, err
	}

	avail := e - 2*massElectron
	frac := distuv.Uniform{Min: 0.1, Max: 0.9, Src: t.src}.Rand()
	for i, name := range []string{shower.ParticleElectron, shower.ParticlePositron} {
		kin := avail * frac
		if i == 1 {
			kin = avail * (1 - frac)
		}
		p := math.Sqrt(kin*kin + 2*kin*massElectron)
		d := rotate(dir, massElectron/math.Max(e, 1), 2*math.Pi*t.rng.Float64())
		if err := t.create(ctx, st, name, tr.id, tr.pos, d.Mul(p), tr.time, "conv"); err != nil {
			return true, err
		}
	}
	return true, nil
}

// finalStep reports a terminating step with the given deposit.
func (t *Transport) finalStep(ctx context.Context, st *eventState, tr *track, process string, edep float64) error {
	_, err := st.h.Handle(ctx, shower.StepCompleted{
		TrackID:           tr.id,
		StepNumber:        tr.steps,
		ProcessName:       process,
		MomentumDirection: tr.mom.Normalize(),
		Position:          tr.pos,
		Time:              tr.time,
		Status:            shower.StatusStopAndKill,
		EnergyDeposit:     edep,
		Volume:            t.Volume,
	})
	if err == nil {
		st.summary.Steps++
	}
	return err
}

func (t *Transport) piZeroDecay(ctx context.Context, st *eventState, tr *track) error {
	if err := t.finalStep(ctx, st, tr, "Decay", 0); err != nil {
		return err
	}
	// Isotropic back-to-back photons in the rest frame, crudely boosted by
	// sharing the pion's momentum.
	e := math.Sqrt(tr.mom.Norm2() + massPiZero*massPiZero)
	frac := distuv.Uniform{Min: 0.2, Max: 0.8, Src: t.src}.Rand()
	axis := tr.mom.Normalize()
	if axis == (r3.Vector{}) {
		axis = r3.Vector{Z: 1}
	}
	opening := math.Min(2*massPiZero/e, math.Pi/2)
	phi := 2 * math.Pi * t.rng.Float64()
	for i, f := range []float64{frac, 1 - frac} {
		d := rotate(axis, opening*(1-f), phi+float64(i)*math.Pi)
		if err := t.create(ctx, st, shower.ParticleGamma, tr.id, tr.pos, d.Mul(e*f), tr.time, "Decay"); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) pionInelastic(ctx context.Context, st *eventState, tr *track, process string) error {
	p := tr.mom.Norm()
	if p < 2*massPion {
		return nil
	}
	n := 1 + t.rng.IntN(3)
	axis := tr.mom.Normalize()
	for range n {
		name := []string{shower.ParticlePiPlus, shower.ParticlePiMinus, shower.ParticlePiZero}[t.rng.IntN(3)]
		frac := distuv.Uniform{Min: 0.15, Max: 0.6, Src: t.src}.Rand()
		theta := math.Abs(distuv.Normal{Mu: 0, Sigma: 0.35, Src: t.src}.Rand())
		d := rotate(axis, theta, 2*math.Pi*t.rng.Float64())
		if err := t.create(ctx, st, name, tr.id, tr.pos, d.Mul(p*frac), tr.time, process); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) pionDecay(ctx context.Context, st *eventState, tr *track) error {
	mu := shower.ParticleMuPlus
	if tr.particle == shower.ParticlePiMinus {
		mu = shower.ParticleMuMinus
	}
	// Two-body decay momentum is 29.8 MeV/c in the rest frame.
	p := math.Max(tr.mom.Norm()*0.79, 29.8)
	d := rotate(tr.mom.Normalize(), 0.05, 2*math.Pi*t.rng.Float64())
	if d == (r3.Vector{}) {
		d = randomDirection(t.rng)
	}
	return t.create(ctx, st, mu, tr.id, tr.pos, d.Mul(p), tr.time, "Decay")
}

// stopped handles decay at rest of pions and muons.
func (t *Transport) stopped(ctx context.Context, st *eventState, tr *track) error {
	switch {
	case shower.IsChargedPion(tr.particle):
		mu := shower.ParticleMuPlus
		if tr.particle == shower.ParticlePiMinus {
			mu = shower.ParticleMuMinus
		}
		return t.create(ctx, st, mu, tr.id, tr.pos, randomDirection(t.rng).Mul(29.8), tr.time, "Decay")
	case isMuonName(tr.particle):
		e := shower.ParticlePositron
		if tr.particle == shower.ParticleMuMinus {
			e = shower.ParticleElectron
		}
		// Michel spectrum, flattened.
		kin := distuv.Uniform{Min: 5, Max: 52.8, Src: t.src}.Rand()
		p := math.Sqrt(kin*kin + 2*kin*massElectron)
		delay := distuv.Exponential{Rate: 1 / 2197.0, Src: t.src}.Rand()
		return t.create(ctx, st, e, tr.id, tr.pos, randomDirection(t.rng).Mul(p), tr.time+delay, "Decay")
	}
	return nil
}

// rotate tilts unit vector dir by polar angle theta at azimuth phi.
func rotate(dir r3.Vector, theta, phi float64) r3.Vector {
	if theta == 0 || dir == (r3.Vector{}) {
		return dir
	}
	u := dir.Ortho()
	w := dir.Cross(u).Normalize()
	side := u.Mul(math.Cos(phi)).Add(w.Mul(math.Sin(phi)))
	return dir.Mul(math.Cos(theta)).Add(side.Mul(math.Sin(theta))).Normalize()
}

func randomDirection(rng *rand.Rand) r3.Vector {
	z := 2*rng.Float64() - 1
	phi := 2 * math.Pi * rng.Float64()
	r := math.Sqrt(1 - z*z)
	return r3.Vector{X: r * math.Cos(phi), Y: r * math.Sin(phi), Z: z}
}
