package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/photonsim/internal/shower"
	"github.com/banshee-data/photonsim/internal/stream"
	"github.com/banshee-data/photonsim/internal/synth"
)

func TestGenerateRecordsSplits(t *testing.T) {
	tr := synth.NewTransport(4)
	tr.PrimaryEnergyMeV = 400
	tr.PhotonYieldPerMM = 0.2
	tr.PionInelasticMM = math.Inf(1)
	tr.HadElasticProb = 0.5

	var buf bytes.Buffer
	sum, err := generate(context.Background(), &buf, tr, shower.DefaultEngineConfig(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Events)
	require.Positive(t, sum.Spawns)

	dec := stream.NewDecoder(&buf)
	var boundaries, splits, tracks int
	for {
		ev, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		switch ev := ev.(type) {
		case shower.EventBoundary:
			boundaries++
		case shower.TrackCreated:
			tracks++
			if shower.IsDeflectionProcess(ev.CreatorProcess) {
				splits++
			}
		}
	}
	assert.Equal(t, 6, boundaries)
	assert.Equal(t, sum.Tracks, tracks)
	assert.Equal(t, sum.Spawns, splits, "split tracks are part of the recording")
}

func TestGenerateRejectsUnknownPrimary(t *testing.T) {
	tr := synth.NewTransport(1)
	tr.PrimaryParticle = "proton"
	_, err := generate(context.Background(), io.Discard, tr, shower.DefaultEngineConfig(), 1)
	assert.ErrorContains(t, err, "event 0")
}
