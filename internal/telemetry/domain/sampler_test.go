package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSamplerRangesByStatus(t *testing.T) {
	cfg := meltingConfig()
	cfg.Energy.Status = StatusProbabilities{Working: 0.5, Idle: 0.3, Maintenance: 0.2}
	s, err := NewSampler(cfg, newRNG(42))
	require.NoError(t, err)

	counts := map[MachineStatus]int{}
	ts := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 10000; i++ {
		sample, err := s.Sample(ts)
		require.NoError(t, err)
		counts[sample.Status]++

		switch sample.Status {
		case StatusWorking:
			assert.True(t, cfg.Energy.PowerRange.Contains(sample.PowerKW), "working power %v", sample.PowerKW)
		case StatusIdle:
			assert.True(t, cfg.Energy.IdlePower.Contains(sample.PowerKW), "idle power %v", sample.PowerKW)
		case StatusMaintenance:
			assert.Zero(t, sample.PowerKW)
			assert.Zero(t, sample.ConsumptionKVAh)
		}
		assert.InDelta(t, sample.PowerKW/60, sample.ConsumptionKVAh, 0.006)
		assert.Greater(t, sample.PowerFactor, 0.0)
		assert.LessOrEqual(t, sample.PowerFactor, 0.99)
		assert.Equal(t, ClassifyPF(sample.PowerFactor, cfg.Energy.PFThresholds), sample.Notification)
	}
	assert.InDelta(t, 5000, counts[StatusWorking], 300)
	assert.InDelta(t, 3000, counts[StatusIdle], 300)
	assert.InDelta(t, 2000, counts[StatusMaintenance], 300)
}

func TestSamplerDeterministicForSeed(t *testing.T) {
	a, err := NewSampler(meltingConfig(), newRNG(7))
	require.NoError(t, err)
	b, err := NewSampler(meltingConfig(), newRNG(7))
	require.NoError(t, err)
	ts := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		sa, _ := a.Sample(ts)
		sb, _ := b.Sample(ts)
		require.Equal(t, sa, sb)
	}
}

func TestSamplerPFBandsFollowMass(t *testing.T) {
	cfg := meltingConfig()
	s, err := NewSampler(cfg, newRNG(99))
	require.NoError(t, err)
	var low, high int
	for i := 0; i < 10000; i++ {
		sample, _ := s.Sample(time.Time{})
		pf := sample.PowerFactor
		switch {
		case pf <= cfg.Energy.PF.Low.Max:
			low++
		case pf >= cfg.Energy.PF.High.Min:
			high++
		default:
			assert.True(t, pf >= cfg.Energy.PF.Normal.Min && pf <= cfg.Energy.PF.Normal.Max, "pf %v", pf)
		}
	}
	assert.InDelta(t, 1000, low, 200)
	assert.InDelta(t, 1000, high, 200)
}

func TestClassifyPFBoundaries(t *testing.T) {
	thresholds := []PFThresholds{{Low: 0.70, High: 0.95}, {Low: 0.85, High: 0.95}, {Low: 0.80, High: 0.97}}
	for _, th := range thresholds {
		assert.Equal(t, PFLow, ClassifyPF(th.Low-0.001, th))
		assert.Equal(t, PFNormal, ClassifyPF(th.Low, th))
		assert.Equal(t, PFNormal, ClassifyPF(th.Low+0.001, th))
		assert.Equal(t, PFNormal, ClassifyPF(th.High-0.001, th))
		assert.Equal(t, PFNormal, ClassifyPF(th.High, th))
		assert.Equal(t, PFHigh, ClassifyPF(th.High+0.001, th))
	}
}

func TestActiveCompositionByQuarter(t *testing.T) {
	c := Composition{FePct: 75, CPct: 10, CrPct: 5, NiPct: 5}
	for minute := 0; minute < 60; minute++ {
		got := ActiveComposition(c, minute)
		nonZero := 0
		for _, v := range []float64{got.FePct, got.CPct, got.CrPct, got.NiPct} {
			if v != 0 {
				nonZero++
			}
		}
		assert.Equal(t, 1, nonZero, "minute %d", minute)
	}
	assert.Equal(t, Composition{FePct: 75}, ActiveComposition(c, 14))
	assert.Equal(t, Composition{CPct: 10}, ActiveComposition(c, 15))
	assert.Equal(t, Composition{CrPct: 5}, ActiveComposition(c, 44))
	assert.Equal(t, Composition{NiPct: 5}, ActiveComposition(c, 45))
}

func TestStationConfigValidate(t *testing.T) {
	require.NoError(t, meltingConfig().Validate())
	require.NoError(t, productionConfig().Validate())

	bad := meltingConfig()
	bad.Energy.Status.Working = 0.5
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = meltingConfig()
	bad.Energy.PF.Normal.Mass = 0.5
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = meltingConfig()
	bad.Energy.PowerRange = Range{Min: 400, Max: 350}
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = meltingConfig()
	bad.Energy.IdlePower = Range{Min: 0, Max: 0}
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = meltingConfig()
	bad.Table = "Melting Energy; DROP"
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	bad = meltingConfig()
	bad.Production = productionConfig().Production
	assert.ErrorIs(t, bad.Validate(), ErrConfig)

	prod := productionConfig()
	prod.Production.ActualNoiseKg = 400
	assert.ErrorIs(t, prod.Validate(), ErrConfig)

	_, err := NewSampler(meltingConfig(), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 0.13, Round2(0.125))
	assert.Equal(t, 6.67, Round2(400.0/60))
	assert.Equal(t, -1.01, Round2(-1.005))
}
