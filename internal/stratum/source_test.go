package stratum

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujina-miner/mujina/internal/job"
	"github.com/mujina-miner/mujina/internal/scheduler"
	"github.com/mujina-miner/mujina/internal/types"
)

func testSource() *Source {
	log := logrus.NewEntry(logrus.New())
	sched := scheduler.New(log)
	s, _ := NewSource(PoolConfig{Username: "worker.1"}, sched, log)
	return s
}

func TestComputeSuggestedDifficulty_ZeroHashRate(t *testing.T) {
	_, ok := computeSuggestedDifficulty(0)
	assert.False(t, ok)

	_, ok = computeSuggestedDifficulty(-1)
	assert.False(t, ok)
}

func TestComputeSuggestedDifficulty_BitaxeGamma(t *testing.T) {
	// ~500 GH/s, a Bitaxe Gamma's rough hashrate: targeting one share every
	// 3s lands the suggested difficulty in the low hundreds.
	diff, ok := computeSuggestedDifficulty(500e9)
	require.True(t, ok)
	assert.True(t, diff >= 300 && diff <= 400, "expected 300..400, got %d", diff)
}

func TestComputeSuggestedDifficulty_AlwaysAtLeastOne(t *testing.T) {
	diff, ok := computeSuggestedDifficulty(1)
	require.True(t, ok)
	assert.GreaterOrEqual(t, diff, uint64(1))
}

func TestMaybeSuggestDifficulty_FirstCallAlwaysSends(t *testing.T) {
	s := testSource()
	s.expectedHashRate = 500e9
	commands := make(chan clientCommand, 1)

	s.maybeSuggestDifficulty(commands)

	select {
	case cmd := <-commands:
		require.NotNil(t, cmd.suggestDifficulty)
	default:
		t.Fatal("expected a suggestDifficulty command")
	}
}

func TestMaybeSuggestDifficulty_SuppressesSmallChanges(t *testing.T) {
	s := testSource()
	s.expectedHashRate = 500e9
	commands := make(chan clientCommand, 2)
	s.maybeSuggestDifficulty(commands)
	<-commands // drain the first, unconditional send

	// A 10% bump is not material enough to re-suggest.
	s.expectedHashRate = 550e9
	s.maybeSuggestDifficulty(commands)

	select {
	case <-commands:
		t.Fatal("did not expect a re-suggestion for a small change")
	default:
	}
}

func TestMaybeSuggestDifficulty_SendsOnMaterialChange(t *testing.T) {
	s := testSource()
	s.expectedHashRate = 500e9
	commands := make(chan clientCommand, 2)
	s.maybeSuggestDifficulty(commands)
	<-commands

	// A 3x jump in hashrate is material.
	s.expectedHashRate = 1500e9
	s.maybeSuggestDifficulty(commands)

	select {
	case cmd := <-commands:
		require.NotNil(t, cmd.suggestDifficulty)
	default:
		t.Fatal("expected a re-suggestion for a material change")
	}
}

func TestMaybeSuggestDifficulty_SkipsZeroHashRate(t *testing.T) {
	s := testSource()
	s.expectedHashRate = 0
	commands := make(chan clientCommand, 1)

	s.maybeSuggestDifficulty(commands)

	select {
	case <-commands:
		t.Fatal("did not expect a suggestion with no hashrate")
	default:
	}
}

func TestJobToTemplate_UsesProtocolStateAndDefaults(t *testing.T) {
	s := testSource()
	mask := uint32(0x1fffe000)
	s.state = &protocolState{
		extranonce1:     []byte{0x01, 0x02, 0x03, 0x04},
		extranonce2Size: 4,
		versionMask:     &mask,
	}

	j := jobNotification{
		jobID:     "job-1",
		prevHash:  [32]byte{1, 2, 3},
		coinbase1: []byte{0xaa},
		coinbase2: []byte{0xbb},
		branches:  [][32]byte{{9, 9, 9}},
		version:   0x20000004,
		nbits:     0x1d00ffff,
		ntime:     0x5a5a5a5a,
		cleanJobs: false,
	}

	tmpl, err := s.jobToTemplate(j)
	require.NoError(t, err)

	assert.Equal(t, "job-1", tmpl.JobID)
	assert.Equal(t, j.prevHash, tmpl.PrevBlockHash)
	assert.Equal(t, uint32(0x20000004), tmpl.Version.Base)
	assert.Equal(t, mask, tmpl.Version.Mask)
	assert.Equal(t, j.nbits, tmpl.NBits)
	assert.Equal(t, j.ntime, tmpl.NTime)
	// No mining.set_difficulty seen yet: defaults to difficulty 1.
	assert.Equal(t, 0, types.From(1).Cmp(tmpl.Target))

	computed, ok := tmpl.MerkleRoot.Computed()
	require.True(t, ok)
	assert.Equal(t, j.coinbase1, computed.Coinbase1)
	assert.Equal(t, j.coinbase2, computed.Coinbase2)
	assert.Equal(t, s.state.extranonce1, computed.Extranonce1)
	assert.Equal(t, j.branches, computed.MerkleBranches)
}

func TestJobToTemplate_UsesShareDifficultyWhenSet(t *testing.T) {
	s := testSource()
	diff := types.From(128)
	s.state = &protocolState{extranonce2Size: 4, shareDifficulty: &diff}

	tmpl, err := s.jobToTemplate(jobNotification{jobID: "job-2"})
	require.NoError(t, err)
	assert.Equal(t, 0, diff.Cmp(tmpl.Target))
}

func TestJobToTemplate_NoStateIsError(t *testing.T) {
	s := testSource()
	_, err := s.jobToTemplate(jobNotification{jobID: "job-3"})
	assert.Error(t, err)
}

func TestShareToSubmitParams_DefaultsExtranonce2(t *testing.T) {
	s := testSource()
	s.state = &protocolState{extranonce2Size: 4}

	sh := job.Share{JobID: "job-1", Nonce: 0x11223344, NTime: 0x5a5a5a5a, Version: 0x20000004}
	params, err := s.shareToSubmitParams(sh)
	require.NoError(t, err)

	assert.Equal(t, "worker.1", params.username)
	assert.Equal(t, "job-1", params.jobID)
	assert.Equal(t, make([]byte, 4), params.extranonce2)
	assert.Nil(t, params.versionBits)
}

func TestShareToSubmitParams_IncludesVersionBitsWhenRollingAuthorized(t *testing.T) {
	s := testSource()
	mask := uint32(0x1fffe000)
	s.state = &protocolState{extranonce2Size: 4, versionMask: &mask}

	en2, err := types.NewExtranonce2(7, 4)
	require.NoError(t, err)
	sh := job.Share{JobID: "job-1", Nonce: 1, NTime: 2, Version: 0x2fffe004, Extranonce2: &en2}

	params, err := s.shareToSubmitParams(sh)
	require.NoError(t, err)
	require.NotNil(t, params.versionBits)
	assert.Equal(t, sh.Version&mask, *params.versionBits)
	assert.Equal(t, en2.Bytes(), params.extranonce2)
}

func TestShareToSubmitParams_NoStateIsError(t *testing.T) {
	s := testSource()
	_, err := s.shareToSubmitParams(job.Share{JobID: "job-1"})
	assert.Error(t, err)
}
