package stratum

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)
	}
	return hex.EncodeToString(b)
}

func TestParseJobNotification_PrevHashWordSwapThenReverse(t *testing.T) {
	params := []interface{}{
		"job-1",
		sequentialHex(32),
		"aa",
		"bb",
		[]interface{}{},
		"20000000",
		"1d00ffff",
		"5a5a5a5a",
		false,
	}

	job, err := parseJobNotification(params)
	require.NoError(t, err)

	// Reversing the per-word swap undoes the intra-word byte order and
	// reverses the order of the 8 words, so the groups come back in
	// descending order with each group's own bytes left ascending.
	expected := [32]byte{
		28, 29, 30, 31,
		24, 25, 26, 27,
		20, 21, 22, 23,
		16, 17, 18, 19,
		12, 13, 14, 15,
		8, 9, 10, 11,
		4, 5, 6, 7,
		0, 1, 2, 3,
	}
	assert.Equal(t, expected, job.prevHash)
}

func TestParseJobNotification_FieldsAndCleanJobs(t *testing.T) {
	params := []interface{}{
		"jobid-42",
		sequentialHex(32),
		"aabbcc",
		"ddeeff",
		[]interface{}{sequentialHex(32)},
		"20000000",
		"1d00ffff",
		"5a5a5a5a",
		true,
	}

	job, err := parseJobNotification(params)
	require.NoError(t, err)

	assert.Equal(t, "jobid-42", job.jobID)
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc}, job.coinbase1)
	assert.Equal(t, []byte{0xdd, 0xee, 0xff}, job.coinbase2)
	assert.Len(t, job.branches, 1)
	assert.Equal(t, uint32(0x20000000), job.version)
	assert.Equal(t, uint32(0x1d00ffff), job.nbits)
	assert.Equal(t, uint32(0x5a5a5a5a), job.ntime)
	assert.True(t, job.cleanJobs)
}

func TestParseJobNotification_TooFewParams(t *testing.T) {
	_, err := parseJobNotification([]interface{}{"only-one"})
	assert.Error(t, err)
}

func TestParseJobNotification_MalformedHex(t *testing.T) {
	params := []interface{}{
		"job-1",
		"not-hex",
		"aa",
		"bb",
		[]interface{}{},
		"20000000",
		"1d00ffff",
		"5a5a5a5a",
		false,
	}
	_, err := parseJobNotification(params)
	assert.Error(t, err)
}
