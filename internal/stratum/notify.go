package stratum

import (
	"encoding/hex"
	"fmt"
)

// jobNotification is the parsed form of a mining.notify notification's
// nine positional params: job_id, prevhash, coinb1, coinb2, merkle_branch,
// version, nbits, ntime, clean_jobs.
type jobNotification struct {
	jobID       string
	prevHash    [32]byte
	coinbase1   []byte
	coinbase2   []byte
	branches    [][32]byte
	version     uint32
	nbits       uint32
	ntime       uint32
	cleanJobs   bool
}

// parseJobNotification decodes mining.notify's params array. The prevhash
// field is sent word-swapped (each of its eight 4-byte words byte-reversed)
// relative to the block header's own byte order, a holdover from early
// mining software reading the header as 32-bit words; merkle branches and
// the coinbase halves are plain hex with no reordering.
func parseJobNotification(params []interface{}) (jobNotification, error) {
	if len(params) < 9 {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify expects 9 params, got %d", len(params))
	}

	jobID, ok := params[0].(string)
	if !ok {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify job_id is not a string")
	}

	prevHashHex, ok := params[1].(string)
	if !ok {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify prevhash is not a string")
	}
	prevHashRaw, err := hex.DecodeString(prevHashHex)
	if err != nil || len(prevHashRaw) != 32 {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify prevhash malformed: %w", err)
	}
	prevHash := reverse32(swapWords(prevHashRaw))

	coinbase1Hex, ok := params[2].(string)
	if !ok {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify coinb1 is not a string")
	}
	coinbase1, err := hex.DecodeString(coinbase1Hex)
	if err != nil {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify coinb1 malformed: %w", err)
	}

	coinbase2Hex, ok := params[3].(string)
	if !ok {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify coinb2 is not a string")
	}
	coinbase2, err := hex.DecodeString(coinbase2Hex)
	if err != nil {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify coinb2 malformed: %w", err)
	}

	branchesRaw, ok := params[4].([]interface{})
	if !ok {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify merkle_branch is not an array")
	}
	branches := make([][32]byte, 0, len(branchesRaw))
	for i, b := range branchesRaw {
		s, ok := b.(string)
		if !ok {
			return jobNotification{}, fmt.Errorf("stratum: mining.notify merkle_branch[%d] is not a string", i)
		}
		decoded, err := hex.DecodeString(s)
		if err != nil || len(decoded) != 32 {
			return jobNotification{}, fmt.Errorf("stratum: mining.notify merkle_branch[%d] malformed: %w", i, err)
		}
		var branch [32]byte
		copy(branch[:], decoded)
		branches = append(branches, branch)
	}

	version, err := parseHexUint32(params[5])
	if err != nil {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify version: %w", err)
	}
	nbits, err := parseHexUint32(params[6])
	if err != nil {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify nbits: %w", err)
	}
	ntime, err := parseHexUint32(params[7])
	if err != nil {
		return jobNotification{}, fmt.Errorf("stratum: mining.notify ntime: %w", err)
	}

	cleanJobs, _ := params[8].(bool)

	return jobNotification{
		jobID:     jobID,
		prevHash:  prevHash,
		coinbase1: coinbase1,
		coinbase2: coinbase2,
		branches:  branches,
		version:   version,
		nbits:     nbits,
		ntime:     ntime,
		cleanJobs: cleanJobs,
	}, nil
}

func parseHexUint32(v interface{}) (uint32, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("not a string")
	}
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != 4 {
		return 0, fmt.Errorf("malformed 4-byte hex field %q", s)
	}
	return uint32(decoded[0])<<24 | uint32(decoded[1])<<16 | uint32(decoded[2])<<8 | uint32(decoded[3]), nil
}

// swapWords reverses each of the eight 4-byte words of a 32-byte buffer in
// place, without reversing their order relative to each other.
func swapWords(b []byte) []byte {
	out := make([]byte, 32)
	copy(out, b)
	for w := 0; w < 8; w++ {
		i := w * 4
		out[i], out[i+1], out[i+2], out[i+3] = out[i+3], out[i+2], out[i+1], out[i]
	}
	return out
}

func reverse32(b []byte) [32]byte {
	var out [32]byte
	for i := 0; i < 32; i++ {
		out[i] = b[31-i]
	}
	return out
}
