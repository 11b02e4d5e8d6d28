package bm13xx

import "encoding/binary"

// JobFull is the 82-byte work-assignment payload of a work frame: a single
// mining job handed to a chip (or chain of chips in one go).
type JobFull struct {
	JobID         byte
	NumMidstates  byte
	StartingNonce uint32
	NBits         uint32
	NTime         uint32
	MerkleRoot    [32]byte
	PrevBlockHash [32]byte
	Version       uint32
}

const jobFullPayloadSize = 1 + 1 + 4 + 4 + 4 + 32 + 32 + 4 // 82

// EncodeJobFull serialises a JobFull to its on-wire work frame, including
// the 2-byte preamble. The trailing checksum is CRC-16/CCITT-FALSE encoded
// big-endian.
func EncodeJobFull(job JobFull) []byte {
	payload := make([]byte, 0, jobFullPayloadSize)
	payload = append(payload, job.JobID, job.NumMidstates)
	payload = appendLE32(payload, job.StartingNonce)
	payload = appendLE32(payload, job.NBits)
	payload = appendLE32(payload, job.NTime)
	payload = append(payload, job.MerkleRoot[:]...)
	payload = append(payload, job.PrevBlockHash[:]...)
	payload = appendLE32(payload, job.Version)

	typeFlags := byte(frameKindWork << 6)
	length := byte(1 + 1 + len(payload) + 2) // typeFlags + length + payload + crc16

	body := make([]byte, 0, 2+int(length))
	body = append(body, typeFlags, length)
	body = append(body, payload...)
	crc := CRC16(body)
	body = append(body, byte(crc>>8), byte(crc))

	out := make([]byte, 0, 2+len(body))
	out = append(out, Preamble[0], Preamble[1])
	out = append(out, body...)
	return out
}

// DecodeJobFull parses the post-preamble bytes of a work frame.
func DecodeJobFull(frame []byte) (JobFull, error) {
	if len(frame) != 2+jobFullPayloadSize+2 {
		return JobFull{}, &ProtocolError{Reason: ErrBadPayloadSize}
	}
	gotCRC := uint16(frame[len(frame)-2])<<8 | uint16(frame[len(frame)-1])
	wantCRC := CRC16(frame[:len(frame)-2])
	if gotCRC != wantCRC {
		return JobFull{}, &ProtocolError{Reason: ErrCRCMismatch}
	}

	p := frame[2 : len(frame)-2]
	var job JobFull
	job.JobID = p[0]
	job.NumMidstates = p[1]
	job.StartingNonce = binary.LittleEndian.Uint32(p[2:6])
	job.NBits = binary.LittleEndian.Uint32(p[6:10])
	job.NTime = binary.LittleEndian.Uint32(p[10:14])
	copy(job.MerkleRoot[:], p[14:46])
	copy(job.PrevBlockHash[:], p[46:78])
	job.Version = binary.LittleEndian.Uint32(p[78:82])
	return job, nil
}

func appendLE32(b []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(b, buf[:]...)
}
