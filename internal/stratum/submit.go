package stratum

import "encoding/hex"

// submitParams is the fully-resolved mining.submit parameter set: worker
// name plus job id, extranonce2, ntime, nonce and (if version rolling was
// authorized) the rolled version bits, each rendered as the hex string the
// wire format expects.
type submitParams struct {
	username    string
	jobID       string
	extranonce2 []byte
	ntime       uint32
	nonce       uint32
	versionBits *uint32
}

// toRequest renders the submit params as the params array of a
// mining.submit request.
func (p submitParams) toRequest(id int) request {
	params := []interface{}{
		p.username,
		p.jobID,
		hex.EncodeToString(p.extranonce2),
		hexUint32(p.ntime),
		hexUint32(p.nonce),
	}
	if p.versionBits != nil {
		params = append(params, hexUint32(*p.versionBits))
	}
	return newRequest(id, "mining.submit", params...)
}

func hexUint32(v uint32) string {
	var buf [4]byte
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
	return hex.EncodeToString(buf[:])
}
