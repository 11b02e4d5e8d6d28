package bm13xx

import "bytes"

// Direction selects which side of the wire a Decoder interprets register
// frames as: commands flow host→chip, responses flow chip→host. The two
// directions share framing but not payload semantics, so dissecting a
// captured pair of lines requires one Decoder per direction.
type Direction int

const (
	DirectionCommand Direction = iota
	DirectionResponse
)

// Frame is exactly one of Command, Response, or Job populated, depending on
// the frame kind decoded.
type Frame struct {
	Command  *Command
	Response *Response
	Job      *JobFull
}

// Decoder is a streaming frame extractor. Feed bytes as they arrive from the
// serial port; it buffers partial frames, validates CRCs, and resynchronises
// on any error by advancing a single byte. It never panics.
type Decoder struct {
	direction Direction
	buf       []byte
}

// NewDecoder builds a Decoder for the given direction.
func NewDecoder(direction Direction) *Decoder {
	return &Decoder{direction: direction}
}

// Feed appends newly read bytes and extracts as many complete, valid frames
// as possible. Errs reports each resynchronisation along the way; forward
// progress is always made (frames and/or errs is non-decreasing per call
// that encounters any preamble).
func (d *Decoder) Feed(data []byte) (frames []Frame, errs []*ProtocolError) {
	d.buf = append(d.buf, data...)

	for {
		idx := bytes.Index(d.buf, Preamble[:])
		if idx == -1 {
			// Keep a possible partial preamble (a trailing 0x55) for next feed.
			if len(d.buf) > 0 && d.buf[len(d.buf)-1] == Preamble[0] {
				d.buf = d.buf[len(d.buf)-1:]
			} else {
				d.buf = nil
			}
			return frames, errs
		}
		if idx > 0 {
			d.buf = d.buf[idx:]
		}

		if len(d.buf) < 4 {
			return frames, errs // wait for type/flags + length
		}

		typeFlags := d.buf[2]
		length := int(d.buf[3])
		kindBit := (typeFlags >> 6) & 1

		totalFrameLen := 2 + length
		if length < 3 || totalFrameLen > len(d.buf) {
			if totalFrameLen > len(d.buf) && length >= 3 {
				return frames, errs // wait for the rest of the frame
			}
			errs = append(errs, &ProtocolError{Reason: ErrBadPayloadSize})
			d.buf = d.buf[1:]
			continue
		}

		frameBytes := d.buf[:totalFrameLen]
		postPreamble := frameBytes[2:]

		if kindBit == frameKindWork {
			job, err := DecodeJobFull(postPreamble)
			if err != nil {
				errs = append(errs, asProtocolError(err))
				d.buf = d.buf[1:]
				continue
			}
			frames = append(frames, Frame{Job: &job})
			d.buf = d.buf[totalFrameLen:]
			continue
		}

		if !CRC5Valid(postPreamble) {
			errs = append(errs, &ProtocolError{Reason: ErrCRCMismatch})
			d.buf = d.buf[1:]
			continue
		}

		if d.direction == DirectionCommand {
			cmd, err := DecodeCommand(postPreamble)
			if err != nil {
				errs = append(errs, asProtocolError(err))
				d.buf = d.buf[1:]
				continue
			}
			frames = append(frames, Frame{Command: &cmd})
		} else {
			resp, err := DecodeResponse(postPreamble)
			if err != nil {
				errs = append(errs, asProtocolError(err))
				d.buf = d.buf[1:]
				continue
			}
			frames = append(frames, Frame{Response: &resp})
		}
		d.buf = d.buf[totalFrameLen:]
	}
}

func asProtocolError(err error) *ProtocolError {
	if pe, ok := err.(*ProtocolError); ok {
		return pe
	}
	return &ProtocolError{Reason: err}
}
