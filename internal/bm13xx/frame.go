package bm13xx

import "fmt"

// Preamble opens every BM13xx frame, register or work.
var Preamble = [2]byte{0x55, 0xAA}

const (
	frameKindRegister = 0
	frameKindWork     = 1
)

// CommandKind identifies a register-frame command sent host→chip.
type CommandKind byte

const (
	CmdSetChipAddress CommandKind = 0
	CmdWriteRegister  CommandKind = 1
	CmdReadRegister   CommandKind = 2
	CmdChainInactive  CommandKind = 3
)

// Command is a decoded/to-be-encoded register-frame command.
type Command struct {
	Kind      CommandKind
	Broadcast bool
	ChipAddr  byte
	RegAddr   byte     // used by ReadRegister
	Value     Register // used by WriteRegister
}

// EncodeCommand serialises a Command to its on-wire register frame,
// including the 2-byte preamble.
func EncodeCommand(cmd Command) ([]byte, error) {
	chipAddr := cmd.ChipAddr
	if cmd.Broadcast {
		chipAddr = 0x00
	}

	var payload []byte
	switch cmd.Kind {
	case CmdSetChipAddress:
		payload = []byte{chipAddr}
	case CmdChainInactive:
		payload = []byte{chipAddr}
	case CmdReadRegister:
		payload = []byte{chipAddr, cmd.RegAddr}
	case CmdWriteRegister:
		if cmd.Value == nil {
			return nil, fmt.Errorf("bm13xx: WriteRegister requires a Value")
		}
		enc := cmd.Value.Encode()
		payload = []byte{chipAddr, cmd.Value.Address(), enc[0], enc[1], enc[2], enc[3]}
	default:
		return nil, fmt.Errorf("bm13xx: unknown command kind %d", cmd.Kind)
	}

	return buildRegisterFrame(frameKindRegister, cmd.Broadcast, byte(cmd.Kind), payload), nil
}

// DecodeCommand parses the post-preamble bytes of a register frame known to
// hold a Command (i.e. the host→chip direction codec).
func DecodeCommand(frame []byte) (Command, error) {
	if len(frame) < 3 {
		return Command{}, &ProtocolError{Reason: ErrTruncated}
	}
	typeFlags := frame[0]
	broadcast := (typeFlags>>4)&1 == 1
	kind := CommandKind(typeFlags & 0x0F)
	payload := frame[2 : len(frame)-1]

	switch kind {
	case CmdSetChipAddress, CmdChainInactive:
		if len(payload) != 1 {
			return Command{}, &ProtocolError{Reason: ErrBadPayloadSize}
		}
		return Command{Kind: kind, Broadcast: broadcast, ChipAddr: payload[0]}, nil
	case CmdReadRegister:
		if len(payload) != 2 {
			return Command{}, &ProtocolError{Reason: ErrBadPayloadSize}
		}
		return Command{Kind: kind, Broadcast: broadcast, ChipAddr: payload[0], RegAddr: payload[1]}, nil
	case CmdWriteRegister:
		if len(payload) != 6 {
			return Command{}, &ProtocolError{Reason: ErrBadPayloadSize}
		}
		var enc [4]byte
		copy(enc[:], payload[2:6])
		reg, err := DecodeRegister(payload[1], enc)
		if err != nil {
			return Command{}, &ProtocolError{Reason: err}
		}
		return Command{Kind: kind, Broadcast: broadcast, ChipAddr: payload[0], RegAddr: payload[1], Value: reg}, nil
	default:
		return Command{}, &ProtocolError{Reason: fmt.Errorf("bm13xx: unknown command kind %d", kind)}
	}
}

// ResponseKind identifies a register-frame response sent chip→host.
type ResponseKind byte

const (
	RespNonce        ResponseKind = 0
	RespRegisterRead ResponseKind = 1
)

// Response is a decoded register-frame response.
type Response struct {
	Kind     ResponseKind
	ChipAddr byte
	WorkID   byte
	Nonce    uint32
	RegAddr  byte
	Value    Register
}

// EncodeResponse serialises a Response (used by tests and the dissection
// tool's synthetic fixtures).
func EncodeResponse(resp Response) ([]byte, error) {
	var payload []byte
	switch resp.Kind {
	case RespNonce:
		payload = []byte{resp.ChipAddr, resp.WorkID, byte(resp.Nonce >> 16), byte(resp.Nonce >> 8), byte(resp.Nonce)}
	case RespRegisterRead:
		if resp.Value == nil {
			return nil, fmt.Errorf("bm13xx: RespRegisterRead requires a Value")
		}
		enc := resp.Value.Encode()
		payload = []byte{resp.ChipAddr, resp.Value.Address(), enc[0], enc[1], enc[2], enc[3]}
	default:
		return nil, fmt.Errorf("bm13xx: unknown response kind %d", resp.Kind)
	}
	return buildRegisterFrame(frameKindRegister, false, byte(resp.Kind), payload), nil
}

// DecodeResponse parses the post-preamble bytes of a register frame known to
// hold a Response (i.e. the chip→host direction codec).
func DecodeResponse(frame []byte) (Response, error) {
	if len(frame) < 3 {
		return Response{}, &ProtocolError{Reason: ErrTruncated}
	}
	typeFlags := frame[0]
	kind := ResponseKind(typeFlags & 0x0F)
	payload := frame[2 : len(frame)-1]

	switch kind {
	case RespNonce:
		if len(payload) != 5 {
			return Response{}, &ProtocolError{Reason: ErrBadPayloadSize}
		}
		nonce := uint32(payload[2])<<16 | uint32(payload[3])<<8 | uint32(payload[4])
		return Response{Kind: kind, ChipAddr: payload[0], WorkID: payload[1], Nonce: nonce}, nil
	case RespRegisterRead:
		if len(payload) != 6 {
			return Response{}, &ProtocolError{Reason: ErrBadPayloadSize}
		}
		var enc [4]byte
		copy(enc[:], payload[2:6])
		reg, err := DecodeRegister(payload[1], enc)
		if err != nil {
			return Response{}, &ProtocolError{Reason: err}
		}
		return Response{Kind: kind, ChipAddr: payload[0], RegAddr: payload[1], Value: reg}, nil
	default:
		return Response{}, &ProtocolError{Reason: fmt.Errorf("bm13xx: unknown response kind %d", kind)}
	}
}

// buildRegisterFrame assembles [preamble, type/flags, length, payload..., crc5]
// with length counting type/flags through crc inclusive.
func buildRegisterFrame(kind byte, broadcast bool, command byte, payload []byte) []byte {
	var bcast byte
	if broadcast {
		bcast = 1
	}
	typeFlags := (kind << 6) | (bcast << 4) | (command & 0x0F)
	length := byte(3 + len(payload))

	body := make([]byte, 0, 2+int(length))
	body = append(body, typeFlags, length)
	body = append(body, payload...)
	crc := CRC5(body)
	body = append(body, crc)

	out := make([]byte, 0, 2+len(body))
	out = append(out, Preamble[0], Preamble[1])
	out = append(out, body...)
	return out
}
