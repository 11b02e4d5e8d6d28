package bm13xx

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeCommand_ReadRegister(t *testing.T) {
	cmd := Command{Kind: CmdReadRegister, Broadcast: false, ChipAddr: 0x04, RegAddr: RegPLLParameter}
	frame, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	if frame[0] != Preamble[0] || frame[1] != Preamble[1] {
		t.Fatalf("frame missing preamble: %x", frame)
	}

	got, err := DecodeCommand(frame[2:])
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if got != cmd {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, cmd)
	}
}

func TestEncodeDecodeCommand_WriteRegisterBroadcast(t *testing.T) {
	cmd := Command{
		Kind:      CmdWriteRegister,
		Broadcast: true,
		ChipAddr:  0x99, // must be forced to 0x00 on the wire
		Value:     PLLParameterReg{FBDiv: 0x0190, RefDiv: 2, PostDiv1: 6, PostDiv2: 1},
	}
	frame, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}

	got, err := DecodeCommand(frame[2:])
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}
	if got.ChipAddr != 0x00 {
		t.Errorf("broadcast write did not force chip address to 0: got %#x", got.ChipAddr)
	}
	if got.Value != (PLLParameterReg{FBDiv: 0x0190, RefDiv: 2, PostDiv1: 6, PostDiv2: 1}) {
		t.Errorf("register payload mismatch: got %+v", got.Value)
	}
}

func TestEncodeDecodeResponse_Nonce(t *testing.T) {
	resp := Response{Kind: RespNonce, ChipAddr: 0x02, WorkID: 0x07, Nonce: 0x00ABCDEF}
	frame, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	got, err := DecodeResponse(frame[2:])
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got != resp {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, resp)
	}
}

func TestDecodeCommand_UnknownRegisterRejected(t *testing.T) {
	cmd := Command{Kind: CmdWriteRegister, ChipAddr: 0x01, Value: PLLParameterReg{}}
	frame, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	// Corrupt the register address byte (frame = preamble, typeFlags, length,
	// chipAddr, regAddr, ...) to an address nothing decodes, then repair the
	// CRC so the corruption is only the unknown address.
	corrupted := append([]byte(nil), frame...)
	corrupted[5] = 0xEE
	corrupted[len(corrupted)-1] = CRC5(corrupted[2 : len(corrupted)-1])

	_, err = DecodeCommand(corrupted[2:])
	if err == nil {
		t.Fatal("expected error decoding unknown register address")
	}
	if !errors.Is(err, ErrUnknownRegister) {
		t.Errorf("expected ErrUnknownRegister, got %v", err)
	}
}

func TestBuildRegisterFrame_LengthByte(t *testing.T) {
	frame, err := EncodeCommand(Command{Kind: CmdReadRegister, ChipAddr: 0x01, RegAddr: 0x0C})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	// typeFlags + length + 2-byte payload + 1-byte crc = 5 bytes after preamble.
	wantLen := byte(5)
	if frame[3] != wantLen {
		t.Errorf("length byte = %d, want %d", frame[3], wantLen)
	}
	if !bytes.Equal(frame[:2], Preamble[:]) {
		t.Errorf("missing preamble: %x", frame[:2])
	}
}
