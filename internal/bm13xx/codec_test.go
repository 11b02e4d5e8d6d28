package bm13xx

import "testing"

func TestDecoder_SingleCommand(t *testing.T) {
	cmd := Command{Kind: CmdReadRegister, ChipAddr: 0x03, RegAddr: RegVersionMask}
	frame, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}

	dec := NewDecoder(DirectionCommand)
	frames, errs := dec.Feed(frame)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 || frames[0].Command == nil {
		t.Fatalf("expected exactly 1 command frame, got %+v", frames)
	}
	if *frames[0].Command != cmd {
		t.Errorf("decoded command mismatch: got %+v, want %+v", *frames[0].Command, cmd)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	job := sampleJob()
	frame := EncodeJobFull(job)

	dec := NewDecoder(DirectionCommand)
	var got []Frame
	for _, b := range frame {
		frames, errs := dec.Feed([]byte{b})
		if len(errs) != 0 {
			t.Fatalf("unexpected errors mid-stream: %v", errs)
		}
		got = append(got, frames...)
	}
	if len(got) != 1 || got[0].Job == nil {
		t.Fatalf("expected exactly 1 job frame fed byte-at-a-time, got %+v", got)
	}
	if *got[0].Job != job {
		t.Errorf("decoded job mismatch: got %+v, want %+v", *got[0].Job, job)
	}
}

func TestDecoder_ResynchronisesAfterGarbage(t *testing.T) {
	cmd := Command{Kind: CmdChainInactive, ChipAddr: 0x00}
	frame, err := EncodeCommand(cmd)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	garbage := []byte{0x00, 0x01, 0x55, 0x00, 0xFF}
	stream := append(append([]byte(nil), garbage...), frame...)

	dec := NewDecoder(DirectionCommand)
	frames, _ := dec.Feed(stream)
	if len(frames) != 1 || frames[0].Command == nil {
		t.Fatalf("expected exactly 1 command frame after garbage, got %+v", frames)
	}
	if *frames[0].Command != cmd {
		t.Errorf("decoded command mismatch: got %+v, want %+v", *frames[0].Command, cmd)
	}
}

func TestDecoder_CorruptFrameThenRecoversNextFrame(t *testing.T) {
	cmd1 := Command{Kind: CmdReadRegister, ChipAddr: 0x01, RegAddr: RegPLLParameter}
	cmd2 := Command{Kind: CmdReadRegister, ChipAddr: 0x02, RegAddr: RegMiscControl}
	frame1, err := EncodeCommand(cmd1)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}
	frame2, err := EncodeCommand(cmd2)
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}

	corrupt1 := append([]byte(nil), frame1...)
	corrupt1[len(corrupt1)-1] ^= 0x01 // break the CRC-5 without changing length

	stream := append(append([]byte(nil), corrupt1...), frame2...)

	dec := NewDecoder(DirectionCommand)
	frames, errs := dec.Feed(stream)
	if len(errs) == 0 {
		t.Fatal("expected at least one resynchronisation error")
	}
	if len(frames) != 1 || frames[0].Command == nil {
		t.Fatalf("expected to still recover the second frame, got %+v", frames)
	}
	if *frames[0].Command != cmd2 {
		t.Errorf("recovered command mismatch: got %+v, want %+v", *frames[0].Command, cmd2)
	}
}

func TestDecoder_ResponseDirection(t *testing.T) {
	resp := Response{Kind: RespNonce, ChipAddr: 0x01, WorkID: 0x02, Nonce: 0x0000ABCD}
	frame, err := EncodeResponse(resp)
	if err != nil {
		t.Fatalf("EncodeResponse: %v", err)
	}

	dec := NewDecoder(DirectionResponse)
	frames, errs := dec.Feed(frame)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(frames) != 1 || frames[0].Response == nil {
		t.Fatalf("expected exactly 1 response frame, got %+v", frames)
	}
	if *frames[0].Response != resp {
		t.Errorf("decoded response mismatch: got %+v, want %+v", *frames[0].Response, resp)
	}
}

func TestDecoder_PartialFrameWaitsForMoreData(t *testing.T) {
	frame, err := EncodeCommand(Command{Kind: CmdReadRegister, ChipAddr: 0x01, RegAddr: RegPLLParameter})
	if err != nil {
		t.Fatalf("EncodeCommand: %v", err)
	}

	dec := NewDecoder(DirectionCommand)
	frames, errs := dec.Feed(frame[:len(frame)-2])
	if len(frames) != 0 || len(errs) != 0 {
		t.Fatalf("expected no frames/errors on partial feed, got frames=%+v errs=%v", frames, errs)
	}

	frames, errs = dec.Feed(frame[len(frame)-2:])
	if len(errs) != 0 {
		t.Fatalf("unexpected errors completing frame: %v", errs)
	}
	if len(frames) != 1 || frames[0].Command == nil {
		t.Fatalf("expected exactly 1 command frame after completing feed, got %+v", frames)
	}
}
