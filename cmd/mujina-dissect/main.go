// Command mujina-dissect is a line-oriented dumper of a captured BM13xx
// control-channel byte stream: feed it raw bytes and it prints every frame
// it can decode, one per line.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mujina-miner/mujina/internal/bm13xx"
)

func main() {
	direction := flag.String("direction", "command", "frame direction to decode: command or response")
	path := flag.String("file", "", "path to a capture file; defaults to stdin")
	flag.Parse()

	var dir bm13xx.Direction
	switch *direction {
	case "command":
		dir = bm13xx.DirectionCommand
	case "response":
		dir = bm13xx.DirectionResponse
	default:
		fmt.Fprintf(os.Stderr, "mujina-dissect: unknown direction %q (want command or response)\n", *direction)
		os.Exit(1)
	}

	in := os.Stdin
	if *path != "" {
		f, err := os.Open(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mujina-dissect: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	if err := dissect(in, os.Stdout, dir); err != nil {
		fmt.Fprintf(os.Stderr, "mujina-dissect: %v\n", err)
		os.Exit(1)
	}
}

func dissect(r io.Reader, w io.Writer, dir bm13xx.Direction) error {
	dec := bm13xx.NewDecoder(dir)
	buf := make([]byte, 4096)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			frames, errs := dec.Feed(buf[:n])
			for _, f := range frames {
				printFrame(w, f)
			}
			for _, e := range errs {
				fmt.Fprintf(w, "! resync: %v\n", e)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func printFrame(w io.Writer, f bm13xx.Frame) {
	switch {
	case f.Command != nil:
		c := f.Command
		fmt.Fprintf(w, "command kind=%d broadcast=%v chip=0x%02x reg=0x%02x\n", c.Kind, c.Broadcast, c.ChipAddr, c.RegAddr)
	case f.Response != nil:
		r := f.Response
		if r.Kind == bm13xx.RespNonce {
			fmt.Fprintf(w, "response nonce chip=0x%02x work_id=%d nonce=0x%08x\n", r.ChipAddr, r.WorkID, r.Nonce)
		} else {
			fmt.Fprintf(w, "response register-read chip=0x%02x reg=0x%02x\n", r.ChipAddr, r.RegAddr)
		}
	case f.Job != nil:
		j := f.Job
		fmt.Fprintf(w, "job job_id=%d nbits=0x%08x ntime=%d\n", j.JobID, j.NBits, j.NTime)
	}
}
