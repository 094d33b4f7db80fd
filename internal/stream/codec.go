// Package stream reads and writes the transport event stream as JSON lines.
//
// Each line is an envelope {"type": ..., "data": {...}} whose type is the
// shower.Kind of the event.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/photonsim/internal/shower"
)

// maxLineSize bounds one encoded event.
const maxLineSize = 1 << 20

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Handler consumes events. *shower.Engine implements it.
type Handler interface {
	Handle(ctx context.Context, ev shower.Event) (shower.StepOutcome, error)
}

// Encoder writes events as JSON lines.
type Encoder struct {
	w     *bufio.Writer
	count int
}

// NewEncoder returns an Encoder writing to w. Call Flush when done.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one event.
func (e *Encoder) Encode(ev shower.Event) error {
	if ev == nil {
		return errors.New("encode: nil event")
	}
	kind := shower.Kind(ev)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	line, err := json.Marshal(envelope{Type: kind, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	if _, err := e.w.Write(append(line, '\n')); err != nil {
		return err
	}
	e.count++
	return nil
}

// Flush writes any buffered lines to the underlying writer.
func (e *Encoder) Flush() error { return e.w.Flush() }

// Count returns the number of events encoded.
func (e *Encoder) Count() int { return e.count }

// Decoder reads events written by Encoder.
type Decoder struct {
	sc   *bufio.Scanner
	line int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Decoder{sc: sc}
}

// Next returns the next event, or io.EOF at the end of the stream. Blank
// lines are skipped.
func (d *Decoder) Next() (shower.Event, error) {
	for d.sc.Scan() {
		d.line++
		b := d.sc.Bytes()
		if len(b) == 0 {
			continue
		}
		ev, err := decodeLine(b)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", d.line, err)
		}
		return ev, nil
	}
	if err := d.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", d.line+1, err)
	}
	return nil, io.EOF
}

func decodeLine(b []byte) (shower.Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch env.Type {
	case "boundary":
		return decodeAs[shower.EventBoundary](env)
	case "track_created":
		return decodeAs[shower.TrackCreated](env)
	case "step_completed":
		return decodeAs[shower.StepCompleted](env)
	case "photon_emitted":
		return decodeAs[shower.PhotonEmitted](env)
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

func decodeAs[T shower.Event](env envelope) (shower.Event, error) {
	var ev T
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return ev, nil
}

// Replay feeds every event of d to h in order and returns how many were
// handled. Step outcomes are ignored: a recorded stream already contains
// the spawned tracks.
func Replay(ctx context.Context, d *Decoder, h Handler) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ev, err := d.Next()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if _, err := h.Handle(ctx, ev); err != nil {
			return n, fmt.Errorf("event %d (%s): %w", n, shower.Kind(ev), err)
		}
		n++
	}
}

// Recorder encodes every event it handles and forwards it to Next. With a
// nil Next the outcome is always empty, so no deflection spawns occur.
type Recorder struct {
	Enc  *Encoder
	Next Handler
}

// Handle records ev, then passes it on.
func (r *Recorder) Handle(ctx context.Context, ev shower.Event) (shower.StepOutcome, error) {
	if err := r.Enc.Encode(ev); err != nil {
		return shower.StepOutcome{}, err
	}
	if r.Next == nil {
		return shower.StepOutcome{}, nil
	}
	return r.Next.Handle(ctx, ev)
}
