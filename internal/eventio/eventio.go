// Package eventio reads simulated events from JSON lines and writes the
// reconstructed output the same way.
package eventio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/banshee-data/smearceptance/internal/particle"
	"github.com/banshee-data/smearceptance/internal/reco"
)

const maxLineSize = 16 * 1024 * 1024

// ParticleRecord is the wire form of a particle. E may be omitted, in which
// case it is computed from the species table mass.
type ParticleRecord struct {
	PDG    int     `json:"pdg"`
	Px     float64 `json:"px"`
	Py     float64 `json:"py"`
	Pz     float64 `json:"pz"`
	E      float64 `json:"e,omitempty"`
	Status string  `json:"status,omitempty"`
}

// EventRecord is one input line.
type EventRecord struct {
	ID        int64            `json:"id"`
	Weight    float64          `json:"weight,omitempty"`
	Particles []ParticleRecord `json:"particles"`
}

// Event is a decoded input event.
type Event struct {
	ID     int64
	Weight float64
	*particle.Event
}

// Reader decodes events line by line.
type Reader struct {
	sc   *bufio.Scanner
	line int
}

// NewReader returns a reader over JSON-lines input.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{sc: sc}
}

// Next returns the next event, or io.EOF. Blank lines are skipped. Events
// without an id are numbered by line.
func (r *Reader) Next() (*Event, error) {
	for r.sc.Scan() {
		r.line++
		b := r.sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		ev, err := rec.Decode()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		if rec.ID == 0 {
			ev.ID = int64(r.line)
		}
		return ev, nil
	}
	if err := r.sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// Decode converts the wire form into an event.
func (rec *EventRecord) Decode() (*Event, error) {
	ev := &Event{ID: rec.ID, Weight: rec.Weight, Event: particle.NewEvent()}
	if ev.Weight == 0 {
		ev.Weight = 1
	}
	for i, pr := range rec.Particles {
		p, err := pr.decode()
		if err != nil {
			return nil, fmt.Errorf("particle %d: %w", i, err)
		}
		ev.Particles = append(ev.Particles, p)
	}
	return ev, nil
}

func (pr ParticleRecord) decode() (particle.Particle, error) {
	status, err := parseStatus(pr.Status)
	if err != nil {
		return particle.Particle{}, err
	}
	mom := r3.Vec{X: pr.Px, Y: pr.Py, Z: pr.Pz}
	if math.IsNaN(r3.Norm(mom)) || math.IsNaN(pr.E) {
		return particle.Particle{}, errors.New("NaN momentum or energy")
	}
	if pr.E != 0 {
		if p := r3.Norm(mom); pr.E < p*(1-1e-12) {
			return particle.Particle{}, fmt.Errorf("energy %g below momentum %g", pr.E, p)
		}
		return particle.Particle{PDG: pr.PDG, Mom: mom, E: pr.E, Status: status}, nil
	}
	m, ok := particle.Mass(pr.PDG)
	if !ok {
		return particle.Particle{}, fmt.Errorf("no energy given and no table mass for PDG %d", pr.PDG)
	}
	return particle.New(pr.PDG, mom, m, status), nil
}

func parseStatus(s string) (particle.Status, error) {
	switch s {
	case "", "final":
		return particle.StatusFinal, nil
	case "initial":
		return particle.StatusInitial, nil
	case "intermediate":
		return particle.StatusIntermediate, nil
	}
	return 0, fmt.Errorf("unknown particle status %q", s)
}

// EncodeEvent returns the wire form of an event.
func EncodeEvent(id int64, weight float64, ev *particle.Event) EventRecord {
	rec := EventRecord{ID: id, Weight: weight, Particles: make([]ParticleRecord, len(ev.Particles))}
	for i, p := range ev.Particles {
		rec.Particles[i] = ParticleRecord{
			PDG: p.PDG, Px: p.Mom.X, Py: p.Mom.Y, Pz: p.Mom.Z, E: p.E, Status: p.Status.String(),
		}
	}
	return rec
}

// RecoRecord is one output line.
type RecoRecord struct {
	ID   int64      `json:"id"`
	Reco *reco.Info `json:"reco"`
}

// Writer encodes one JSON object per line.
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
	n   int
}

// NewWriter returns a buffered JSON-lines writer. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{w: bw, enc: json.NewEncoder(bw)}
}

// WriteReco writes the reconstructed info of event id.
func (w *Writer) WriteReco(id int64, ri *reco.Info) error {
	return w.write(RecoRecord{ID: id, Reco: ri})
}

// WriteEvent writes an input-format event, used to produce test samples.
func (w *Writer) WriteEvent(rec EventRecord) error {
	return w.write(rec)
}

func (w *Writer) write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return fmt.Errorf("record %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.n }

// Flush writes buffered records to the underlying writer.
func (w *Writer) Flush() error { return w.w.Flush() }
