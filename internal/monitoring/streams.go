package monitoring

import (
	"io"

	"github.com/banshee-data/smearceptance/internal/logstream"
	"github.com/banshee-data/smearceptance/internal/smear"
	"github.com/banshee-data/smearceptance/internal/unfold"
)

// LogWriters holds the io.Writers for each logging stream.
type LogWriters struct {
	Ops   io.Writer
	Diag  io.Writer
	Trace io.Writer
}

// ConfigureStreams routes every package's three logging streams. Logf is
// sent to the ops stream, or muted when Ops is nil.
func ConfigureStreams(w LogWriters) {
	smear.SetLogWriters(w.Ops, w.Diag, w.Trace)
	unfold.SetLogWriters(w.Ops, w.Diag, w.Trace)
	if w.Ops == nil {
		SetLogger(nil)
		return
	}
	SetLogger(logstream.New("", w.Ops).Printf)
}
