package render

import (
	"time"

	"groundstation/internal/telemetry"
)

// Frame is one dashboard refresh: every column as an aligned series plus the
// newest row.
type Frame struct {
	Seq         uint64                        `json:"seq"`
	Columns     []string                      `json:"columns"`
	Size        int                           `json:"size"`
	Capacity    int                           `json:"capacity"`
	Latest      []telemetry.Number            `json:"latest"`
	Series      map[string][]telemetry.Number `json:"series"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// Empty reports whether the frame carries no rows.
func (f Frame) Empty() bool { return f.Size == 0 }

// BuildFrame snapshots buf into a frame.
func BuildFrame(buf *telemetry.Buffer) Frame {
	window := buf.Window()
	schema := buf.Schema()
	frame := Frame{
		Seq:         window.Seq,
		Columns:     schema.Names(),
		Capacity:    buf.Capacity(),
		Series:      make(map[string][]telemetry.Number, schema.Len()),
		GeneratedAt: time.Now().UTC(),
	}
	for i, name := range frame.Columns {
		frame.Series[name] = telemetry.Numbers(window.Series[i])
	}
	if len(window.Series) > 0 {
		frame.Size = len(window.Series[0])
	}
	if window.Latest != nil {
		frame.Latest = telemetry.Numbers(window.Latest)
	}
	return frame
}
