package overlay

import (
	"math"

	"github.com/weiawesome/wes-io-live/overlay-service/internal/reactive"
	"github.com/weiawesome/wes-io-live/overlay-service/pkg/log"
)

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func finiteFloat(v float64) bool { return finite(v) }

func (p Point) finite() bool { return finite(p.X, p.Y) }

func (o Obstacle) finite() bool { return finite(o.X, o.Y, o.Width, o.Height, o.Speed) }

func (m AvatarMetrics) finite() bool { return finite(m.Width, m.Height, m.OffsetX, m.OffsetY) }

// finiteEntries drops entries JSON cannot encode (NaN, ±Inf). One bad
// coordinate must not block persistence of the rest of the state.
func finiteEntries[V any](streamerID, field string, entries []reactive.Entry[string, V], ok func(V) bool) []reactive.Entry[string, V] {
	out := make([]reactive.Entry[string, V], 0, len(entries))
	for _, e := range entries {
		if !ok(e.Value) {
			l := log.L()
			l.Warn().Str(log.FieldStreamerID, streamerID).Str("field", field).Str("key", e.Key).Msg("skipping non-finite value in overlay snapshot")
			continue
		}
		out = append(out, e)
	}
	return out
}
