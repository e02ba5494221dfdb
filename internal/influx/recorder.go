package influx

import (
	"errors"
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/lightshow/fxrunner/internal/sequence"
)

// Measurement names written by the Recorder.
const (
	MeasurementEffectActivated = "effect_activated"
	MeasurementEffectExpired   = "effect_expired"
	MeasurementGroupBlackout   = "group_blackout"
	MeasurementTrackChange     = "track_change"
	MeasurementSequenceLoad    = "sequence_load"
	MeasurementStatus          = "runner_status"
)

// PointWriter accepts points for a bucket.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Recorder turns show activity into points. It satisfies sequence.Observer
// and the worker's track observer.
type Recorder struct {
	writer PointWriter
	bucket string
	now    func() time.Time
}

// NewRecorder writes to bucket through w.
func NewRecorder(w PointWriter, bucket string) *Recorder {
	return &Recorder{writer: w, bucket: bucket, now: time.Now}
}

func (r *Recorder) write(p *influxdb2_write.Point) {
	// telemetry is best effort
	_ = r.writer.WritePoint(r.bucket, p)
}

func groupTag(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func (r *Recorder) EffectActivated(ev sequence.Event, groupID uint, trackURI string) {
	r.write(influxdb2_write.NewPoint(MeasurementEffectActivated,
		map[string]string{
			"effect": ev.EffectName,
			"group":  groupTag(groupID),
			"track":  trackURI,
		},
		map[string]interface{}{
			"event_id":     int64(ev.ID),
			"timestamp_ms": ev.Timestamp,
			"duration_ms":  ev.Duration,
		},
		r.now()))
}

func (r *Recorder) EffectExpired(ev sequence.Event, trackURI string) {
	r.write(influxdb2_write.NewPoint(MeasurementEffectExpired,
		map[string]string{
			"effect": ev.EffectName,
			"track":  trackURI,
		},
		map[string]interface{}{
			"event_id": int64(ev.ID),
		},
		r.now()))
}

func (r *Recorder) GroupBlackedOut(groupID uint) {
	r.write(influxdb2_write.NewPoint(MeasurementGroupBlackout,
		map[string]string{"group": groupTag(groupID)},
		map[string]interface{}{"count": int64(1)},
		r.now()))
}

func (r *Recorder) TrackChanged(uri string, start time.Time) {
	r.write(influxdb2_write.NewPoint(MeasurementTrackChange,
		map[string]string{"track": uri},
		map[string]interface{}{"lag_ms": r.now().Sub(start).Milliseconds()},
		r.now()))
}

func (r *Recorder) SequenceLoaded(uri string, err error) {
	outcome := "loaded"
	switch {
	case err == nil:
	case errors.Is(err, sequence.ErrSuperseded):
		outcome = "superseded"
	default:
		outcome = "error"
	}
	fields := map[string]interface{}{"count": int64(1)}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.write(influxdb2_write.NewPoint(MeasurementSequenceLoad,
		map[string]string{"track": uri, "outcome": outcome},
		fields,
		r.now()))
}

// Status writes a scheduler snapshot.
func (r *Recorder) Status(st sequence.Status, beats uint64, frames uint64) {
	track := st.TrackURI
	if track == "" {
		track = "none"
	}
	r.write(influxdb2_write.NewPoint(MeasurementStatus,
		map[string]string{"state": st.State.String(), "track": track},
		map[string]interface{}{
			"offset_ms": st.Offset.Milliseconds(),
			"groups":    int64(len(st.Groups)),
			"pending":   int64(len(st.Pending)),
			"active":    int64(len(st.Active)),
			"beats":     int64(beats),
			"frames":    int64(frames),
		},
		r.now()))
}
