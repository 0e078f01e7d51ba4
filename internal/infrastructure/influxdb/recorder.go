package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLink         = "link_state"
	MeasurementSession      = "messaging_session"
	MeasurementNotification = "notification"
	MeasurementBoot         = "boot"
)

// PointWriter accepts telemetry points. Client implements it.
type PointWriter interface {
	Write(p *write.Point)
}

// Recorder shapes connectivity events into points tagged with the device.
// A Recorder with a nil writer discards everything, so callers need not
// check whether telemetry is enabled.
type Recorder struct {
	w        PointWriter
	deviceID string
	now      func() time.Time
}

// NewRecorder creates a recorder. w may be nil.
func NewRecorder(w PointWriter, deviceID string) *Recorder {
	return &Recorder{w: w, deviceID: deviceID, now: time.Now}
}

// LinkState records a station link transition.
func (r *Recorder) LinkState(state string, retries int, fallback bool) {
	r.write(MeasurementLink,
		map[string]string{"state": state},
		map[string]any{"retries": retries, "fallback": fallback},
	)
}

// Session records the messaging session connecting or dropping.
func (r *Recorder) Session(connected bool, host string, dropped uint64) {
	r.write(MeasurementSession,
		map[string]string{"host": host},
		map[string]any{"connected": connected, "dropped": int64(dropped)}, // #nosec G115 -- counter
	)
}

// Notification records one effect run.
func (r *Recorder) Notification(d time.Duration, err error) {
	fields := map[string]any{"duration_ms": d.Milliseconds(), "ok": err == nil}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.write(MeasurementNotification, nil, fields)
}

// Boot records the startup outcome.
func (r *Recorder) Boot(result string) {
	r.write(MeasurementBoot, map[string]string{"result": result}, map[string]any{"count": 1})
}

func (r *Recorder) write(measurement string, tags map[string]string, fields map[string]any) {
	if r == nil || r.w == nil {
		return
	}
	all := map[string]string{"device_id": r.deviceID}
	for k, v := range tags {
		all[k] = v
	}
	r.w.Write(write.NewPoint(measurement, all, fields, r.now()))
}
