package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLED struct {
	colors []Color
	err    error
}

func (l *recordingLED) SetColor(c Color) error {
	l.colors = append(l.colors, c)
	return l.err
}

type recordingHaptic struct {
	pulses []time.Duration
}

func (h *recordingHaptic) Pulse(_ context.Context, d time.Duration) error {
	h.pulses = append(h.pulses, d)
	return nil
}

func newTestPattern(led LED, haptic Haptic) (*Pattern, *[]time.Duration) {
	p := NewPattern(led, haptic)
	var sleeps []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return p, &sleeps
}

func TestPattern_Sequence(t *testing.T) {
	led := &recordingLED{}
	haptic := &recordingHaptic{}
	p, sleeps := newTestPattern(led, haptic)

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []time.Duration{pulseDuration, pulseDuration, pulseDuration}, haptic.pulses)

	want := []Color{
		ColorPrimary, ColorOff,
		ColorPrimary, ColorOff,
		ColorPrimary, ColorOff,
		ColorIdle,
	}
	assert.Equal(t, want, led.colors[:len(want)])

	// 13 fade steps from idle down to zero, then off.
	fade := led.colors[len(want):]
	require.Len(t, fade, fadeSteps+2)
	assert.Equal(t, ColorIdle, fade[0])
	assert.Equal(t, Color{R: 0, G: 6, B: 12}, fade[6])
	assert.Equal(t, ColorOff, fade[fadeSteps])
	assert.Equal(t, ColorOff, fade[fadeSteps+1])

	assert.Equal(t, blinkCount+1+fadeSteps+1, len(*sleeps))
	assert.Equal(t, blinkGap, (*sleeps)[0])
	assert.Equal(t, idleHold, (*sleeps)[blinkCount])
	assert.Equal(t, fadeStepDelay, (*sleeps)[blinkCount+1])
}

func TestPattern_LEDError(t *testing.T) {
	led := &recordingLED{err: errors.New("ebusy")}
	p, _ := newTestPattern(led, nil)

	assert.Error(t, p.Run(context.Background()))
	assert.Equal(t, ColorOff, led.colors[len(led.colors)-1])
}

func TestPattern_Cancelled(t *testing.T) {
	led := &recordingLED{}
	p := NewPattern(led, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, p.Run(ctx), context.Canceled)
	assert.Equal(t, ColorOff, led.colors[len(led.colors)-1])
}

func TestSysfsLED(t *testing.T) {
	dir := t.TempDir()
	led := SysfsLED{Dir: dir}

	require.NoError(t, led.SetColor(ColorPrimary))
	got, err := os.ReadFile(filepath.Join(dir, "multi_intensity"))
	require.NoError(t, err)
	assert.Equal(t, "0 24 96", string(got))
	got, err = os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "255", string(got))

	require.NoError(t, led.SetColor(ColorOff))
	got, err = os.ReadFile(filepath.Join(dir, "brightness"))
	require.NoError(t, err)
	assert.Equal(t, "0", string(got))

	assert.Error(t, SysfsLED{Dir: filepath.Join(dir, "missing")}.SetColor(ColorIdle))
}
