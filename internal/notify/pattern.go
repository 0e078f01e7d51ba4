package notify

import (
	"context"
	"time"
)

// Color is an RGB triple.
type Color struct {
	R, G, B uint8
}

// Pattern colours.
var (
	ColorPrimary = Color{R: 0, G: 24, B: 96}
	ColorIdle    = Color{R: 0, G: 12, B: 24}
	ColorOff     = Color{}
)

// Pattern timing.
const (
	blinkCount    = 3
	pulseDuration = 120 * time.Millisecond
	blinkGap      = 80 * time.Millisecond
	idleHold      = 120 * time.Millisecond
	fadeSteps     = 12
	fadeStepDelay = 35 * time.Millisecond
)

// LED is a single RGB indicator.
type LED interface {
	SetColor(c Color) error
}

// Haptic drives the vibration motor. Pulse blocks for d.
type Haptic interface {
	Pulse(ctx context.Context, d time.Duration) error
}

// Pattern is the new-message effect: three blinks in the primary colour,
// each with a haptic pulse, then the idle colour fading to off.
type Pattern struct {
	LED    LED
	Haptic Haptic

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPattern creates the effect. A nil haptic keeps the pulse timing
// without vibrating.
func NewPattern(led LED, haptic Haptic) *Pattern {
	if haptic == nil {
		haptic = silentHaptic{}
	}
	return &Pattern{LED: led, Haptic: haptic, sleep: sleepCtx}
}

// Run plays the pattern once. The LED is switched off if ctx is cancelled
// part way through.
func (p *Pattern) Run(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			_ = p.LED.SetColor(ColorOff) //nolint:errcheck // Best effort after a failure
		}
	}()

	for range blinkCount {
		if err := p.LED.SetColor(ColorPrimary); err != nil {
			return err
		}
		if err := p.Haptic.Pulse(ctx, pulseDuration); err != nil {
			return err
		}
		if err := p.LED.SetColor(ColorOff); err != nil {
			return err
		}
		if err := p.sleep(ctx, blinkGap); err != nil {
			return err
		}
	}

	if err := p.LED.SetColor(ColorIdle); err != nil {
		return err
	}
	if err := p.sleep(ctx, idleHold); err != nil {
		return err
	}
	return p.fade(ctx, ColorIdle)
}

func (p *Pattern) fade(ctx context.Context, from Color) error {
	for step := fadeSteps; step >= 0; step-- {
		c := Color{
			R: uint8(int(from.R) * step / fadeSteps),
			G: uint8(int(from.G) * step / fadeSteps),
			B: uint8(int(from.B) * step / fadeSteps),
		}
		if err := p.LED.SetColor(c); err != nil {
			return err
		}
		if err := p.sleep(ctx, fadeStepDelay); err != nil {
			return err
		}
	}
	return p.LED.SetColor(ColorOff)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type silentHaptic struct{}

func (silentHaptic) Pulse(ctx context.Context, d time.Duration) error {
	return sleepCtx(ctx, d)
}
