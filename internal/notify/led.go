package notify

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// SysfsLED drives a Linux multicolour LED class device, e.g.
// /sys/class/leds/rgb:status, whose multi_index is "red green blue".
type SysfsLED struct {
	Dir string
}

// SetColor writes the channel intensities and full brightness, or zero
// brightness for ColorOff.
func (l SysfsLED) SetColor(c Color) error {
	if c != ColorOff {
		v := fmt.Sprintf("%d %d %d", c.R, c.G, c.B)
		if err := l.write("multi_intensity", v); err != nil {
			return err
		}
	}
	brightness := 0
	if c != ColorOff {
		brightness = 255
	}
	return l.write("brightness", strconv.Itoa(brightness))
}

func (l SysfsLED) write(attr, value string) error {
	path := filepath.Join(l.Dir, attr)
	if err := os.WriteFile(path, []byte(value), 0o644); err != nil { //nolint:gosec // sysfs attribute
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// LogLED records colour changes at debug level. It stands in for hardware
// that has no LED.
type LogLED struct {
	Logger Logger
}

// SetColor logs c.
func (l LogLED) SetColor(c Color) error {
	if l.Logger != nil {
		l.Logger.Debug("led", "r", c.R, "g", c.G, "b", c.B)
	}
	return nil
}
