package render

import (
	"fmt"
	"image/color"
	"math"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	MarineTheme    ColorTheme = "marine"
)

// ColorTheme selects the colors of the photodiode series.
type ColorTheme string

// ParseColorTheme validates a theme name, an empty name selects ClassicTheme.
func ParseColorTheme(s string) (ColorTheme, error) {
	switch t := ColorTheme(s); t {
	case "":
		return ClassicTheme, nil
	case ClassicTheme, GrayscaleTheme, JungleTheme, MarineTheme:
		return t, nil
	default:
		return "", fmt.Errorf("unsupported color theme '%s'", s)
	}
}

// hsvColor converts a hue in degrees and saturation/value in [0-1] for drawing.
func hsvColor(h, s, v float64) color.RGBA {
	r, g, b := colorful.Hsv(h, s, v).RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// themeColor returns the color at position x in [0-1] of a theme.
func themeColor(theme ColorTheme, x float64) color.RGBA {
	x = math.Max(0, math.Min(1, x))

	switch theme {
	case GrayscaleTheme: // Black -> Light gray
		v := uint8(x * 180)
		return color.RGBA{R: v, G: v, B: v, A: 0xff}

	case JungleTheme: // Dark Green -> Yellow
		return hsvColor(120-x*60, 1, 0.45+x*0.4)

	case MarineTheme: // Deep Blue -> Cyan
		return hsvColor(240-x*60, 1-x*0.4, 0.5+x*0.4)

	default: // Blue -> Red
		return hsvColor(240-x*240, 0.9, 0.85)
	}
}

// Palette returns n evenly spaced colors of a theme.
func Palette(theme ColorTheme, n int) []color.RGBA {
	colors := make([]color.RGBA, n)
	for i := range colors {
		var x float64
		if n > 1 {
			x = float64(i) / float64(n-1)
		}
		colors[i] = themeColor(theme, x)
	}
	return colors
}

// terminalColor converts a palette color for lipgloss.
func terminalColor(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}
