package render

import (
	"fmt"
	"image/color"
	"math"

	"gopkg.in/yaml.v3"
)

// ColorTheme is a predefined color scheme used to tell anchors apart:
//   - ClassicTheme: blue to red
//   - GrayscaleTheme: monochrome
//   - JungleTheme: dark green to yellow
//   - ThermalTheme: black to red to yellow to white
//   - MarineTheme: deep blue to cyan to white
type ColorTheme string

const (
	ClassicTheme   ColorTheme = "classic"
	GrayscaleTheme ColorTheme = "grayscale"
	JungleTheme    ColorTheme = "jungle"
	ThermalTheme   ColorTheme = "thermal"
	MarineTheme    ColorTheme = "marine"
)

var validThemes = map[ColorTheme]struct{}{
	ClassicTheme:   {},
	GrayscaleTheme: {},
	JungleTheme:    {},
	ThermalTheme:   {},
	MarineTheme:    {},
}

func (t ColorTheme) String() string {
	return string(t)
}

func (t *ColorTheme) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*t = ColorTheme(s)
	return t.Validate()
}

func (t ColorTheme) Validate() error {
	if _, ok := validThemes[t]; !ok {
		return fmt.Errorf("invalid color theme: %s", t)
	}
	return nil
}

// Palette returns n colors spread evenly over the theme. Both ends of the
// theme are avoided since they tend to vanish on a white background.
func Palette(theme ColorTheme, n int) []color.Color {
	if n <= 0 {
		return nil
	}

	fn := themeFunc(theme)
	colors := make([]color.Color, n)
	for i := range colors {
		colors[i] = fn(0.15 + 0.7*float64(i+1)/float64(n+1))
	}
	return colors
}

// HSV represents a color in HSV (Hue, Saturation, Value) color space
type HSV struct {
	H float64 // Hue angle in degrees [0-360]
	S float64 // Saturation [0-1]
	V float64 // Value/Brightness [0-1]
}

// RGB converts HSV to RGB color space
func (hsv HSV) RGB() color.RGBA {
	if hsv.S <= 0.0 {
		v := uint8(hsv.V * 255)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}

	h := math.Mod(hsv.H, 360)
	if h < 0 {
		h += 360
	}
	h /= 60

	i := int(h)
	f := h - float64(i)

	v := uint8(hsv.V * 255)
	p := uint8((hsv.V * (1 - hsv.S)) * 255)
	q := uint8((hsv.V * (1 - (hsv.S * f))) * 255)
	t := uint8((hsv.V * (1 - (hsv.S * (1 - f)))) * 255)

	switch i {
	case 0:
		return color.RGBA{R: v, G: t, B: p, A: 255}
	case 1:
		return color.RGBA{R: q, G: v, B: p, A: 255}
	case 2:
		return color.RGBA{R: p, G: v, B: t, A: 255}
	case 3:
		return color.RGBA{R: p, G: q, B: v, A: 255}
	case 4:
		return color.RGBA{R: t, G: p, B: v, A: 255}
	default:
		return color.RGBA{R: v, G: p, B: q, A: 255}
	}
}

func themeFunc(theme ColorTheme) func(float64) color.Color {
	switch theme {
	case GrayscaleTheme:
		return func(x float64) color.Color {
			// dark end only, light grays are unreadable on white
			v := uint8((1 - x) * 0.8 * 255)
			return color.RGBA{R: v, G: v, B: v, A: 255}
		}

	case JungleTheme:
		return func(x float64) color.Color {
			return HSV{
				H: 120 - (x * 60),
				S: 1.0,
				V: 0.3 + (math.Pow(x, 0.6) * 0.5),
			}.RGB()
		}

	case ThermalTheme:
		return func(x float64) color.Color {
			if x < 0.5 {
				return color.RGBA{R: uint8(0.4*255 + x*1.2*255), A: 255}
			}
			return color.RGBA{R: 255, G: uint8((x - 0.5) * 1.6 * 255), A: 255}
		}

	case MarineTheme:
		return func(x float64) color.Color {
			return HSV{
				H: 240 - (x * 60),
				S: 1.0 - (x * 0.5),
				V: 0.4 + (math.Pow(x, 0.6) * 0.5),
			}.RGB()
		}

	default:
		return func(x float64) color.Color {
			return HSV{
				H: 240 - (x * 240),
				S: 0.9 + (x * 0.1),
				V: 0.85,
			}.RGB()
		}
	}
}
