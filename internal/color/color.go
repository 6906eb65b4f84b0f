// Package color converts between RGB, colour temperature (Kelvin and
// mireds) and a simple brightness measure for LED lights.
package color

import "math"

// RGB is an 8-bit colour. Components outside 0..255 are clamped by Clamp.
type RGB struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

var (
	White = RGB{255, 255, 255}
	Black = RGB{0, 0, 0}
)

func (c RGB) Clamp() RGB {
	return RGB{clamp(c.R), clamp(c.G), clamp(c.B)}
}

// Brightness is the mean of the three components.
func (c RGB) Brightness() int {
	return int(math.Round(float64(c.R+c.G+c.B) / 3))
}

// Scale multiplies every component by brightness/255.
func (c RGB) Scale(brightness int) RGB {
	factor := float64(clamp(brightness)) / 255.0
	return RGB{
		R: int(math.Round(float64(c.R) * factor)),
		G: int(math.Round(float64(c.G) * factor)),
		B: int(math.Round(float64(c.B) * factor)),
	}
}

// XYZ converts to CIE 1931 XYZ through the sRGB transfer function.
func (c RGB) XYZ() (x, y, z float64) {
	r := linearize(float64(c.R) / 255.0)
	g := linearize(float64(c.G) / 255.0)
	b := linearize(float64(c.B) / 255.0)

	x = r*0.4124 + g*0.3576 + b*0.1805
	y = r*0.2126 + g*0.7152 + b*0.0722
	z = r*0.0193 + g*0.1192 + b*0.9505
	return x, y, z
}

// Mireds approximates the colour temperature of c. Black yields 0.
func (c RGB) Mireds() int {
	x, y, z := c.XYZ()
	if x == 0 && y == 0 && z == 0 {
		return 0
	}
	cx, cy := Chromaticity(x, y, z)
	return KelvinToMireds(ChromaticityToKelvin(cx, cy))
}

// Chromaticity projects XYZ onto the xy plane.
func Chromaticity(x, y, z float64) (float64, float64) {
	total := x + y + z
	if total == 0 {
		return 0, 0
	}
	return x / total, y / total
}

// ChromaticityToKelvin uses McCamy's approximation.
func ChromaticityToKelvin(x, y float64) int {
	n := (x - 0.3320) / (0.1858 - y)
	return int(math.Round(449*n*n*n + 3525*n*n + 6823.3*n + 5520.33))
}

func KelvinToMireds(kelvin int) int {
	if kelvin <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(kelvin)))
}

func MiredsToKelvin(mireds int) int {
	if mireds <= 0 {
		return 0
	}
	return int(math.Round(1_000_000 / float64(mireds)))
}

// KelvinToRGB approximates the colour of a black body at kelvin, clamped
// to 1000..40000 K.
func KelvinToRGB(kelvin int) RGB {
	temp := math.Max(1000, math.Min(float64(kelvin), 40000)) / 100.0

	var red, green, blue float64
	if temp <= 66 {
		red = 255
		green = 99.4708025861*math.Log(temp) - 161.1195681661
		if temp <= 19 {
			blue = 0
		} else {
			blue = 138.5177312231*math.Log(temp-10) - 305.0447927307
		}
	} else {
		red = 329.698727446 * math.Pow(temp-60, -0.1332047592)
		green = 288.1221695283 * math.Pow(temp-60, -0.0755148492)
		blue = 255
	}
	return RGB{clamp(int(red)), clamp(int(green)), clamp(int(blue))}
}

func linearize(v float64) float64 {
	if v > 0.04045 {
		return math.Pow((v+0.055)/1.055, 2.4)
	}
	return v / 12.92
}

func clamp(v int) int {
	return max(0, min(255, v))
}
