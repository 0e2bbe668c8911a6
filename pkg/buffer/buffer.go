// Package buffer defines the buffer attach format: vertex streams that write
// into a shared vertex cache and polygon corners that read from it.
package buffer

import (
	"fmt"

	"github.com/Faultbox/sa3d-weighted/pkg/math"
)

// CacheSize is the number of addressable vertex cache slots.
const CacheSize = 0x10000

// Vertex is a single entry of a vertex stream.
type Vertex struct {
	Position math.Vec3 `yaml:"position"`
	Normal   math.Vec3 `yaml:"normal"`
	Index    uint16    `yaml:"index"`  // Cache slot relative to the mesh write offset
	Weight   float32   `yaml:"weight"` // Blend weight of the owning node, 0 resets the slot
}

// Color is an 8-bit RGBA color.
type Color struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
	A uint8 `yaml:"a"`
}

// White is the default corner color.
var White = Color{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

// String returns the color as a hex string.
func (c Color) String() string {
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// Corner is a polygon corner referencing a cache slot.
type Corner struct {
	VertexIndex uint16    `yaml:"vertex"`
	Color       Color     `yaml:"color"`
	Texcoord    math.Vec2 `yaml:"uv"`
}

// Material holds the rendering properties shared by a polygon group.
type Material struct {
	Diffuse          Color   `yaml:"diffuse"`
	Specular         Color   `yaml:"specular"`
	Ambient          Color   `yaml:"ambient"`
	SpecularExponent float32 `yaml:"specular_exponent"`
	TextureIndex     uint32  `yaml:"texture_index"`
	UseTexture       bool    `yaml:"use_texture"`
	UseAlpha         bool    `yaml:"use_alpha"`
	BackfaceCulling  bool    `yaml:"backface_culling"`
}

// DefaultMaterial returns a white untextured material.
func DefaultMaterial() Material {
	return Material{
		Diffuse:          White,
		Specular:         White,
		Ambient:          Color{A: 0xFF},
		SpecularExponent: 11,
		BackfaceCulling:  true,
	}
}
