package shader

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const brushVertex = `#version 410 core
uniform vec2 uCenter;
uniform vec2 uHalfSize;
uniform vec2 uViewport;
out vec2 vLocal;

const vec2 corners[4] = vec2[](vec2(-1, -1), vec2(1, -1), vec2(-1, 1), vec2(1, 1));

void main() {
	vec2 c = corners[gl_VertexID];
	vLocal = c;
	vec2 px = uCenter + c * uHalfSize;
	gl_Position = vec4(px / uViewport * 2.0 - 1.0, 0.0, 1.0);
}
`

const brushFragment = `#version 410 core
in vec2 vLocal;
uniform float uValue;
uniform bool uRound;
out vec4 fragColor;

void main() {
	if (uRound && dot(vLocal, vLocal) > 1.0) {
		discard;
	}
	fragColor = vec4(uValue, uValue, uValue, 0.0);
}
`

// Brush draws rectangles and discs of a constant value into the bound
// framebuffer. Paint is blended by destination transparency, so it only
// lands on texels whose alpha is below one, and alpha is never written.
type Brush struct {
	program  uint32
	vao      uint32
	center   int32
	halfSize int32
	viewport int32
	value    int32
	round    int32
}

// NewBrush compiles the brush program. A GL context must be current.
func NewBrush() (*Brush, error) {
	program, err := CompileProgram(brushVertex, brushFragment)
	if err != nil {
		return nil, fmt.Errorf("compiling brush: %w", err)
	}
	b := &Brush{
		program:  program,
		center:   GetUniform(program, "uCenter"),
		halfSize: GetUniform(program, "uHalfSize"),
		viewport: GetUniform(program, "uViewport"),
		value:    GetUniform(program, "uValue"),
		round:    GetUniform(program, "uRound"),
	}
	// Core profile needs a bound VAO even without vertex attributes.
	gl.GenVertexArrays(1, &b.vao)
	return b, nil
}

// Stamp is one brush footprint in render target pixels.
type Stamp struct {
	CenterX, CenterY float32
	HalfW, HalfH     float32
	Round            bool
	Channel          int // 0 R, 1 G, 2 B
	Value            float32
}

// Draw stamps s into the bound framebuffer, whose viewport is width x height.
func (b *Brush) Draw(s Stamp, width, height int) {
	gl.UseProgram(b.program)
	gl.Uniform2f(b.center, s.CenterX, s.CenterY)
	gl.Uniform2f(b.halfSize, s.HalfW, s.HalfH)
	gl.Uniform2f(b.viewport, float32(width), float32(height))
	gl.Uniform1f(b.value, s.Value)
	round := int32(0)
	if s.Round {
		round = 1
	}
	gl.Uniform1i(b.round, round)

	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.ONE_MINUS_DST_ALPHA, gl.DST_ALPHA)
	gl.ColorMask(s.Channel == 0, s.Channel == 1, s.Channel == 2, false)

	gl.BindVertexArray(b.vao)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)

	gl.ColorMask(true, true, true, true)
	gl.Disable(gl.BLEND)
	gl.UseProgram(0)
}

// Destroy releases the program and vertex array.
func (b *Brush) Destroy() {
	if b.vao != 0 {
		gl.DeleteVertexArrays(1, &b.vao)
		b.vao = 0
	}
	if b.program != 0 {
		gl.DeleteProgram(b.program)
		b.program = 0
	}
}
