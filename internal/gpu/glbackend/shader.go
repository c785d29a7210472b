package glbackend

import (
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
)

const vertexShader = `#version 410 core
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec2 aUV;
layout(location = 2) in float aLight;
layout(location = 3) in float aAO;
layout(location = 4) in float aNormal;
layout(location = 5) in float aPage;

uniform mat4 uViewProj;
uniform mat4 uModel;

out vec2 vUV;
out float vShade;
flat out float vPage;

void main() {
	vUV = aUV;
	vShade = aLight * aAO;
	vPage = aPage;
	gl_Position = uViewProj * uModel * vec4(aPos, 1.0);
}
`

const fragmentShader = `#version 410 core
in vec2 vUV;
in float vShade;
flat in float vPage;

uniform sampler2DArray uAtlas;
uniform float uAlphaCutoff;

out vec4 fragColor;

void main() {
	vec4 c = texture(uAtlas, vec3(vUV, vPage));
	if (c.a < uAlphaCutoff) {
		discard;
	}
	fragColor = vec4(c.rgb * vShade, c.a);
}
`

// program is a linked shader program with its uniform locations.
type program struct {
	id          uint32
	viewProj    int32
	model       int32
	atlas       int32
	alphaCutoff int32
}

func newProgram() (*program, error) {
	id, err := compileProgram(vertexShader, fragmentShader)
	if err != nil {
		return nil, err
	}
	return &program{
		id:          id,
		viewProj:    uniform(id, "uViewProj"),
		model:       uniform(id, "uModel"),
		atlas:       uniform(id, "uAtlas"),
		alphaCutoff: uniform(id, "uAlphaCutoff"),
	}, nil
}

func uniform(program uint32, name string) int32 {
	return gl.GetUniformLocation(program, gl.Str(name+"\x00"))
}

func compileProgram(vertexSrc, fragmentSrc string) (uint32, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("glbackend: link program: %v", log)
	}
	return program, nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("glbackend: compile shader: %v", log)
	}
	return shader, nil
}
