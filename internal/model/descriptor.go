// Package model describes the model a local inference server is started with
// and resolves the binary and model file paths it needs.
package model

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Band is a model-size classification.
type Band int

const (
	BandSmall  Band = iota // < 5 GiB
	BandMedium             // 5–20 GiB
	BandLarge              // 20–40 GiB
	BandXLarge             // >= 40 GiB, 70B class
)

// AllLayers asks the server to offload every layer to the GPU.
const AllLayers = 999

const gib = int64(1) << 30

func (b Band) String() string {
	switch b {
	case BandSmall:
		return "small"
	case BandMedium:
		return "medium"
	case BandLarge:
		return "large"
	case BandXLarge:
		return "xlarge"
	}
	return "band(" + strconv.Itoa(int(b)) + ")"
}

// GPULayers is the fixed GPU-layer count for the band.
func (b Band) GPULayers() int {
	switch b {
	case BandMedium:
		return 40
	case BandLarge:
		return 33
	case BandXLarge:
		return 25
	}
	return AllLayers
}

// StartupTimeout is the readiness ceiling for the band.
func (b Band) StartupTimeout() time.Duration {
	switch b {
	case BandMedium:
		return 3 * time.Minute
	case BandLarge:
		return 4 * time.Minute
	case BandXLarge:
		return 5 * time.Minute
	}
	return 2 * time.Minute
}

var paramHint = regexp.MustCompile(`(?i)(?:^|[^a-z0-9.])(\d+(?:\.\d+)?)b(?:[^a-z]|$)`)

// Classify returns the band for a model of sizeBytes. When the size is
// unknown a parameter-count hint in name ("llama-3-70b-q4.gguf") is used.
func Classify(sizeBytes int64, name string) Band {
	if sizeBytes > 0 {
		switch {
		case sizeBytes < 5*gib:
			return BandSmall
		case sizeBytes < 20*gib:
			return BandMedium
		case sizeBytes < 40*gib:
			return BandLarge
		default:
			return BandXLarge
		}
	}
	m := paramHint.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return BandSmall
	}
	params, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return BandSmall
	}
	switch {
	case params <= 8:
		return BandSmall
	case params <= 20:
		return BandMedium
	case params <= 40:
		return BandLarge
	default:
		return BandXLarge
	}
}

// Descriptor is the static configuration a server process is started with.
type Descriptor struct {
	BinaryPath string
	ModelPath  string
	SizeBytes  int64
	ServerKind string
	Host       string
	Port       int
	CtxSize    int
	Parallel   int
	GPULayers  int
	ExtraArgs  []string
	// StartupTimeout bounds how long the client waits for readiness.
	StartupTimeout time.Duration
}

// Params are the tunables a Descriptor is built from.
type Params struct {
	ServerKind string
	Host       string
	Port       int
	CtxSize    int
	Parallel   int
	// GPULayers overrides the band-derived value when > 0.
	GPULayers int
	ExtraArgs []string
}

// NewDescriptor builds a Descriptor for the resolved paths, deriving the GPU
// layer count and startup ceiling from the model size.
func NewDescriptor(paths Paths, p Params) Descriptor {
	size := int64(0)
	if fi, err := os.Stat(paths.Model); err == nil {
		size = fi.Size()
	}
	band := Classify(size, paths.Model)
	d := Descriptor{
		BinaryPath:     paths.Binary,
		ModelPath:      paths.Model,
		SizeBytes:      size,
		ServerKind:     p.ServerKind,
		Host:           p.Host,
		Port:           p.Port,
		CtxSize:        p.CtxSize,
		Parallel:       p.Parallel,
		GPULayers:      band.GPULayers(),
		ExtraArgs:      append([]string(nil), p.ExtraArgs...),
		StartupTimeout: band.StartupTimeout(),
	}
	if p.GPULayers > 0 {
		d.GPULayers = p.GPULayers
	}
	if d.Parallel <= 0 {
		d.Parallel = 1
	}
	return d
}

// Band returns the size band of the described model.
func (d Descriptor) Band() Band { return Classify(d.SizeBytes, d.ModelPath) }

// Args renders the server command line (without the binary).
func (d Descriptor) Args() []string {
	args := []string{
		"-m", d.ModelPath,
		"--port", strconv.Itoa(d.Port),
		"--ctx-size", strconv.Itoa(d.CtxSize),
		"--n-gpu-layers", strconv.Itoa(d.GPULayers),
		"--parallel", strconv.Itoa(d.Parallel),
	}
	if h := strings.TrimSpace(d.Host); h != "" {
		args = append(args, "--host", h)
	}
	return append(args, d.ExtraArgs...)
}

// ServerURL is the base URL of the server's HTTP endpoint.
func (d Descriptor) ServerURL() string {
	host := strings.TrimSpace(d.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	return "http://" + host + ":" + strconv.Itoa(d.Port)
}
