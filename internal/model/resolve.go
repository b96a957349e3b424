package model

import (
	"os/exec"
	"path/filepath"
	"strings"

	"inferd/internal/common/fsutil"
)

// Paths are the resolved server binary and model file.
type Paths struct {
	Binary string
	Model  string
}

// Complete reports whether both paths are known.
func (p Paths) Complete() bool { return p.Binary != "" && p.Model != "" }

// Strategy is one step of path resolution. A strategy may resolve either
// path, both, or neither; empty fields mean "not found here".
type Strategy interface {
	Name() string
	Resolve() Paths
}

// Resolution is the outcome of running a Resolver.
type Resolution struct {
	Paths
	BinarySource string
	ModelSource  string
}

// MissingBinary reports whether no strategy found the binary.
func (r Resolution) MissingBinary() bool { return r.Binary == "" }

// MissingModel reports whether no strategy found the model.
func (r Resolution) MissingModel() bool { return r.Model == "" }

// Resolver runs strategies in order; the first strategy that yields a path
// wins for that path.
type Resolver struct {
	Strategies []Strategy
}

// NewResolver returns a Resolver over the given strategies.
func NewResolver(s ...Strategy) *Resolver { return &Resolver{Strategies: s} }

// Resolve runs every strategy until both paths are known.
func (r *Resolver) Resolve() Resolution {
	var res Resolution
	for _, s := range r.Strategies {
		if res.Complete() {
			break
		}
		p := s.Resolve()
		if res.Binary == "" && p.Binary != "" {
			res.Binary, res.BinarySource = p.Binary, s.Name()
		}
		if res.Model == "" && p.Model != "" {
			res.Model, res.ModelSource = p.Model, s.Name()
		}
	}
	return res
}

// BinaryName is the executable name for a server kind.
func BinaryName(serverKind string) string {
	if strings.EqualFold(serverKind, "llamafile") {
		return "llamafile"
	}
	return "llama-server"
}

// ExplicitStrategy returns configured paths that exist on disk.
type ExplicitStrategy struct {
	Binary string
	Model  string
}

func (ExplicitStrategy) Name() string { return "explicit" }

func (s ExplicitStrategy) Resolve() Paths {
	var p Paths
	if b := expand(s.Binary); b != "" && fsutil.IsFile(b) {
		p.Binary = b
	}
	if m := expand(s.Model); m != "" && fsutil.IsFile(m) {
		p.Model = m
	}
	return p
}

// DefaultInstallStrategy probes the fixed install location:
// <Dir>/bin/<binary> and <Dir>/models/*.gguf. When LookPath is set the binary
// is also searched for on $PATH.
type DefaultInstallStrategy struct {
	Dir        string
	BinaryName string
	LookPath   bool
}

func (DefaultInstallStrategy) Name() string { return "default_install" }

func (s DefaultInstallStrategy) Resolve() Paths {
	var p Paths
	name := s.BinaryName
	if name == "" {
		name = "llama-server"
	}
	if dir := expand(s.Dir); dir != "" {
		if b := filepath.Join(dir, "bin", name); fsutil.IsExecutable(b) {
			p.Binary = b
		}
		if files, err := fsutil.FilesWithExt(filepath.Join(dir, "models"), ".gguf"); err == nil && len(files) > 0 {
			p.Model = files[0]
		}
	}
	if p.Binary == "" && s.LookPath {
		if lp, err := exec.LookPath(name); err == nil {
			p.Binary = lp
		}
	}
	return p
}

// ScanStrategy scans Dir for *.gguf files, preferring one whose name
// contains Preferred.
type ScanStrategy struct {
	Dir       string
	Preferred string
}

func (ScanStrategy) Name() string { return "scan" }

func (s ScanStrategy) Resolve() Paths {
	dir := expand(s.Dir)
	if dir == "" {
		return Paths{}
	}
	files, err := fsutil.FilesWithExt(dir, ".gguf")
	if err != nil || len(files) == 0 {
		return Paths{}
	}
	if want := strings.ToLower(strings.TrimSpace(s.Preferred)); want != "" {
		for _, f := range files {
			if strings.Contains(strings.ToLower(filepath.Base(f)), want) {
				return Paths{Model: f}
			}
		}
	}
	return Paths{Model: files[0]}
}

func expand(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	out, err := fsutil.ExpandHome(p)
	if err != nil {
		return ""
	}
	return out
}
