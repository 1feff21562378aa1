// Package engine describes the contract of the external rendering engine: how it
// is invoked and where it writes its output. The executor and the locator both
// depend on this package so the two sides of the convention cannot drift apart.
package engine

import (
	"path/filepath"
	"strings"

	"github.com/Harsh-BH/manim-sentinel/internal/domain"
)

const (
	// SourceFile is the script name inside every sandbox.
	SourceFile = "scene.py"
	// MediaDir is the engine's media root, relative to the sandbox.
	MediaDir = "media"
	// Extension of rendered artifacts.
	Extension = ".mp4"
	// ContentType of rendered artifacts.
	ContentType = "video/mp4"
)

// Tier is the engine-specific description of a quality preset.
type Tier struct {
	Flag       string
	Dir        string
	Resolution string
	FrameRate  int
}

var tiers = map[domain.Quality]Tier{
	domain.QualityLow:    {Flag: "-ql", Dir: "480p15", Resolution: "854x480", FrameRate: 15},
	domain.QualityMedium: {Flag: "-qm", Dir: "720p30", Resolution: "1280x720", FrameRate: 30},
	domain.QualityHigh:   {Flag: "-qh", Dir: "1080p60", Resolution: "1920x1080", FrameRate: 60},
}

// TierFor returns the tier for q. ok is false for unrecognized qualities.
func TierFor(q domain.Quality) (Tier, bool) {
	t, ok := tiers[q]
	return t, ok
}

// DefaultExtraArgs keeps renders deterministic and the logs readable.
var DefaultExtraArgs = []string{"--disable_caching", "--progress_bar", "none"}

// Engine is the command line used to invoke the renderer.
type Engine struct {
	Command   []string
	ExtraArgs []string
}

// New parses command (e.g. "manim" or "python3 -m manim") into an Engine.
func New(command string, extraArgs []string) Engine {
	return Engine{Command: strings.Fields(command), ExtraArgs: extraArgs}
}

// Argv returns the full argument vector for rendering entryPoint at quality q.
// Paths are relative to the sandbox so confinement wrappers see the same layout.
func (e Engine) Argv(entryPoint string, q domain.Quality) []string {
	tier := tiers[q]
	argv := make([]string, 0, len(e.Command)+len(e.ExtraArgs)+5)
	argv = append(argv, e.Command...)
	argv = append(argv, tier.Flag, "--media_dir", MediaDir)
	argv = append(argv, e.ExtraArgs...)
	argv = append(argv, SourceFile, entryPoint)
	return argv
}

// OutputPath is where the engine writes the artifact for entryPoint inside sandboxDir:
// <sandbox>/media/videos/<script stem>/<tier dir>/<entry point>.mp4
func OutputPath(sandboxDir, entryPoint string, q domain.Quality) string {
	stem := strings.TrimSuffix(SourceFile, filepath.Ext(SourceFile))
	return filepath.Join(sandboxDir, MediaDir, "videos", stem, tiers[q].Dir, entryPoint+Extension)
}

// Catalogue lists the recognized quality tiers.
func Catalogue() []domain.QualityInfo {
	out := make([]domain.QualityInfo, 0, len(domain.Qualities))
	for _, q := range domain.Qualities {
		t := tiers[q]
		out = append(out, domain.QualityInfo{Name: q, Resolution: t.Resolution, FrameRate: t.FrameRate})
	}
	return out
}
