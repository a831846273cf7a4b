package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrTranscode marks a failed ffmpeg conversion.
var ErrTranscode = errors.New("transcode failed")

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Normalizer converts containers the providers do not accept.
type Normalizer struct {
	bin       string
	extraArgs []string
	run       Runner
}

// NewNormalizer builds a normalizer that shells out to bin (default "ffmpeg").
// extraArgs is a shell-style string inserted between the input and output.
func NewNormalizer(bin, extraArgs string) (*Normalizer, error) {
	if bin == "" {
		bin = "ffmpeg"
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg args %q: %w", extraArgs, err)
	}
	return &Normalizer{bin: bin, extraArgs: args, run: execRunner}, nil
}

// WithRunner swaps the command runner; used by tests.
func (n *Normalizer) WithRunner(r Runner) *Normalizer {
	n.run = r
	return n
}

// TargetFormat reports the container ext must be converted to, if any.
// GSM goes to WAV; anything else besides WAV and MP3 goes to MP3.
func TargetFormat(ext string) (string, bool) {
	switch strings.ToLower(ext) {
	case "wav", "mp3":
		return "", false
	case "gsm":
		return "wav", true
	default:
		return "mp3", true
	}
}

// Normalize returns a path in a supported container, transcoding into the
// workspace when needed. Both files stay tracked by ws.
func (n *Normalizer) Normalize(ctx context.Context, ws *Workspace, path string) (string, error) {
	src := Ext(path)
	target, convert := TargetFormat(src)
	if !convert {
		return path, nil
	}

	out := ws.Path(target)
	args := append([]string{"-y", "-i", path}, n.extraArgs...)
	args = append(args, out)
	if output, err := n.run(ctx, n.bin, args...); err != nil {
		return "", fmt.Errorf("%w: %s -> %s: %v: %s", ErrTranscode, src, target, err, strings.TrimSpace(string(output)))
	}
	return out, nil
}
