package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

func TestWorkspaceSaveAndCleanup(t *testing.T) {
	ws, err := NewWorkspace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	p, err := ws.Save(strings.NewReader("RIFF"), "Call.WAV")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := regexp.MatchString(`^temp_[0-9a-f]{32}\.wav$`, filepath.Base(p)); !ok {
		t.Errorf("unexpected temp name %q", filepath.Base(p))
	}
	data, err := os.ReadFile(p)
	if err != nil || string(data) != "RIFF" {
		t.Fatalf("saved content = %q, %v", data, err)
	}

	// reserved but never written
	ws.Path("mp3")

	if err := ws.Cleanup(); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if _, err := os.Stat(p); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file still present: %v", err)
	}
	if len(ws.Files()) != 0 {
		t.Errorf("Files() after cleanup = %v", ws.Files())
	}
}

func TestExt(t *testing.T) {
	tests := map[string]string{
		"a.wav":     "wav",
		"b.MP3":     "mp3",
		"c.tar.gsm": "gsm",
		"noext":     "bin",
		"dir/x.M4a": "m4a",
	}
	for in, want := range tests {
		if got := Ext(in); got != want {
			t.Errorf("Ext(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTargetFormat(t *testing.T) {
	tests := []struct {
		ext     string
		target  string
		convert bool
	}{
		{"wav", "", false},
		{"mp3", "", false},
		{"gsm", "wav", true},
		{"GSM", "wav", true},
		{"m4a", "mp3", true},
		{"ogg", "mp3", true},
		{"bin", "mp3", true},
	}
	for _, tt := range tests {
		target, convert := TargetFormat(tt.ext)
		if target != tt.target || convert != tt.convert {
			t.Errorf("TargetFormat(%q) = %q,%v want %q,%v", tt.ext, target, convert, tt.target, tt.convert)
		}
	}
}

type recordedCall struct {
	name string
	args []string
}

func fakeRunner(calls *[]recordedCall, fail bool) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		*calls = append(*calls, recordedCall{name: name, args: args})
		if fail {
			// ffmpeg may leave a partial output behind
			_ = os.WriteFile(args[len(args)-1], []byte("partial"), 0o600)
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		}
		return nil, os.WriteFile(args[len(args)-1], []byte("converted"), 0o600)
	}
}

func TestNormalizePassThrough(t *testing.T) {
	ws, _ := NewWorkspace(t.TempDir())
	defer ws.Cleanup()

	var calls []recordedCall
	n, err := NewNormalizer("", "")
	if err != nil {
		t.Fatal(err)
	}
	n.WithRunner(fakeRunner(&calls, false))

	in, _ := ws.Save(strings.NewReader("x"), "call.mp3")
	out, err := n.Normalize(context.Background(), ws, in)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("mp3 should pass through, got %s", out)
	}
	if len(calls) != 0 {
		t.Errorf("ffmpeg should not run, got %v", calls)
	}
}

func TestNormalizeGSMToWAV(t *testing.T) {
	ws, _ := NewWorkspace(t.TempDir())
	defer ws.Cleanup()

	var calls []recordedCall
	n, err := NewNormalizer("/usr/bin/ffmpeg", `-ar 16000 -ac 1 -loglevel "error"`)
	if err != nil {
		t.Fatal(err)
	}
	n.WithRunner(fakeRunner(&calls, false))

	in, _ := ws.Save(strings.NewReader("x"), "call.gsm")
	out, err := n.Normalize(context.Background(), ws, in)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Ext(out) != ".wav" {
		t.Errorf("output %s is not wav", out)
	}
	if len(calls) != 1 {
		t.Fatalf("expected one ffmpeg call, got %d", len(calls))
	}
	got := strings.Join(calls[0].args, " ")
	want := "-y -i " + in + " -ar 16000 -ac 1 -loglevel error " + out
	if calls[0].name != "/usr/bin/ffmpeg" || got != want {
		t.Errorf("ffmpeg call = %s %s\nwant /usr/bin/ffmpeg %s", calls[0].name, got, want)
	}
}

func TestNormalizeFailureLeavesNothingAfterCleanup(t *testing.T) {
	dir := t.TempDir()
	ws, _ := NewWorkspace(dir)

	var calls []recordedCall
	n, _ := NewNormalizer("", "")
	n.WithRunner(fakeRunner(&calls, true))

	in, _ := ws.Save(strings.NewReader("x"), "call.ogg")
	_, err := n.Normalize(context.Background(), ws, in)
	if !errors.Is(err, ErrTranscode) {
		t.Fatalf("expected ErrTranscode, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error should carry ffmpeg output: %v", err)
	}

	if err := ws.Cleanup(); err != nil {
		t.Fatal(err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("temp dir not empty after cleanup: %v", entries)
	}
}

func TestNewNormalizerRejectsBadArgs(t *testing.T) {
	if _, err := NewNormalizer("ffmpeg", `-af "unterminated`); err == nil {
		t.Fatal("expected parse error for unterminated quote")
	}
}
