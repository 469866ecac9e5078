package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func simFlags(t *testing.T) busFlags {
	t.Helper()
	dir := t.TempDir()
	return busFlags{
		simulate:    true,
		simCount:    2,
		configDir:   filepath.Join(dir, "cameras"),
		overrideDir: filepath.Join(dir, "override"),
	}
}

func TestRunList(t *testing.T) {
	flags := simFlags(t)
	var out bytes.Buffer
	if err := runList(&out, &flags); err != nil {
		t.Fatalf("runList() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header and 2 cameras:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[0], "ID") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[1], "avt") {
		t.Errorf("first camera line %q missing avt family", lines[1])
	}
	if !strings.Contains(lines[2], "none") {
		t.Errorf("second camera line %q missing none family", lines[2])
	}
}

func TestRunInfo(t *testing.T) {
	flags := simFlags(t)
	var out bytes.Buffer
	if err := runInfo(&out, &flags, "0x000a470100c0ff00"); err != nil {
		t.Fatalf("runInfo() error = %v", err)
	}
	for _, want := range []string{"[camera]", "[hardware]", "[capabilities]", "[settings]", "# Register dump"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunInfoBadID(t *testing.T) {
	flags := simFlags(t)
	tests := []string{"not-hex", "000a470100c0ffff"}
	for _, arg := range tests {
		t.Run(arg, func(t *testing.T) {
			if err := runInfo(&bytes.Buffer{}, &flags, arg); err == nil {
				t.Errorf("runInfo(%q) succeeded", arg)
			}
		})
	}
}

func TestRunCapture(t *testing.T) {
	dir := t.TempDir()
	flags := captureFlags{
		busFlags:  simFlags(t),
		count:     2,
		outputDir: dir,
		timeout:   5 * time.Second,
	}

	var out bytes.Buffer
	if err := runCapture(context.Background(), &out, &flags, "000a470100c0ff01"); err != nil {
		t.Fatalf("runCapture() error = %v", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "000a470100c0ff01-*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("wrote %d frame files, want 2: %v", len(files), files)
	}
	for _, f := range files {
		fi, err := os.Stat(f)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Size() != 640*480 {
			t.Errorf("%s is %d bytes, want %d", f, fi.Size(), 640*480)
		}
	}
	if got := strings.Count(out.String(), "\n"); got != 2 {
		t.Errorf("printed %d lines, want 2", got)
	}
}

func TestRunCaptureRejectsZeroCount(t *testing.T) {
	flags := captureFlags{busFlags: simFlags(t), outputDir: t.TempDir()}
	if err := runCapture(context.Background(), &bytes.Buffer{}, &flags, "000a470100c0ff01"); err == nil {
		t.Error("runCapture() with no frames succeeded")
	}
}

func TestParseGUID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{"000a470100c0ff00", 0x000a470100c0ff00, false},
		{"0x000A470100C0FF00", 0x000a470100c0ff00, false},
		{" 1f ", 0x1f, false},
		{"cam0", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseGUID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseGUID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseGUID(%q) = %x, want %x", tt.in, got, tt.want)
			}
		})
	}
}
