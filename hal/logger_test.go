// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package hal

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerDefaultsSilent(t *testing.T) {
	SetLogger(nil)
	l := Logger()
	if l == nil {
		t.Fatal("Logger returned nil")
	}
	if l.Enabled(nil, slog.LevelError) {
		t.Error("default logger should be disabled at every level")
	}
}

func TestSetLogger(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))

	Logger().Info("frame scheduled", "encoders", 3)
	if !strings.Contains(buf.String(), "frame scheduled") {
		t.Errorf("log output missing message: %q", buf.String())
	}

	// Restoring nil silences output again.
	SetLogger(nil)
	before := buf.Len()
	Logger().Info("dropped")
	if buf.Len() != before {
		t.Error("nil logger still wrote output")
	}
}
