package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestForTagsModule(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(&buf, "debug"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() {
		_ = Init(nil, "info")
	})

	For("ingest").WithField("event", "file_done").Debug("done")
	out := buf.String()
	if !strings.Contains(out, "module=ingest") {
		t.Fatalf("output missing module field: %q", out)
	}
	if !strings.Contains(out, "event=file_done") {
		t.Fatalf("output missing event field: %q", out)
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if err := Init(nil, "chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestSetVerbose(t *testing.T) {
	_ = Init(nil, "warn")
	t.Cleanup(func() {
		_ = Init(nil, "info")
	})
	SetVerbose(true)
	if got := For("test").Logger.GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("level = %v, want debug", got)
	}
}
