package debug

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseCategories(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"single", "executor", map[string]bool{"executor": true}},
		{"multiple", "executor,streaming", map[string]bool{"executor": true, "streaming": true}},
		{"all", "all", map[string]bool{"all": true}},
		{"with spaces", " executor , streaming ", map[string]bool{"executor": true, "streaming": true}},
		{"uppercase normalized", "EXECUTOR,Streaming", map[string]bool{"executor": true, "streaming": true}},
		{"empty segments", "executor,,streaming", map[string]bool{"executor": true, "streaming": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("got[%q] = %v, want %v", k, got[k], v)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("len(got) = %d, want %d", len(got), len(tt.want))
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("executor,structured")

	if !Enabled(Executor) {
		t.Error("executor should be enabled")
	}
	if !Enabled(Structured) {
		t.Error("structured should be enabled")
	}
	if Enabled(Streaming) {
		t.Error("streaming should not be enabled")
	}

	categories = parseCategories("all")
	if !Enabled(Providers) || !Enabled("anything") {
		t.Error("every category should be enabled via 'all'")
	}

	categories = parseCategories("")
	if Enabled(Providers) {
		t.Error("nothing should be enabled when no categories set")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"TRACE", LevelTrace},
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{" debug ", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("Truncate short = %q, want %q", got, "short")
	}
	if got := Truncate("this is a long string", 10); got != "this is a ..." {
		t.Errorf("Truncate long = %q, want %q", got, "this is a ...")
	}
}

func TestRawRequiresTrace(t *testing.T) {
	origCats, origOut, origLogger := categories, rawOut, slog.Default()
	defer func() {
		categories, rawOut = origCats, origOut
		slog.SetDefault(origLogger)
	}()

	var buf bytes.Buffer
	rawOut = &buf
	categories = parseCategories(Streaming)

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	Raw(Streaming, "data: {}")
	if buf.Len() != 0 {
		t.Fatalf("Raw wrote at DEBUG: %q", buf.String())
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: LevelTrace})))
	Raw(Streaming, "data: {}")
	if !strings.Contains(buf.String(), "[streaming] data: {}") {
		t.Errorf("Raw output = %q", buf.String())
	}
}

func TestInitEnvOverridesConfig(t *testing.T) {
	origCats, origLogger := categories, slog.Default()
	defer func() {
		categories = origCats
		slog.SetDefault(origLogger)
	}()

	t.Setenv("MODELBRIDGE_DEBUG", "executor")
	t.Setenv("MODELBRIDGE_LOG_LEVEL", "")
	Init("structured", "debug", "json")

	if !Enabled(Executor) || Enabled(Structured) {
		t.Errorf("categories = %v, want env value to win", Categories())
	}
}

func TestLog_DisabledCategory(t *testing.T) {
	orig := categories
	defer func() { categories = orig }()

	categories = parseCategories("")

	// Must not panic or produce output.
	Log(Providers, "test message", "key", "value")
	Trace(Providers, "trace message", "key", "value")
}
