package debug

import (
	"bytes"
	"log/slog"
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
		{"single", "providers", map[string]bool{"providers": true}},
		{"multiple", "providers,engine", map[string]bool{"providers": true, "engine": true}},
		{"with spaces", " providers , streaming ", map[string]bool{"providers": true, "streaming": true}},
		{"uppercase normalized", "PROVIDERS,Engine", map[string]bool{"providers": true, "engine": true}},
		{"empty segments", "providers,,engine", map[string]bool{"providers": true, "engine": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCategories(tt.input)
			if len(got) != len(tt.want) {
				t.Fatalf("len(got) = %d, want %d", len(got), len(tt.want))
			}
			for k := range tt.want {
				if !got[k] {
					t.Errorf("missing %q", k)
				}
			}
		})
	}
}

func TestEnabled(t *testing.T) {
	orig := categories.Load()
	defer categories.Store(orig)

	setCategories(parseCategories("providers,engine"))
	if !Enabled("providers") || !Enabled("engine") {
		t.Error("configured categories should be enabled")
	}
	if Enabled("storage") {
		t.Error("storage should not be enabled")
	}

	setCategories(parseCategories("all"))
	if !Enabled("anything") {
		t.Error("anything should be enabled via 'all'")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"TRACE", LevelTrace},
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInitWriterJSONAndCategoryGate(t *testing.T) {
	origCats := categories.Load()
	origLogger := slog.Default()
	defer func() {
		categories.Store(origCats)
		slog.SetDefault(origLogger)
	}()
	t.Setenv("BYOK_DEBUG", "")
	t.Setenv("BYOK_LOG_LEVEL", "")
	t.Setenv("BYOK_LOG_FORMAT", "")

	var buf bytes.Buffer
	InitWriter(&buf, Options{Categories: "engine", Level: "TRACE", Format: "json"})

	Log("engine", "visible", "k", "v")
	Log("storage", "hidden")
	Trace("engine", "traced")

	out := buf.String()
	if !strings.Contains(out, `"msg":"visible"`) {
		t.Errorf("missing engine log: %s", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("disabled category logged: %s", out)
	}
	if !strings.Contains(out, `"level":"TRACE"`) {
		t.Errorf("trace level not renamed: %s", out)
	}
}

func TestEnvOverridesOptions(t *testing.T) {
	origCats := categories.Load()
	origLogger := slog.Default()
	defer func() {
		categories.Store(origCats)
		slog.SetDefault(origLogger)
	}()
	t.Setenv("BYOK_DEBUG", "storage")
	t.Setenv("BYOK_LOG_LEVEL", "")
	t.Setenv("BYOK_LOG_FORMAT", "")

	var buf bytes.Buffer
	InitWriter(&buf, Options{Categories: "engine"})

	if Enabled("engine") || !Enabled("storage") {
		t.Errorf("categories = %v, want [storage]", Categories())
	}
}

func TestMaskKey(t *testing.T) {
	if got := MaskKey("sk-abcdef1234"); got != "****1234" {
		t.Errorf("MaskKey = %q", got)
	}
	if got := MaskKey("abc"); got != "****" {
		t.Errorf("MaskKey(short) = %q", got)
	}
}
