package synth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/leafline-ai/voiced/internal/config"
)

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Hello, your order is ready for pickup", "en"},
		{"Bonjour, merci pour votre commande", "fr"},
		{"Hola, gracias por su pedido, el paquete está listo", "es"},
		{"", "en"},
		{"xyzzy plugh", "en"},
	}
	for _, tc := range cases {
		if got := DetectLanguage(tc.text); got != tc.want {
			t.Fatalf("DetectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func catalogWithModels(t *testing.T, present ...string) *VoiceCatalog {
	t.Helper()
	dir := t.TempDir()
	for _, name := range present {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("model"), 0o644); err != nil {
			t.Fatalf("write model stub: %v", err)
		}
	}
	cfg := config.Default().Synth
	cfg.ModelDir = dir
	return NewVoiceCatalog(cfg)
}

func TestResolveExplicitVoice(t *testing.T) {
	c := catalogWithModels(t, "fr_FR-siwis-medium.onnx")
	v, note := c.Resolve("fr_FR-siwis-medium", "en")
	if v.ID != "fr_FR-siwis-medium" || note != "" {
		t.Fatalf("expected explicit voice, got %q (%q)", v.ID, note)
	}
}

func TestResolveByLanguage(t *testing.T) {
	c := catalogWithModels(t, "es_ES-davefx-medium.onnx")
	v, _ := c.Resolve("", "es")
	if v.ID != "es_ES-davefx-medium" {
		t.Fatalf("expected spanish voice, got %q", v.ID)
	}
}

func TestResolveMissingModelFallsBack(t *testing.T) {
	// only the default voice model exists on disk
	c := catalogWithModels(t, "en_US-amy-medium.onnx")
	v, _ := c.Resolve("fr_FR-siwis-medium", "fr")
	if v.ID != "en_US-amy-medium" {
		t.Fatalf("expected fallback to default voice, got %q", v.ID)
	}
}

func TestVoicesReportAvailability(t *testing.T) {
	c := catalogWithModels(t, "en_US-amy-medium.onnx")
	available := 0
	for _, v := range c.Voices() {
		if v.Available {
			available++
		}
	}
	if available != 1 {
		t.Fatalf("expected exactly one available voice, got %d", available)
	}
}
