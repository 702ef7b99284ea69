package adapterregistry

import (
	"testing"

	"github.com/glyphoxa-sdk/runtime/pkg/sdktypes"
)

type fakeAdapter struct {
	framework  string
	formats    []sdktypes.Format
	modalities []sdktypes.Category
	handles    func(sdktypes.ModelInfo) bool
}

func (f *fakeAdapter) FrameworkID() string                        { return f.framework }
func (f *fakeAdapter) SupportedFormats() []sdktypes.Format         { return f.formats }
func (f *fakeAdapter) SupportedModalities() []sdktypes.Category    { return f.modalities }
func (f *fakeAdapter) CanHandle(model sdktypes.ModelInfo) bool {
	if f.handles == nil {
		return false
	}
	return f.handles(model)
}

func TestFindBestAdapterPrefersPreferredFramework(t *testing.T) {
	r := New()
	llamaCPP := &fakeAdapter{framework: "llama.cpp", formats: []sdktypes.Format{sdktypes.FormatGGUF}, modalities: []sdktypes.Category{sdktypes.CategoryLanguage}}
	onnx := &fakeAdapter{framework: "onnx", formats: []sdktypes.Format{sdktypes.FormatGGUF}, modalities: []sdktypes.Category{sdktypes.CategoryLanguage}}
	r.Register(onnx, 100)
	r.Register(llamaCPP, 1)

	model := sdktypes.ModelInfo{Format: sdktypes.FormatGGUF, Category: sdktypes.CategoryLanguage, PreferredFramework: "llama.cpp"}
	got := r.FindBestAdapter(model)
	if got == nil || got.FrameworkID() != "llama.cpp" {
		t.Fatalf("expected llama.cpp despite lower priority, got %v", got)
	}
}

func TestFindBestAdapterFallsBackToCanHandle(t *testing.T) {
	r := New()
	specialCase := &fakeAdapter{
		framework: "whisperkit",
		formats:   []sdktypes.Format{sdktypes.FormatMLModel},
		modalities: []sdktypes.Category{sdktypes.CategorySpeechRecognition},
		handles: func(m sdktypes.ModelInfo) bool {
			return m.ID == "special-model"
		},
	}
	r.Register(specialCase, 1)

	model := sdktypes.ModelInfo{ID: "special-model", Format: sdktypes.FormatONNX, Category: sdktypes.CategorySpeechSynthesis}
	got := r.FindBestAdapter(model)
	if got == nil || got.FrameworkID() != "whisperkit" {
		t.Fatalf("expected whisperkit via CanHandle, got %v", got)
	}
}

func TestFindBestAdapterFallsBackToFormatModality(t *testing.T) {
	r := New()
	onnx := &fakeAdapter{framework: "onnx", formats: []sdktypes.Format{sdktypes.FormatONNX}, modalities: []sdktypes.Category{sdktypes.CategorySpeechRecognition}}
	r.Register(onnx, 1)

	model := sdktypes.ModelInfo{Format: sdktypes.FormatONNX, Category: sdktypes.CategorySpeechRecognition}
	got := r.FindBestAdapter(model)
	if got == nil || got.FrameworkID() != "onnx" {
		t.Fatalf("expected onnx via format/modality fallback, got %v", got)
	}
}

func TestFindBestAdapterReturnsNilWhenNoneMatch(t *testing.T) {
	r := New()
	onnx := &fakeAdapter{framework: "onnx", formats: []sdktypes.Format{sdktypes.FormatONNX}, modalities: []sdktypes.Category{sdktypes.CategorySpeechRecognition}}
	r.Register(onnx, 1)

	model := sdktypes.ModelInfo{Format: sdktypes.FormatGGUF, Category: sdktypes.CategoryLanguage}
	if got := r.FindBestAdapter(model); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestAdaptersReturnsPriorityOrderedSnapshot(t *testing.T) {
	r := New()
	low := &fakeAdapter{framework: "fw", formats: []sdktypes.Format{sdktypes.FormatGGUF}, modalities: []sdktypes.Category{sdktypes.CategoryLanguage}}
	high := &fakeAdapter{framework: "fw", formats: []sdktypes.Format{sdktypes.FormatGGUF}, modalities: []sdktypes.Category{sdktypes.CategoryLanguage}}
	r.Register(low, 1)
	r.Register(high, 10)

	got := r.Adapters("fw")
	if len(got) != 2 || got[0] != Adapter(high) || got[1] != Adapter(low) {
		t.Fatalf("unexpected order: %v", got)
	}
}
