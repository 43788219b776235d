package registry

import "testing"

func TestSetModels_EmptyInstallsDefaults(t *testing.T) {
	reg := &ModelRegistry{}
	reg.SetModels(nil)
	if !reg.IsSupported("lingo-translate") {
		t.Fatal("expected built-in default model")
	}
	if !reg.IsSupported("lingo-translate-lite") {
		t.Fatal("expected built-in lite model")
	}
}

func TestSetModels_ReplacesAndDeduplicates(t *testing.T) {
	reg := &ModelRegistry{}
	reg.SetModels([]string{" custom-a ", "custom-b", "custom-a", ""})

	if !reg.IsSupported("custom-a") || !reg.IsSupported("custom-b") {
		t.Fatal("expected custom models to be registered")
	}
	if reg.IsSupported("lingo-translate") {
		t.Fatal("defaults must be replaced by a custom set")
	}
	if got := len(reg.GetAvailableModels()); got != 2 {
		t.Fatalf("expected 2 models after dedup, got %d", got)
	}
}

func TestIsSupported_EmptyID(t *testing.T) {
	reg := &ModelRegistry{}
	reg.SetModels(nil)
	if reg.IsSupported("") {
		t.Fatal("empty id must not be supported")
	}
	if reg.IsSupported("  ") {
		t.Fatal("blank id must not be supported")
	}
}

func TestGetAvailableModels_Shape(t *testing.T) {
	reg := &ModelRegistry{}
	reg.SetModels([]string{"custom-a"})
	models := reg.GetAvailableModels()
	if len(models) != 1 {
		t.Fatalf("expected 1 model, got %d", len(models))
	}
	m := models[0]
	if m["id"] != "custom-a" {
		t.Fatalf("id = %v", m["id"])
	}
	if m["object"] != "model" {
		t.Fatalf("object = %v", m["object"])
	}
	if m["owned_by"] != "lingorelay" {
		t.Fatalf("owned_by = %v", m["owned_by"])
	}
	if _, ok := m["created"].(int64); !ok {
		t.Fatalf("created has wrong type: %T", m["created"])
	}
}
