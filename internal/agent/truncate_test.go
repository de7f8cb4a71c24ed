package agent

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateContentPassthrough(t *testing.T) {
	cfg := TruncateConfig{MaxBytes: 100, ArrayKeep: 10}
	content := "short result"

	got := TruncateContent(content, cfg)
	if got.Truncated {
		t.Error("content under ceiling must not be truncated")
	}
	if got.Content != content {
		t.Errorf("Content = %q, want unchanged", got.Content)
	}
	if got.OriginalBytes != len(content) {
		t.Errorf("OriginalBytes = %d, want %d", got.OriginalBytes, len(content))
	}
}

func TestTruncateContentJSONArrayReduction(t *testing.T) {
	items := make([]string, 500)
	for i := range items {
		items[i] = fmt.Sprintf("element-%04d", i)
	}
	payload, _ := json.Marshal(map[string]any{"items": items})
	cfg := TruncateConfig{MaxBytes: 1024, ArrayKeep: 10}

	got := TruncateContent(string(payload), cfg)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if got.Kind != "json" {
		t.Errorf("Kind = %q, want json", got.Kind)
	}
	if len(got.Content) > cfg.MaxBytes {
		t.Errorf("bounded content is %d bytes, ceiling %d", len(got.Content), cfg.MaxBytes)
	}

	// Output stays valid JSON with the leading elements and an annotation.
	var decoded struct {
		Items     []string `json:"items"`
		Truncated struct {
			OmittedItems  int `json:"omitted_items"`
			OriginalBytes int `json:"original_bytes"`
		} `json:"_truncated"`
	}
	if err := json.Unmarshal([]byte(got.Content), &decoded); err != nil {
		t.Fatalf("bounded content is not valid JSON: %v", err)
	}
	if len(decoded.Items) != 10 {
		t.Errorf("kept %d items, want 10", len(decoded.Items))
	}
	if decoded.Items[0] != "element-0000" {
		t.Errorf("Items[0] = %q, want leading element", decoded.Items[0])
	}
	if decoded.Truncated.OmittedItems != 490 {
		t.Errorf("omitted_items = %d, want 490", decoded.Truncated.OmittedItems)
	}
	if decoded.Truncated.OriginalBytes != len(payload) {
		t.Errorf("original_bytes = %d, want %d", decoded.Truncated.OriginalBytes, len(payload))
	}
}

func TestTruncateContentTopLevelArrayGetsWrapped(t *testing.T) {
	items := make([]int, 2000)
	for i := range items {
		items[i] = i
	}
	payload, _ := json.Marshal(items)

	got := TruncateContent(string(payload), TruncateConfig{MaxBytes: 512, ArrayKeep: 10})
	if !got.Truncated || got.Kind != "json" {
		t.Fatalf("expected json truncation, got %+v", got)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(got.Content), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := decoded["items"]; !ok {
		t.Error("wrapped output missing items field")
	}
	if _, ok := decoded["_truncated"]; !ok {
		t.Error("wrapped output missing _truncated annotation")
	}
}

func TestTruncateContentJSONEnvelopeFallback(t *testing.T) {
	// No arrays to reduce, so reduction cannot help; the envelope takes over.
	big, _ := json.Marshal(map[string]string{"blob": strings.Repeat("x", 4000)})
	cfg := TruncateConfig{MaxBytes: 512, ArrayKeep: 10}

	got := TruncateContent(string(big), cfg)
	if !got.Truncated || got.Kind != "json" {
		t.Fatalf("expected json truncation, got %+v", got)
	}
	if len(got.Content) > cfg.MaxBytes {
		t.Errorf("envelope is %d bytes, ceiling %d", len(got.Content), cfg.MaxBytes)
	}

	var envelope jsonEnvelope
	if err := json.Unmarshal([]byte(got.Content), &envelope); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if !envelope.Truncated {
		t.Error("envelope.truncated = false, want true")
	}
	if envelope.OriginalBytes != len(big) {
		t.Errorf("envelope.original_bytes = %d, want %d", envelope.OriginalBytes, len(big))
	}
	if envelope.Preview == "" {
		t.Error("envelope preview is empty")
	}
}

func TestTruncateContentEnvelopeHonorsCeilingWithEscapeHeavyPayload(t *testing.T) {
	// Every preview byte pair marshals to four bytes once the quotes and
	// backslashes are re-escaped, so a budget computed against the raw
	// preview alone would overshoot the ceiling badly.
	content := `{"data":"` + strings.Repeat(`\"`, 4000) + `"}`
	if !json.Valid([]byte(content)) {
		t.Fatal("test payload must be valid JSON")
	}
	cfg := TruncateConfig{MaxBytes: 1000, ArrayKeep: 10}

	got := TruncateContent(content, cfg)
	if !got.Truncated || got.Kind != "json" {
		t.Fatalf("expected json truncation, got %+v", got)
	}
	if len(got.Content) > cfg.MaxBytes {
		t.Errorf("envelope is %d bytes, ceiling %d", len(got.Content), cfg.MaxBytes)
	}

	var envelope jsonEnvelope
	if err := json.Unmarshal([]byte(got.Content), &envelope); err != nil {
		t.Fatalf("envelope is not valid JSON: %v", err)
	}
	if !envelope.Truncated {
		t.Error("envelope.truncated = false, want true")
	}
	if envelope.OriginalBytes != len(content) {
		t.Errorf("envelope.original_bytes = %d, want %d", envelope.OriginalBytes, len(content))
	}
	if envelope.Preview == "" {
		t.Error("envelope preview is empty")
	}
}

func TestTruncateContentText(t *testing.T) {
	content := strings.Repeat("line of plain text output\n", 100)
	cfg := TruncateConfig{MaxBytes: 256, ArrayKeep: 10}

	got := TruncateContent(content, cfg)
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if got.Kind != "text" {
		t.Errorf("Kind = %q, want text", got.Kind)
	}
	if !strings.Contains(got.Content, "[truncated, ") {
		t.Errorf("missing truncation marker in %q", got.Content[len(got.Content)-60:])
	}
	if !strings.HasPrefix(got.Content, "line of plain text output") {
		t.Error("truncated text does not preserve the prefix")
	}
}

func TestTruncateContentDoesNotSplitRunes(t *testing.T) {
	content := strings.Repeat("日本語テキスト", 200)
	got := TruncateContent(content, TruncateConfig{MaxBytes: 100, ArrayKeep: 10})
	if !got.Truncated {
		t.Fatal("expected truncation")
	}
	if !utf8.ValidString(got.Content) {
		t.Error("bounded content contains a split UTF-8 sequence")
	}
}

func TestTruncateContentDeterministic(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"b": []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
		"a": strings.Repeat("v", 600),
		"c": map[string]any{"nested": []string{"x", "y", "z"}},
	})
	cfg := TruncateConfig{MaxBytes: 256, ArrayKeep: 4}

	first := TruncateContent(string(payload), cfg)
	for i := 0; i < 5; i++ {
		again := TruncateContent(string(payload), cfg)
		if again.Content != first.Content {
			t.Fatalf("run %d produced different output", i)
		}
	}
}

func TestTruncateContentZeroConfigUsesDefaults(t *testing.T) {
	content := strings.Repeat("a", 20000)
	got := TruncateContent(content, TruncateConfig{})
	if !got.Truncated {
		t.Fatal("expected truncation at default ceiling")
	}
	if len(got.Content) > DefaultTruncateConfig().MaxBytes+64 {
		t.Errorf("content %d bytes exceeds default ceiling by too much", len(got.Content))
	}
}

func TestCutRunes(t *testing.T) {
	if got := cutRunes("hello", 10); got != "hello" {
		t.Errorf("cutRunes short = %q", got)
	}
	if got := cutRunes("hello", 3); got != "hel" {
		t.Errorf("cutRunes ascii = %q", got)
	}
	if got := cutRunes("héllo", 2); got != "h" {
		t.Errorf("cutRunes multibyte = %q, want h", got)
	}
	if got := cutRunes("hello", 0); got != "" {
		t.Errorf("cutRunes zero = %q", got)
	}
}
