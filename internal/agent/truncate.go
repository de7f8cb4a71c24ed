package agent

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// TruncateConfig bounds how large a tool result may be before it re-enters
// the conversation.
type TruncateConfig struct {
	// MaxBytes is the ceiling on result content size. Default: 16384.
	MaxBytes int

	// ArrayKeep is the number of leading elements preserved when a JSON
	// array is reduced. Default: 10.
	ArrayKeep int
}

// DefaultTruncateConfig returns the default truncation policy.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{
		MaxBytes:  16384,
		ArrayKeep: 10,
	}
}

// Truncation is the outcome of applying the truncation policy to one result.
type Truncation struct {
	// Content is the bounded content.
	Content string

	// Truncated reports whether anything was cut.
	Truncated bool

	// Kind is "json" or "text", set only when Truncated.
	Kind string

	// OriginalBytes is the pre-truncation size.
	OriginalBytes int
}

// jsonEnvelope is the fallback shape when structure-aware reduction cannot
// get a JSON payload under the ceiling.
type jsonEnvelope struct {
	Truncated     bool   `json:"truncated"`
	OriginalBytes int    `json:"original_bytes"`
	Preview       string `json:"preview"`
}

// TruncateContent applies the result truncation policy.
//
// Content under the ceiling passes through unchanged. Valid JSON is reduced
// structurally: arrays are cut to their leading elements and an annotation is
// injected so the output stays valid JSON and the model can see data was
// dropped. If reduction cannot reach the ceiling, the payload is replaced
// with a valid JSON envelope carrying a bounded preview. Plain text is cut
// on a rune boundary with an explicit marker appended.
//
// The same input and config always produce the same output.
func TruncateContent(content string, cfg TruncateConfig) Truncation {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultTruncateConfig().MaxBytes
	}
	if cfg.ArrayKeep <= 0 {
		cfg.ArrayKeep = DefaultTruncateConfig().ArrayKeep
	}

	if len(content) <= cfg.MaxBytes {
		return Truncation{Content: content, OriginalBytes: len(content)}
	}

	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err == nil {
		return truncateJSON(content, decoded, cfg)
	}
	return truncateText(content, cfg)
}

func truncateJSON(content string, decoded any, cfg TruncateConfig) Truncation {
	original := len(content)

	// Progressively tighten the array cut until the payload fits.
	for keep := cfg.ArrayKeep; keep >= 1; keep /= 2 {
		reduced, omitted := reduceArrays(decoded, keep)
		if omitted == 0 {
			break
		}
		annotated := annotate(reduced, omitted, original)
		out, err := json.Marshal(annotated)
		if err == nil && len(out) <= cfg.MaxBytes {
			return Truncation{
				Content:       string(out),
				Truncated:     true,
				Kind:          "json",
				OriginalBytes: original,
			}
		}
	}

	// Reduction was not enough. Keep a valid JSON envelope with a bounded
	// preview of the original payload.
	overhead := len(`{"truncated":true,"original_bytes":,"preview":""}`) + 20
	preview := cutRunes(content, cfg.MaxBytes-overhead)
	out, _ := json.Marshal(jsonEnvelope{
		Truncated:     true,
		OriginalBytes: original,
		Preview:       preview,
	})
	// Marshaling escapes quotes and backslashes in the preview, so the
	// envelope can come out larger than the raw preview budget. Re-cut by
	// the excess until the marshaled envelope itself fits.
	for len(out) > cfg.MaxBytes && preview != "" {
		preview = cutRunes(preview, len(preview)-(len(out)-cfg.MaxBytes))
		out, _ = json.Marshal(jsonEnvelope{
			Truncated:     true,
			OriginalBytes: original,
			Preview:       preview,
		})
	}
	return Truncation{
		Content:       string(out),
		Truncated:     true,
		Kind:          "json",
		OriginalBytes: original,
	}
}

func truncateText(content string, cfg TruncateConfig) Truncation {
	original := len(content)
	cut := cutRunes(content, cfg.MaxBytes)
	marker := fmt.Sprintf("\n[truncated, %d bytes omitted]", original-len(cut))
	return Truncation{
		Content:       cut + marker,
		Truncated:     true,
		Kind:          "text",
		OriginalBytes: original,
	}
}

// cutRunes returns the longest prefix of s that is at most max bytes and
// does not split a UTF-8 sequence.
func cutRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// reduceArrays walks the decoded value cutting every array longer than keep
// down to its leading elements. Returns the reduced value and the total
// number of omitted elements.
func reduceArrays(v any, keep int) (any, int) {
	switch val := v.(type) {
	case []any:
		omitted := 0
		n := len(val)
		if n > keep {
			omitted += n - keep
			val = val[:keep]
		}
		out := make([]any, len(val))
		for i, item := range val {
			reduced, o := reduceArrays(item, keep)
			out[i] = reduced
			omitted += o
		}
		return out, omitted

	case map[string]any:
		out := make(map[string]any, len(val))
		omitted := 0
		for k, item := range val {
			reduced, o := reduceArrays(item, keep)
			out[k] = reduced
			omitted += o
		}
		return out, omitted

	default:
		return v, 0
	}
}

// annotate injects the truncation note. Objects grow a "_truncated" field;
// any other top-level value is wrapped in an envelope so the annotation has
// a place to live.
func annotate(v any, omitted, originalBytes int) any {
	note := map[string]any{
		"omitted_items":  omitted,
		"original_bytes": originalBytes,
	}
	if obj, ok := v.(map[string]any); ok {
		obj["_truncated"] = note
		return obj
	}
	return map[string]any{
		"items":      v,
		"_truncated": note,
	}
}
