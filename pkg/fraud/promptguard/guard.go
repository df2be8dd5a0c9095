// Package promptguard redacts and bounds investigation state before any
// fragment of it is serialized into an LLM prompt. Every pattern is compiled
// once at construction and applied fail-closed: anything the guard cannot
// safely process is dropped rather than passed through.
package promptguard

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// ErrInjectionDetected is returned by Redact when a value about to be
// embedded in a prompt matches a known prompt-injection signature. Callers
// must treat this the same as an LLM failure and take the deterministic
// fallback path rather than proceeding with partially-redacted content.
var ErrInjectionDetected = errors.New("promptguard: prompt injection pattern detected")

// sensitiveKeyDenylist never reaches an LLM prompt, regardless of which JSON
// bucket it appears under.
var sensitiveKeyDenylist = map[string]bool{
	"card_history":      true,
	"card_number":       true,
	"pan":               true,
	"cvv":               true,
	"password":          true,
	"client_secret":     true,
	"api_key":           true,
	"authorization":     true,
	"ssn":               true,
	"account_number":    true,
}

// injectionPattern holds one compiled prompt-injection signature.
type injectionPattern struct {
	Name  string
	Regex *regexp.Regexp
}

// builtinInjectionPatterns catches the common "ignore prior instructions"
// style of injection carried in merchant names, notes, or decline reasons.
var builtinInjectionPatterns = compilePatterns(map[string]string{
	"ignore_instructions": `(?i)ignore (all|previous|prior) instructions`,
	"system_override":     `(?i)you are now (in )?(developer|system|admin) mode`,
	"role_reassignment":   `(?i)disregard (the|your) (system|above) prompt`,
	"exfiltration_probe":  `(?i)print (the|your) (system prompt|instructions|api key)`,
})

func compilePatterns(specs map[string]string) []injectionPattern {
	patterns := make([]injectionPattern, 0, len(specs))
	for name, expr := range specs {
		re, err := regexp.Compile(expr)
		if err != nil {
			slog.Error("failed to compile prompt-injection pattern, skipping", "pattern", name, "error", err)
			continue
		}
		patterns = append(patterns, injectionPattern{Name: name, Regex: re})
	}
	return patterns
}

// Limits bounds the size of any value the Guard will hand to an LLM prompt.
type Limits struct {
	MaxStringLength int
	MaxJSONDepth    int
}

// DefaultLimits caps prompts well below any provider's context window, and
// flattens deeply nested evidence rather than silently truncating it
// mid-structure.
var DefaultLimits = Limits{
	MaxStringLength: 4000,
	MaxJSONDepth:    6,
}

// Guard redacts and bounds a value before it can be serialized into a
// planner or reasoning prompt. Stateless aside from compiled patterns;
// safe for concurrent use.
type Guard struct {
	limits   Limits
	patterns []injectionPattern
}

// New builds a Guard with the built-in injection patterns compiled.
func New(limits Limits) *Guard {
	return &Guard{limits: limits, patterns: builtinInjectionPatterns}
}

// CardIDMask keeps a card identifier's first 4 and last 4 characters and
// replaces everything between with "***", e.g. "4111111111111111" ->
// "4111***1111". Identifiers too short to have a non-overlapping middle are
// masked in full.
func CardIDMask(cardID string) string {
	if len(cardID) < 8 {
		return strings.Repeat("*", len(cardID))
	}
	return cardID[:4] + "***" + cardID[len(cardID)-4:]
}

// Redact walks v (expected to be a JSON-marshalable value, typically a
// map[string]any produced from a subset of InvestigationState) and returns a
// redacted, depth- and length-bounded copy safe to embed in a prompt. Keys on
// the sensitive denylist are dropped entirely, not masked, so there is
// nothing for an injection pattern to recover from. If any string value
// matches a known injection signature, Redact rejects the whole value with
// ErrInjectionDetected instead of returning a partially-redacted copy — the
// caller is expected to fall back to its deterministic path.
func (g *Guard) Redact(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("promptguard: value not json-marshalable: %w", err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("promptguard: round-trip decode failed: %w", err)
	}
	var matched string
	redacted := g.redactValue(generic, 0, &matched)
	if matched != "" {
		return nil, fmt.Errorf("%w: %s", ErrInjectionDetected, matched)
	}
	return redacted, nil
}

func (g *Guard) redactValue(v any, depth int, matched *string) any {
	if depth >= g.limits.MaxJSONDepth {
		return "[TRUNCATED: max depth exceeded]"
	}

	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if sensitiveKeyDenylist[k] {
				continue
			}
			if k == "card_id" {
				if s, ok := val.(string); ok {
					out[k] = CardIDMask(s)
					continue
				}
			}
			out[k] = g.redactValue(val, depth+1, matched)
		}
		if _, ok := t["card_history"]; ok {
			if hist, ok := t["card_history"].([]any); ok {
				out["card_history_count"] = len(hist)
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = g.redactValue(val, depth+1, matched)
		}
		return out
	case string:
		return g.redactString(t, matched)
	default:
		return t
	}
}

func (g *Guard) redactString(s string, matched *string) string {
	if len(s) > g.limits.MaxStringLength {
		s = s[:g.limits.MaxStringLength] + "...[truncated]"
	}
	for _, p := range g.patterns {
		if p.Regex.MatchString(s) {
			if *matched == "" {
				*matched = p.Name
			}
			return s
		}
	}
	return s
}

// ScanForInjection reports the name of the first injection pattern s matches,
// or "" if none match. Used to flag (not silently drop) suspicious free-text
// fields the caller still wants to keep, such as analyst notes shown in a UI.
func (g *Guard) ScanForInjection(s string) string {
	for _, p := range g.patterns {
		if p.Regex.MatchString(s) {
			return p.Name
		}
	}
	return ""
}
