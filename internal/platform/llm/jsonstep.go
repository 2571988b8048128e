package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Payload is a structured extraction target. Validate is called after JSON
// decoding and decides whether a repair attempt is needed.
type Payload interface {
	Validate() error
}

const (
	// fallbackClampLen bounds string fields of the fallback object so
	// oversized text can never propagate past this boundary.
	fallbackClampLen = 600
	previewLen       = 160
	repairPrevLen    = 800
)

// StepMeta carries per-step diagnostics for audit and observability.
type StepMeta struct {
	LLMOK          bool
	LLMError       string
	LatencyMS      int64
	ParseOK        bool
	ParseError     string
	RepairUsed     bool
	FallbackUsed   bool
	RawPreview     string
	CleanedPreview string
}

// MarshalZerologObject flattens the diagnostics into a structured log event.
func (m StepMeta) MarshalZerologObject(e *zerolog.Event) {
	e.Bool("llm_ok", m.LLMOK).
		Str("llm_error", m.LLMError).
		Int64("latency_ms", m.LatencyMS).
		Bool("parse_ok", m.ParseOK).
		Str("parse_error", m.ParseError).
		Bool("repair_used", m.RepairUsed).
		Bool("fallback_used", m.FallbackUsed).
		Str("raw_preview", m.RawPreview).
		Str("cleaned_preview", m.CleanedPreview)
}

// RunJSONStep asks the generation service for a JSON object matching T:
// one primary call, at most one repair call when the service responded but
// the content failed to validate, then the caller-supplied fallback with
// string fields clamped. It never fails: the returned object is always
// schema valid by construction.
func RunJSONStep[T any, P interface {
	Payload
	*T
}](ctx context.Context, gen Generator, system, prompt string, fallback P) (P, StepMeta) {
	t0 := time.Now()

	res := gen.GenerateText(ctx, Request{
		System:      system,
		Prompt:      prompt,
		Temperature: 0.2,
		MaxTokens:   900,
		JSONOnly:    true,
	})

	cleaned := ExtractJSON(res.Text)

	var out P = new(T)
	parseOK := false
	parseError := ""

	if res.OK && cleaned != "" {
		parseOK, parseError = decodeAndValidate(cleaned, out)
	} else {
		parseError = res.Err
		if parseError == "" {
			parseError = "no_json_found"
		}
	}

	// One content-repair retry, only when the model actually responded.
	repairUsed := false
	if !parseOK && res.OK {
		repairUsed = true
		res2 := gen.GenerateText(ctx, Request{
			System:      system,
			Prompt:      repairPrompt(prompt, jsonKeys(out), parseError, res.Text),
			Temperature: 0.2,
			MaxTokens:   900,
			JSONOnly:    true,
		})
		cleaned2 := ExtractJSON(res2.Text)
		if res2.OK && cleaned2 != "" {
			out2 := P(new(T))
			ok2, err2 := decodeAndValidate(cleaned2, out2)
			if ok2 {
				out = out2
				parseOK = true
				parseError = ""
				cleaned = cleaned2
				res = res2
			} else {
				parseError = err2
			}
		}
	}

	fallbackUsed := !parseOK
	if fallbackUsed {
		clampStrings(fallback, fallbackClampLen)
		out = fallback
	}

	meta := StepMeta{
		LLMOK:          res.OK,
		LLMError:       res.Err,
		LatencyMS:      time.Since(t0).Milliseconds(),
		ParseOK:        parseOK,
		ParseError:     parseError,
		RepairUsed:     repairUsed,
		FallbackUsed:   fallbackUsed,
		RawPreview:     truncate(res.Text, previewLen),
		CleanedPreview: truncate(cleaned, previewLen),
	}
	return out, meta
}

func decodeAndValidate(data string, out Payload) (bool, string) {
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return false, "json_parse_error: " + err.Error()
	}
	if err := out.Validate(); err != nil {
		return false, "schema_validation_error: " + err.Error()
	}
	return true, ""
}

func repairPrompt(original string, keys []string, validationErr, previous string) string {
	return fmt.Sprintf(
		"%s\n\nReturn ONLY valid JSON. No markdown. No extra keys.\nRequired keys: %v\nValidation error: %s\nPrevious output: %s",
		original, keys, validationErr, truncate(previous, repairPrevLen),
	)
}

// ExtractJSON pulls the first syntactically valid JSON object or array out
// of model text, tolerating markdown fences and leading chatter.
func ExtractJSON(raw string) string {
	raw = strings.ReplaceAll(raw, "```json", "")
	raw = strings.ReplaceAll(raw, "```", "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	for i := 0; i < len(raw); i++ {
		if raw[i] != '{' && raw[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(raw[i:]))
		var js json.RawMessage
		if err := dec.Decode(&js); err == nil {
			end := i + int(dec.InputOffset())
			return strings.TrimSpace(raw[i:end])
		}
	}
	return ""
}

// jsonKeys lists the top-level json tags of a payload struct, for the
// repair prompt's "required keys" line.
func jsonKeys(v any) []string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []string
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := strings.Index(tag, ","); idx >= 0 {
			tag = tag[:idx]
		}
		keys = append(keys, tag)
	}
	return keys
}

// clampStrings truncates the top-level string fields of a struct pointer.
func clampStrings(v any, max int) {
	val := reflect.ValueOf(v)
	for val.Kind() == reflect.Pointer {
		val = val.Elem()
	}
	if val.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < val.NumField(); i++ {
		f := val.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			s := strings.TrimSpace(f.String())
			if len(s) > max {
				s = s[:max]
			}
			f.SetString(s)
		}
	}
}
