package protocol

import (
	"encoding/json"
	"math"
	"strings"
)

// Kind is the discriminant carried in the engine's "type" field.
type Kind string

const (
	KindProgress Kind = "progress"
	KindStatus   Kind = "status"
	KindSuccess  Kind = "success"
	KindError    Kind = "error"
)

// Progress reports completion percentage and estimated time left.
type Progress struct {
	Percent          int `json:"percent"`
	RemainingSeconds int `json:"remainingSeconds"`
}

// Result is the payload of a success message.
type Result struct {
	OutputFile string `json:"outputFile"`
	Original   string `json:"original,omitempty"`
	Translated string `json:"translated,omitempty"`
	TargetLang string `json:"targetLang,omitempty"`
}

// Message is one decoded engine protocol message. Exactly one of the payload
// fields is meaningful, selected by Kind.
type Message struct {
	Kind     Kind
	Progress Progress
	Text     string
	Result   Result
}

// Terminal reports whether the message ends the run.
func (m Message) Terminal() bool {
	return m.Kind == KindSuccess || m.Kind == KindError
}

// Line is one complete stdout line. Opaque lines carry the raw text and a
// zero Message.
type Line struct {
	Raw     string
	Opaque  bool
	Message Message
}

// wireMessage mirrors the flat JSON object written by the engine.
type wireMessage struct {
	Type             *string  `json:"type"`
	Value            *float64 `json:"value"`
	RemainingSeconds *float64 `json:"remaining_seconds"`
	Message          string   `json:"message"`
	OutputFile       string   `json:"output_file"`
	Original         string   `json:"original"`
	Translated       string   `json:"translated"`
	TargetLang       string   `json:"target_lang"`
}

// ParseLine decodes a single line. It never fails: anything that is not a
// known structured message comes back as an opaque line.
func ParseLine(raw string) Line {
	text := strings.TrimSpace(raw)
	opaque := Line{Raw: text, Opaque: true}
	if !strings.HasPrefix(text, "{") {
		return opaque
	}

	var wire wireMessage
	if err := json.Unmarshal([]byte(text), &wire); err != nil || wire.Type == nil {
		return opaque
	}

	msg := Message{Kind: Kind(*wire.Type)}
	switch msg.Kind {
	case KindProgress:
		if wire.Value == nil {
			return opaque
		}
		msg.Progress = Progress{
			Percent:          clampPercent(*wire.Value),
			RemainingSeconds: clampSeconds(wire.RemainingSeconds),
		}
	case KindStatus, KindError:
		msg.Text = wire.Message
	case KindSuccess:
		msg.Result = Result{
			OutputFile: wire.OutputFile,
			Original:   wire.Original,
			Translated: wire.Translated,
			TargetLang: wire.TargetLang,
		}
	default:
		return opaque
	}

	return Line{Raw: text, Message: msg}
}

// clampPercent rounds float progress into the 0-100 range.
func clampPercent(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return int(math.Round(v))
}

// clampSeconds rounds remaining time and floors it at zero.
func clampSeconds(v *float64) int {
	if v == nil || math.IsNaN(*v) || *v <= 0 {
		return 0
	}
	if *v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(*v))
}
