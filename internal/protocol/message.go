package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// PromptSentinel is the literal frame the host sends when it waits for a selection.
const PromptSentinel = "Select card"

var ErrMalformed = errors.New("protocol: malformed message")

// Kind tags a decoded inbound frame.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindPrompt
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindPrompt:
		return "prompt"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unrecognized"
	}
}

// Snapshot replaces everything the viewer currently sees.
type Snapshot struct {
	Hand  []string `json:"hand"`
	Table []string `json:"table"`
}

type Message struct {
	Kind     Kind
	Snapshot Snapshot // only set for KindSnapshot
}

// Decode classifies one server frame. The sentinel is matched before any
// parsing. JSON objects become snapshots (missing fields read as empty rows);
// any other valid JSON value is KindUnrecognized. Frames that are not JSON,
// or objects whose hand/table are not string arrays, return ErrMalformed.
func Decode(raw string) (Message, error) {
	if raw == PromptSentinel {
		return Message{Kind: KindPrompt}, nil
	}

	data := []byte(raw)
	if !json.Valid(data) {
		return Message{}, fmt.Errorf("%w: not json", ErrMalformed)
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Message{Kind: KindUnrecognized}, nil
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return Message{Kind: KindSnapshot, Snapshot: s}, nil
}

// EncodeSnapshot renders the JSON frame for s. Nil rows are written as
// empty arrays so viewers never see null.
func EncodeSnapshot(s Snapshot) (string, error) {
	if s.Hand == nil {
		s.Hand = []string{}
	}
	if s.Table == nil {
		s.Table = []string{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// EncodeSelection is the outbound frame for a click on hand slot index.
func EncodeSelection(index int) string {
	return strconv.Itoa(index)
}

// ParseSelection reads an inbound selection frame. Only plain non-negative
// decimal integers are accepted.
func ParseSelection(frame string) (int, error) {
	frame = strings.TrimSpace(frame)
	if frame == "" || frame[0] == '+' || frame[0] == '-' {
		return 0, fmt.Errorf("%w: selection %q", ErrMalformed, frame)
	}
	n, err := strconv.Atoi(frame)
	if err != nil {
		return 0, fmt.Errorf("%w: selection %q", ErrMalformed, frame)
	}
	return n, nil
}

// CardID names a card face the way the asset directory does, e.g. "queen_hearts".
func CardID(rank, suit string) string {
	return strings.ToLower(rank) + "_" + strings.ToLower(suit)
}
