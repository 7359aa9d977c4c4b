package model

import (
	"encoding/json"
	"fmt"
)

// envelope is the stored form of every tagged union below:
//
//	{"kind": "<variant>", "data": {...}}
type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func encodeEnvelope(kind string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	return json.Marshal(envelope{Kind: kind, Data: data})
}

// Content is curriculum material cached for offline use.
// Implemented by LessonContent, QuizContent and OpaqueContent.
type Content interface {
	ContentKind() string
}

const (
	ContentLesson = "lesson"
	ContentQuiz   = "quiz"
)

// LessonSection is one heading/body block of a lesson.
type LessonSection struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

// LessonContent is instructional text.
type LessonContent struct {
	Title      string          `json:"title"`
	Objectives []string        `json:"objectives,omitempty"`
	Sections   []LessonSection `json:"sections"`
}

func (LessonContent) ContentKind() string { return ContentLesson }

// QuizQuestion is a multiple-choice question; Answer indexes Options.
type QuizQuestion struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Answer  int      `json:"answer"`
}

// QuizContent is a question bank.
type QuizContent struct {
	Questions []QuizQuestion `json:"questions"`
}

func (QuizContent) ContentKind() string { return ContentQuiz }

// OpaqueContent preserves a variant this client does not understand yet.
// It round-trips unchanged.
type OpaqueContent struct {
	Kind string
	Data json.RawMessage
}

func (o OpaqueContent) ContentKind() string { return o.Kind }

// EncodeContent serializes content into its tagged envelope.
func EncodeContent(c Content) ([]byte, error) {
	switch v := c.(type) {
	case nil:
		return nil, fmt.Errorf("encode content: nil content")
	case OpaqueContent:
		return json.Marshal(envelope{Kind: v.Kind, Data: v.Data})
	case *OpaqueContent:
		return json.Marshal(envelope{Kind: v.Kind, Data: v.Data})
	default:
		return encodeEnvelope(c.ContentKind(), c)
	}
}

// DecodeContent parses a tagged envelope. Unknown kinds decode to OpaqueContent.
func DecodeContent(b []byte) (Content, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode content: %w", err)
	}
	switch env.Kind {
	case ContentLesson:
		var c LessonContent
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("decode lesson: %w", err)
		}
		return c, nil
	case ContentQuiz:
		var c QuizContent
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return nil, fmt.Errorf("decode quiz: %w", err)
		}
		return c, nil
	default:
		return OpaqueContent{Kind: env.Kind, Data: env.Data}, nil
	}
}

// GameState is the resumable state of an in-progress play session.
// Implemented by DragDropState, MemoryState, QuizState and OpaqueState.
type GameState interface {
	GameKind() string
}

const (
	GameDragDrop = "drag_drop"
	GameMemory   = "memory"
	GameQuiz     = "quiz"
)

// DragDropState maps draggable item ids to the drop zone they were placed in.
type DragDropState struct {
	Placements map[string]string `json:"placements"`
	Remaining  []string          `json:"remaining,omitempty"`
}

func (DragDropState) GameKind() string { return GameDragDrop }

// MemoryState tracks revealed and matched cards of a memory game.
type MemoryState struct {
	Revealed []int   `json:"revealed,omitempty"`
	Matched  [][]int `json:"matched,omitempty"`
	Moves    int     `json:"moves"`
}

func (MemoryState) GameKind() string { return GameMemory }

// QuizState holds answers given so far.
type QuizState struct {
	Current int   `json:"current"`
	Answers []int `json:"answers,omitempty"`
}

func (QuizState) GameKind() string { return GameQuiz }

// OpaqueState preserves game state of an unknown game kind.
type OpaqueState struct {
	Kind string
	Data json.RawMessage
}

func (o OpaqueState) GameKind() string { return o.Kind }

// EncodeGameState serializes state. A nil state encodes to an empty blob.
func EncodeGameState(s GameState) ([]byte, error) {
	switch v := s.(type) {
	case nil:
		return nil, nil
	case OpaqueState:
		return json.Marshal(envelope{Kind: v.Kind, Data: v.Data})
	case *OpaqueState:
		return json.Marshal(envelope{Kind: v.Kind, Data: v.Data})
	default:
		return encodeEnvelope(s.GameKind(), s)
	}
}

// DecodeGameState parses a stored blob. An empty blob decodes to nil.
func DecodeGameState(b []byte) (GameState, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("decode game state: %w", err)
	}
	switch env.Kind {
	case GameDragDrop:
		var s DragDropState
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode drag_drop state: %w", err)
		}
		return s, nil
	case GameMemory:
		var s MemoryState
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode memory state: %w", err)
		}
		return s, nil
	case GameQuiz:
		var s QuizState
		if err := json.Unmarshal(env.Data, &s); err != nil {
			return nil, fmt.Errorf("decode quiz state: %w", err)
		}
		return s, nil
	default:
		return OpaqueState{Kind: env.Kind, Data: env.Data}, nil
	}
}
