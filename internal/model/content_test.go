package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_KnownVariants(t *testing.T) {
	lesson := LessonContent{
		Title:    "Fractions",
		Sections: []LessonSection{{Heading: "Halves", Body: "Split in two."}},
	}
	b, err := EncodeContent(lesson)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"lesson","data":{"title":"Fractions","sections":[{"heading":"Halves","body":"Split in two."}]}}`, string(b))

	got, err := DecodeContent(b)
	require.NoError(t, err)
	assert.Equal(t, lesson, got)

	quiz := QuizContent{Questions: []QuizQuestion{{Prompt: "2+2", Options: []string{"3", "4"}, Answer: 1}}}
	b, err = EncodeContent(quiz)
	require.NoError(t, err)
	got, err = DecodeContent(b)
	require.NoError(t, err)
	assert.Equal(t, quiz, got)
}

func TestContent_UnknownKindRoundTripsOpaque(t *testing.T) {
	in := []byte(`{"kind":"video","data":{"url":"v.mp4","len":30}}`)

	got, err := DecodeContent(in)
	require.NoError(t, err)
	op, ok := got.(OpaqueContent)
	require.True(t, ok, "unknown kind decodes to OpaqueContent")
	assert.Equal(t, "video", op.ContentKind())

	out, err := EncodeContent(op)
	require.NoError(t, err)
	assert.JSONEq(t, string(in), string(out))
}

func TestContent_NilRejected(t *testing.T) {
	_, err := EncodeContent(nil)
	assert.Error(t, err)
}

func TestGameState_Variants(t *testing.T) {
	states := []GameState{
		DragDropState{Placements: map[string]string{"sun": "star"}, Remaining: []string{"moon"}},
		MemoryState{Revealed: []int{1}, Matched: [][]int{{2, 5}}, Moves: 4},
		QuizState{Current: 2, Answers: []int{0, 3}},
	}
	for _, s := range states {
		t.Run(s.GameKind(), func(t *testing.T) {
			b, err := EncodeGameState(s)
			require.NoError(t, err)
			got, err := DecodeGameState(b)
			require.NoError(t, err)
			assert.Equal(t, s, got)
		})
	}
}

func TestGameState_EmptyAndOpaque(t *testing.T) {
	b, err := EncodeGameState(nil)
	require.NoError(t, err)
	assert.Empty(t, b)

	got, err := DecodeGameState(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = DecodeGameState([]byte(`{"kind":"puzzle","data":[1,2]}`))
	require.NoError(t, err)
	assert.Equal(t, OpaqueState{Kind: "puzzle", Data: json.RawMessage(`[1,2]`)}, got)
}
