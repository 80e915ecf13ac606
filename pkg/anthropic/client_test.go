package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageResponseText(t *testing.T) {
	t.Parallel()

	t.Run("concatenates text blocks", func(t *testing.T) {
		t.Parallel()
		resp := &MessageResponse{Content: []ContentBlock{
			{Type: "text", Text: `{"a":`},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: `1}`},
		}}
		assert.Equal(t, `{"a":1}`, resp.Text())
	})

	t.Run("empty response", func(t *testing.T) {
		t.Parallel()
		resp := &MessageResponse{}
		assert.Equal(t, "", resp.Text())
	})
}

func TestToSDKMessages(t *testing.T) {
	t.Parallel()

	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract this"},
		{Role: "assistant", Content: "{}"},
	})
	assert.Len(t, msgs, 2)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
}
