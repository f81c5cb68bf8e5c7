package echobus

import (
	"testing"

	"github.com/coregx/echobus/model"
	"github.com/stretchr/testify/assert"
)

func TestMessageFilter_Where(t *testing.T) {
	tests := []struct {
		name           string
		filter         MessageFilter
		expectedClause string
		expectedArgs   []interface{}
		description    string
	}{
		{
			name:           "Empty",
			filter:         MessageFilter{},
			expectedClause: "",
			expectedArgs:   nil,
			description:    "No constraint at all",
		},
		{
			name:           "Whitespace only",
			filter:         MessageFilter{Topic: " ", Text: "\n\t"},
			expectedClause: "",
			expectedArgs:   nil,
			description:    "Blank fields are ignored",
		},
		{
			name:           "Topic",
			filter:         MessageFilter{Topic: " topic-1 "},
			expectedClause: "topic = ?",
			expectedArgs:   []interface{}{"topic-1"},
			description:    "Trimmed exact match",
		},
		{
			name:           "Text",
			filter:         MessageFilter{Text: "Hello"},
			expectedClause: "LOWER(message) LIKE ? ESCAPE '!'",
			expectedArgs:   []interface{}{"%hello%"},
			description:    "Lower-cased substring pattern",
		},
		{
			name:           "Both",
			filter:         MessageFilter{Topic: "topic-1", Text: "hi"},
			expectedClause: "topic = ? AND LOWER(message) LIKE ? ESCAPE '!'",
			expectedArgs:   []interface{}{"topic-1", "%hi%"},
			description:    "Combined with AND",
		},
		{
			name:           "Non-ASCII kept as written",
			filter:         MessageFilter{Text: "ÉCOLE"},
			expectedClause: "LOWER(message) LIKE ? ESCAPE '!'",
			expectedArgs:   []interface{}{"%École%"},
			description:    "Only ASCII letters are folded",
		},
		{
			name:           "Wildcards escaped",
			filter:         MessageFilter{Text: "50%_off!"},
			expectedClause: "LOWER(message) LIKE ? ESCAPE '!'",
			expectedArgs:   []interface{}{"%50!%!_off!!%"},
			description:    "LIKE metacharacters in input match literally",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, args := tt.filter.Where()
			assert.Equal(t, tt.expectedClause, clause, tt.description)
			assert.Equal(t, tt.expectedArgs, args, tt.description)
			assert.Equal(t, tt.expectedClause == "", tt.filter.IsEmpty())
		})
	}
}

func TestMessageFilter_Matches(t *testing.T) {
	msg := model.StoredMessage{Topic: "topic-1", Message: "Hello 50% World"}

	assert.True(t, MessageFilter{}.Matches(msg))
	assert.True(t, MessageFilter{Topic: "topic-1"}.Matches(msg))
	assert.False(t, MessageFilter{Topic: "topic"}.Matches(msg), "topic is exact, not a prefix")
	assert.True(t, MessageFilter{Text: "hello"}.Matches(msg))
	assert.True(t, MessageFilter{Text: "50%"}.Matches(msg))
	assert.False(t, MessageFilter{Text: "5_%"}.Matches(msg))
	assert.False(t, MessageFilter{Topic: "topic-2", Text: "hello"}.Matches(msg))
}

func TestMessageFilter_MatchesFoldsASCIIOnly(t *testing.T) {
	msg := model.StoredMessage{Topic: "topic-1", Message: "école ÉTÉ"}

	assert.True(t, MessageFilter{Text: "COLE"}.Matches(msg), "ASCII letters fold")
	assert.True(t, MessageFilter{Text: "ÉTÉ"}.Matches(msg), "non-ASCII matches as written")
	assert.False(t, MessageFilter{Text: "ÉCOLE"}.Matches(msg), "non-ASCII letters do not fold")
	assert.False(t, MessageFilter{Text: "été"}.Matches(msg))
}
