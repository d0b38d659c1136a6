package testutil

import (
	"strconv"

	"github.com/zjrosen/forkchat/internal/chat/domain"
)

// WithLinearConversation adds a thread holding n alternating user/assistant
// messages labelled m0..m(n-1).
func (b *Builder) WithLinearConversation(id domain.ThreadID, n int) *Builder {
	b.WithThread(id)
	for i := 0; i < n; i++ {
		label := "m" + strconv.Itoa(i)
		if i%2 == 0 {
			b.WithUser(label, "question "+strconv.Itoa(i/2))
		} else {
			b.WithAssistant(label, "answer "+strconv.Itoa(i/2), Model("gpt"))
		}
	}
	return b
}

// WithBranchedConversation adds the standard branched thread:
//
//	u1 "Hi"
//	├── a1 "Hello"
//	│   └── u2 "How are you?"
//	│       └── a2 "Fine, thanks"
//	└── a1b "Hey there"   (newest, active)
func (b *Builder) WithBranchedConversation(id domain.ThreadID) *Builder {
	return b.
		WithThread(id).
		WithUser("u1", "Hi").
		WithAssistant("a1", "Hello", Model("gpt")).
		WithUser("u2", "How are you?").
		WithAssistant("a2", "Fine, thanks", Model("gpt")).
		WithAssistant("a1b", "Hey there", Parent("u1"), Model("gpt"))
}
