// Package memory provides in-process ConversationStore and MessageStore
// implementations. They back STORE_DRIVER=memory for local runs and the
// service and handler tests.
package memory

import (
	"github.com/quocanhngo/talkcore/internal/repository"
)

var (
	_ repository.ConversationStore = (*ConversationStore)(nil)
	_ repository.MessageStore      = (*MessageStore)(nil)
)

// NewStores returns a linked pair of stores sharing one process-local dataset
func NewStores() (*ConversationStore, *MessageStore) {
	msgs := newMessageStore()
	convs := newConversationStore(msgs)
	msgs.conversationLive = convs.isLive
	return convs, msgs
}
