package factorgraph

import (
	"slices"
)

type orderedID[K any] interface {
	comparable
	Compare(K) int
}

// mailbox holds one message per neighbour, iterated in ascending neighbour order.
type mailbox[K orderedID[K]] struct {
	keys     []K
	messages map[K]Message
}

func compareIDs[K orderedID[K]](a, b K) int {
	return a.Compare(b)
}

func newMailbox[K orderedID[K]]() *mailbox[K] {
	return &mailbox[K]{messages: make(map[K]Message)}
}

func (mb *mailbox[K]) set(key K, msg Message) {
	if _, ok := mb.messages[key]; !ok {
		idx, _ := slices.BinarySearchFunc(mb.keys, key, compareIDs[K])
		mb.keys = slices.Insert(mb.keys, idx, key)
	}
	mb.messages[key] = msg
}

func (mb *mailbox[K]) get(key K) (Message, bool) {
	msg, ok := mb.messages[key]
	return msg, ok
}

func (mb *mailbox[K]) remove(key K) bool {
	if _, ok := mb.messages[key]; !ok {
		return false
	}
	delete(mb.messages, key)
	idx, _ := slices.BinarySearchFunc(mb.keys, key, compareIDs[K])
	mb.keys = slices.Delete(mb.keys, idx, idx+1)
	return true
}

// take empties the message stored for key and returns what was there.
func (mb *mailbox[K]) take(key K) Message {
	msg := mb.messages[key]
	out := msg.Take()
	mb.messages[key] = msg
	return out
}

func (mb *mailbox[K]) ids() []K {
	return mb.keys
}

func (mb *mailbox[K]) len() int {
	return len(mb.keys)
}
