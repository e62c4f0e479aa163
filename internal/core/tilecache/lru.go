package tilecache

import "github.com/sw1227/gradient-descent-map/internal/core/domain"

// node is an entry in the recency list. It owns the cached grid so the map
// and the list share one allocation per tile.
type node struct {
	key  domain.TileAddress
	grid domain.TileGrid
	prev *node
	next *node
}

// lruList is a doubly-linked list, head = most recently used.
// Not safe for concurrent use; Cache holds the lock.
type lruList struct {
	head *node
	tail *node
	len  int
}

func (l *lruList) pushFront(n *node) {
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

func (l *lruList) moveToFront(n *node) {
	if n == l.head {
		return
	}
	l.unlink(n)
	l.pushFront(n)
}

// removeOldest unlinks and returns the tail, or nil when empty.
func (l *lruList) removeOldest() *node {
	n := l.tail
	if n == nil {
		return nil
	}
	l.unlink(n)
	return n
}

func (l *lruList) unlink(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.len--
}
