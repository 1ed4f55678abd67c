package syncx

import (
	"sync"

	"framesync/pkg/models"
)

// AssetSyncDelegate receives notifications about asset and queue changes
// applied during a reconciliation pass. Callbacks are invoked on a single
// dispatcher goroutine, never concurrently.
type AssetSyncDelegate interface {
	UsersVerified(users []models.User)
	AssetsSharedWithUser(assetGlobalIDs []string)
	AssetsRemoved(descriptors []models.AssetDescriptor)
	QueueItemsChanged(itemIDs []string)
	QueueItemsRemoved(itemIDs []string)
}

// InteractionSyncDelegate receives notifications about interaction and
// thread changes. Same serialization guarantee as AssetSyncDelegate.
type InteractionSyncDelegate interface {
	MessagesReceived(anchor models.InteractionAnchor, anchorID string, messages []models.Message)
	ReactionsChanged(anchor models.InteractionAnchor, anchorID string)
	ThreadsUpdated(threads []models.ConversationThread)
	ThreadAdded(thread models.ConversationThread)
	MessagesFromUnauthorizedUsers(userIDs []string)
}

// Dispatcher serializes delegate callbacks onto one goroutine so
// delegates never need their own locking. Notify is fire and forget:
// engine progress does not wait on delegate work.
type Dispatcher struct {
	mu     sync.Mutex
	ch     chan func()
	done   chan struct{}
	closed bool
}

func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		ch:   make(chan func(), 256),
		done: make(chan struct{}),
	}
	go func() {
		defer close(d.done)
		for fn := range d.ch {
			fn()
		}
	}()
	return d
}

// Notify enqueues fn for ordered execution. Dropped when the dispatcher
// is closed or the queue is full.
func (d *Dispatcher) Notify(fn func()) {
	if d == nil || fn == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- fn:
	default:
	}
}

// Close drains pending callbacks and stops the dispatcher goroutine.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.ch)
	d.mu.Unlock()
	<-d.done
}
