package event

import "time"

// Event type identifiers, "category.action".
const (
	TypeStoreRepaired    = "store.repaired"
	TypeReplicaRepaired  = "store.replica_repaired"
	TypePushFailed       = "store.push_failed"
	TypeDeadLetter       = "queue.dead_letter"
	TypeEntryQuarantined = "queue.entry_quarantined"
	TypeBatchFolded      = "batch.folded"
	TypeBatchCollected   = "batch.collected"
	TypeHousekeepingDone = "housekeeping.completed"
)

// Event is implemented by everything the bus carries.
type Event interface {
	// EventType returns the "category.action" identifier.
	EventType() string

	// Timestamp is the moment the event was created.
	Timestamp() time.Time
}

// baseEvent carries the fields shared by every concrete event. Embedding
// it satisfies the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// StoreRepairedEvent reports that the working repository failed its
// integrity probe and was relocated and re-initialized. Path is the
// repository that now holds a fresh repo; BackupPath is where the broken
// tree was moved.
type StoreRepairedEvent struct {
	baseEvent
	Path       string
	BackupPath string
}

// NewStoreRepairedEvent creates a StoreRepairedEvent.
func NewStoreRepairedEvent(path, backupPath string) StoreRepairedEvent {
	return StoreRepairedEvent{
		baseEvent:  newBaseEvent(TypeStoreRepaired),
		Path:       path,
		BackupPath: backupPath,
	}
}

// ReplicaRepairedEvent is the replica-side counterpart of
// StoreRepairedEvent.
type ReplicaRepairedEvent struct {
	baseEvent
	Path       string
	BackupPath string
}

// NewReplicaRepairedEvent creates a ReplicaRepairedEvent.
func NewReplicaRepairedEvent(path, backupPath string) ReplicaRepairedEvent {
	return ReplicaRepairedEvent{
		baseEvent:  newBaseEvent(TypeReplicaRepaired),
		Path:       path,
		BackupPath: backupPath,
	}
}

// PushFailedEvent reports that the best-effort replication push failed.
// The next housekeeping run retries it.
type PushFailedEvent struct {
	baseEvent
	Remote string
	Output string
}

// NewPushFailedEvent creates a PushFailedEvent.
func NewPushFailedEvent(remote, output string) PushFailedEvent {
	return PushFailedEvent{
		baseEvent: newBaseEvent(TypePushFailed),
		Remote:    remote,
		Output:    output,
	}
}

// DeadLetterEvent reports that a request exhausted its retry budget and
// was moved to the dead-letter directory under its original file name.
type DeadLetterEvent struct {
	baseEvent
	RequestFile string
	Attempts    int
}

// NewDeadLetterEvent creates a DeadLetterEvent.
func NewDeadLetterEvent(requestFile string, attempts int) DeadLetterEvent {
	return DeadLetterEvent{
		baseEvent:   newBaseEvent(TypeDeadLetter),
		RequestFile: requestFile,
		Attempts:    attempts,
	}
}

// EntryQuarantinedEvent reports that a recorded entry could not be parsed
// and was moved aside instead of being folded into a batch.
type EntryQuarantinedEvent struct {
	baseEvent
	EntryFile string
}

// NewEntryQuarantinedEvent creates an EntryQuarantinedEvent.
func NewEntryQuarantinedEvent(entryFile string) EntryQuarantinedEvent {
	return EntryQuarantinedEvent{
		baseEvent: newBaseEvent(TypeEntryQuarantined),
		EntryFile: entryFile,
	}
}

// BatchFoldedEvent reports that staged entries became a pending batch
// document.
type BatchFoldedEvent struct {
	baseEvent
	Document string
	Entries  int
}

// NewBatchFoldedEvent creates a BatchFoldedEvent.
func NewBatchFoldedEvent(document string, entries int) BatchFoldedEvent {
	return BatchFoldedEvent{
		baseEvent: newBaseEvent(TypeBatchFolded),
		Document:  document,
		Entries:   entries,
	}
}

// BatchCollectedEvent reports that pending documents from previous days
// were rolled up into per-day collected documents.
type BatchCollectedEvent struct {
	baseEvent
	Days      int
	Documents int
}

// NewBatchCollectedEvent creates a BatchCollectedEvent.
func NewBatchCollectedEvent(days, documents int) BatchCollectedEvent {
	return BatchCollectedEvent{
		baseEvent: newBaseEvent(TypeBatchCollected),
		Days:      days,
		Documents: documents,
	}
}

// HousekeepingDoneEvent reports a completed housekeeping run.
type HousekeepingDoneEvent struct {
	baseEvent
	Repository string
}

// NewHousekeepingDoneEvent creates a HousekeepingDoneEvent.
func NewHousekeepingDoneEvent(repository string) HousekeepingDoneEvent {
	return HousekeepingDoneEvent{
		baseEvent:  newBaseEvent(TypeHousekeepingDone),
		Repository: repository,
	}
}
