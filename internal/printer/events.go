package printer

import (
	"github.com/ledgerline/chronicle/internal/event"
)

// Attach subscribes terminal output handlers to the bus so that notable
// pipeline events reach the user when chronicle runs in the foreground.
// Handlers print warnings only; routine events stay in the log.
func Attach(bus *event.Bus) {
	bus.Subscribe("store.repaired", func(e event.Event) {
		if ev, ok := e.(event.StoreRepairedEvent); ok {
			Warning("store failed integrity check and was rebuilt; previous copy kept at %s\n", ev.BackupPath)
		}
	})

	bus.Subscribe("store.replica_repaired", func(e event.Event) {
		if ev, ok := e.(event.ReplicaRepairedEvent); ok {
			Warning("replica failed integrity check and was rebuilt; previous copy kept at %s\n", ev.BackupPath)
		}
	})

	bus.Subscribe("store.push_failed", func(e event.Event) {
		if ev, ok := e.(event.PushFailedEvent); ok {
			Warning("push to %s remote failed; will retry on next housekeeping\n", ev.Remote)
		}
	})

	bus.Subscribe("queue.dead_letter", func(e event.Event) {
		if ev, ok := e.(event.DeadLetterEvent); ok {
			Warning("request %s gave up after %d attempts and was set aside\n", ev.RequestFile, ev.Attempts)
		}
	})

	bus.Subscribe("queue.entry_quarantined", func(e event.Event) {
		if ev, ok := e.(event.EntryQuarantinedEvent); ok {
			Warning("unreadable queue entry set aside: %s\n", ev.EntryFile)
		}
	})
}
