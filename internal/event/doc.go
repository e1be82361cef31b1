// Package event carries notifications between the pipeline stages and the
// terminal surfaces.
//
// Components publish what happened to a shared [Bus] instead of calling
// each other: the stores announce repairs and failed pushes, the queues
// announce quarantined entries and dead letters, and whoever cares (the
// printer, the daemon log sink) subscribes. Publishers never know their
// audience, which keeps the store packages free of any presentation code.
//
// Dispatch is synchronous. Publish calls every matching handler on the
// calling goroutine before it returns, first the handlers subscribed to the
// concrete type, then the [Wildcard] ones, each group in subscription
// order. A panic in one handler is recovered and logged so the remaining
// handlers still run. The Bus itself may be used from any number of
// goroutines.
//
// The event types mirror the pipeline stages: [StoreRepairedEvent],
// [ReplicaRepairedEvent] and [PushFailedEvent] from the versioned store,
// [DeadLetterEvent] and [EntryQuarantinedEvent] from the queues,
// [BatchFoldedEvent] and [BatchCollectedEvent] from aggregation, and
// [HousekeepingDoneEvent] when a housekeeping run finishes. Their type
// strings are the Type* constants.
//
// Typical wiring:
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeDeadLetter, func(e event.Event) {
//	    dead := e.(event.DeadLetterEvent)
//	    fmt.Printf("request %s gave up after %d attempts\n", dead.RequestFile, dead.Attempts)
//	})
//
//	// Mirror everything into the log.
//	bus.SubscribeAll(func(e event.Event) {
//	    logger.Debug("event published", "type", e.EventType())
//	})
//
//	bus.Publish(event.NewDeadLetterEvent("1700000000000_a1b2.json", 5))
package event
