/*
Package event provides a type-safe pub/sub event system for goose.

The bus decouples the core from its consumers: the agent loop, permission
checker, extension manager, config watcher, and scheduler publish events;
the terminal UI or the headless printer subscribes to render them.

The package is built on watermill's gochannel for infrastructure while
keeping direct-call semantics so event payloads stay typed.

Publishing:

	event.Publish(event.Event{
		Type: event.MessageCreated,
		Data: event.MessageCreatedData{SessionID: id, Message: msg},
	})

Subscribing:

	unsub := event.Subscribe(event.PermissionRequired, func(e event.Event) {
		data := e.Data.(event.PermissionRequiredData)
		// prompt the user, then checker.Respond(data.ID, ...)
	})
	defer unsub()

Publish fans out asynchronously (one goroutine per subscriber);
PublishSync delivers in the caller's goroutine and returns after every
subscriber has run; the tests use it where ordering matters, while the
permission checker and the other publishers use Publish.
*/
package event
