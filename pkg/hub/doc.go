// Package hub relays shared state change events between processes.
//
// A hub plays the role a browser plays for its tabs: every connection joins
// one origin, and an event published by one connection is forwarded to every
// other connection of the same origin. The publisher never receives its own
// event back.
//
// Serving a hub:
//
//	srv := hub.NewServer(hub.Config{})
//	http.ListenAndServe(":7070", srv.Handler())
//
// Connecting to it:
//
//	c, err := hub.Dial(ctx, hub.OriginURL("ws://localhost:7070", "app"))
//	store := storage.Broadcasting(storage.NewS3(client, bucket, ""), c, c.ID())
//	rt := sharedstate.New(sharedstate.WithStorage(store))
//	go rt.Listen(ctx, c)
//
// Frames are JSON text messages:
//
//	{"type":"hello","id":"<connection id>"}
//	{"type":"event","event":{"key":"sharedstate:user","value":"\"ann\""}}
package hub
