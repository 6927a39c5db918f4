// Package storage defines the durable medium shared state is persisted to.
//
// A Storage is an origin-scoped key/value store of text values, the
// server-side equivalent of a browser's localStorage. Several execution
// contexts (tabs, processes, hosts) may open the same origin; a change made
// through one context is announced to every other context as an Event,
// never to the writer itself.
//
// Implementations:
//
//	origin := storage.NewOrigin()       // in-process, one Memory per context
//	tab := origin.Open()
//
//	dir, _ := storage.NewFile("/var/lib/app/state")  // one file per key
//	go dir.Watch(ctx)                                   // fsnotify events
//
//	bucket := storage.NewS3(client, "my-bucket", "state/")
//	shared := storage.Broadcasting(bucket, hubClient, hubClient.ID())
//
// Media that have no native change notification (S3) are paired with a
// Publisher such as a hub.Client through Broadcasting.
package storage
