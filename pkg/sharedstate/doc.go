// Package sharedstate is a key-addressed registry of state cells that
// independent components read and write.
//
// Every component bound to the same key sees the same value. Writing through
// one binding updates the cell and synchronously notifies every other
// binding of that key, and only that key.
//
// # Durable keys
//
// Keys beginning with "@" are durable. Their values are also written to a
// storage medium under the runtime's namespace ("@user" is stored as
// "sharedstate:user") and are restored on the first mount after a restart.
// Persistence is best effort: failures are logged and reported through
// OnPersistError, while the in-memory cell stays authoritative.
//
// # Cross-context sync
//
// Storage media that announce changes made by other contexts implement
// storage.Notifier. Runtime.Listen replays those changes into the local
// store without writing them back:
//
//	f, _ := storage.NewFile("/var/lib/app/state")
//	go f.Watch(ctx)
//	rt := sharedstate.New(sharedstate.WithStorage(f))
//	go rt.Listen(ctx, f)
//
// # Bindings
//
//	count := sharedstate.UseSharedState("counter", 0)
//	defer count.Close()
//	count.OnChange(func(n int) { rerender() })
//	count.Update(func(n int) int { return n + 1 })
//
//	user, setUser := sharedstate.UseSharedState("@user", User{}).State()
//
// # Utilities
//
//	u := sharedstate.Utils()
//	u.Keys()          // live keys
//	u.Delete("@user") // cell and durable record
//	u.Clear(false)    // non-durable values only
//	u.Clear(true)     // everything, including records
package sharedstate
