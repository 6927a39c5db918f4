// Package errors provides coded, categorized errors for sharedstate.
//
// Every failure the module reports outside of a panic is an *Error built
// from a registered code. Codes group by subsystem:
//   - E0xx: key usage (programming errors)
//   - E1xx: persistence (serialization and storage media)
//   - E2xx: hub protocol and connections
//   - E3xx: configuration
//
// # Usage
//
//	err := errors.New("E103").
//	    WithDetail(`key "@cart"`).
//	    Wrap(ioErr)
//
//	if errors.Is(err, errors.New("E103")) {
//	    // storage write failed
//	}
//
//	fmt.Fprint(os.Stderr, err.Format())
//	// ERROR E103: Storage write failed
//	//
//	//   key "@cart"
//	//
//	//   Hint: The in-memory value was kept. Check quota and permissions of the storage medium.
package errors
