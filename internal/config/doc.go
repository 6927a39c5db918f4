// Package config loads sharedstate configuration files.
//
// Configuration lives next to the application in sharedstate.json,
// sharedstate.toml or sharedstate.yaml. The decoder is chosen by file
// extension; a missing file yields the defaults.
//
// # Configuration File Structure
//
//	namespace = "sharedstate:"
//	origin = "app"
//
//	[storage]
//	driver = "s3"         # memory, file or s3
//	bucket = "app-state"
//	prefix = "prod/"
//	region = "eu-west-1"
//	timeout = "5s"
//
//	[hub]
//	addr = ":7070"
//	url = "ws://hub.internal:7070"
//
//	[log]
//	level = "info"        # debug, info, warn, error
//	format = "text"       # text or json
//
//	[metrics]
//	enabled = true
//
// # Usage
//
//	cfg, err := config.LoadFromDir(".")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Storage.Driver)
package config
