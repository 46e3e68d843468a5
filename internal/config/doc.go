// Package config loads and persists the bridge's configuration: the
// config.yaml with bridge and cleanup settings, and one YAML file per server
// definition under the servers directory.
//
// The running bridge holds definitions in a Store, which the lifecycle
// coordinator reads through on every request. A Watcher keeps the store in
// sync with the servers directory, so definitions can be added, changed or
// removed without restarting the bridge. Changed definitions apply to new
// instances only; already-running instances keep their original
// configuration until stopped or swept.
package config
