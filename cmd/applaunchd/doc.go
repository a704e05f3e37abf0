// Command applaunchd runs the application-lifecycle daemon.
//
// It discovers launchable applications from desktop entries, starts them
// on request through the activation mechanism matching each entry (direct
// spawn, D-Bus name activation or systemd unit activation), and exposes a
// control plane for starting, listing and subscribing to lifecycle events.
package main
