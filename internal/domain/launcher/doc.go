// Package launcher implements the application lifecycle engine.
//
// The Launcher drives a small state machine per application record
// (Inactive, Starting, Running) and unifies three activation mechanisms
// behind it:
//
//   - direct process spawn, where the only notifications are the spawn
//     result and the reaped exit status
//   - D-Bus name activation, where the well-known name appearing and
//     vanishing marks readiness and termination
//   - systemd unit activation, where property-change notifications
//     followed by an ActiveState query do the same
//
// Backends report to the launcher only; the launcher is the single
// publisher of the started/terminated events consumed by control-plane
// subscribers. Start requests are idempotent: an application in Starting
// is not started twice, and a Running bus-activated application gets a
// repeated Activate call to raise its window instead.
package launcher
