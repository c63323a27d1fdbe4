// Package notify announces written files to downstream consumers.
//
// Messages use the pytroll text framing
//
//	pytroll://<topic> <type> <sender> <time> v1.01 application/json <json>
//
// and travel over NATS. The topic's "/" separators become "." in the NATS subject,
// under a configurable prefix. When publishing is disabled a no-op publisher is
// used so the stage runs unchanged.
package notify
