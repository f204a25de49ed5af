// Package mockapi is an in-memory stand-in for the room-monitoring backend.
//
// It serves the same REST routes the dashboard client calls, seeded with a
// demo account (DemoEmail / DemoPassword), two assigned rooms and two free
// ones. Readings are synthesized on a random walk every Options.Step and
// checked against the built-in limits and any custom alert rules, so the
// alerts view has something to show.
//
// An Ingestor can additionally subscribe to an MQTT broker and store readings
// published on roomwatch/sensors/<sensor id> as JSON:
//
//	{"timestamp": 1700000000, "data": {"temperature": 23.4, "humidity": 41}}
package mockapi
