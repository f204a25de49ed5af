// Package backend provides an HTTP client for the room-monitoring API.
//
// # Overview
//
// The backend owns authentication, persistence, sensor ingestion and alert
// evaluation. This package only mirrors its JSON schema and wraps each REST
// endpoint in a typed method.
//
// # Architecture
//
//   - client.go: Client, request plumbing and one method per endpoint
//   - errors.go: APIError plus IsNotFound/IsUnauthorized helpers
//   - types.go: Room, Sensor, Details, Alert, CustomAlert and friends
//
// # Client Usage
//
//	client, err := backend.NewClient("http://localhost:8080")
//	if err != nil {
//		return err
//	}
//	client.SetToken(sess.Token)
//	rooms, err := client.Rooms(ctx)
//
// Every request carries a fresh X-Request-ID and, once a token is set, an
// Authorization bearer header. Non-2xx responses surface as *APIError.
//
// # Date-scoped Endpoints
//
// SensorDataByDate and AlertsByDate format the day as yyyy-mm-dd in the
// location of the supplied time. The backend answers 404 when a day has no
// data; callers that poll treat IsNotFound as an empty result.
//
// # Thread Safety
//
// Client is safe for concurrent use. SetToken may be called while requests
// are in flight; each request reads the token once when it is built.
package backend
