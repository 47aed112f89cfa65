// Package forgectl is the HTTP client the CLI uses to talk to a running
// forged daemon's REST API. It holds no daemon-side state of its own;
// every call is a single request/response round trip.
package forgectl
