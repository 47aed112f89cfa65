// Package events is the in-process topic-scoped publish/subscribe bus that
// fans out job, generation, model, and download lifecycle events to
// subscribers (the websocket transport in internal/httpapi, in-process
// test listeners). Delivery is best-effort: each subscriber has its own
// bounded buffer, and a slow subscriber drops events rather than blocking
// publishers. Subscribers never share a buffer.
package events
