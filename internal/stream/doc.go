// Package stream implements the live order-event stream client.
//
// The stream:
//   - Opens an authenticated Server-Sent Events request per subject
//   - Reconnects with exponential backoff (500ms doubling, 30s cap)
//   - Treats a rejected credential as terminal; everything else retries
//   - Drops undecodable payloads without disturbing the connection
//   - Delivers decoded events to a single listener, in arrival order
package stream
