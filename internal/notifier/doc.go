// Package notifier formats sweep results and delivers them to chat.
//
// Delivery is fire-and-forget: each configured Sink gets exactly one attempt
// per message, bounded by a per-call timeout and throttled by a token-bucket
// limiter. Failures are logged, counted and returned as *DeliveryError so
// the caller can record them, but they never trigger another notification;
// a fault about a failed fault report would loop.
//
// # Formats
//
//	normal: *HH:MM:SS* [partial]\n\n<body>
//	fault:  *FAULT* HH:MM:SS\n\n```\n<error>\n```
package notifier
