// Package notify carries guest activity (RSVPs, registry reservations,
// gallery uploads) from the web server to the hosts.
//
// The server publishes an Event per accepted request through a Publisher.
// NATSPublisher puts it on subject "<prefix>.<type>"; cmd/notifier
// queue-subscribes to "<prefix>.>" and forwards a short message to a chat
// webhook through WebhookNotifier.
//
// Publishing is best effort. A failed publish is logged and counted but
// never fails the guest's request.
package notify
