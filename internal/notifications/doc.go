// Package notifications delivers lifecycle and job events via pluggable
// publishers.
//
// The ntfy publisher posts short human-readable messages to the topic
// configured in config.toml. The AMQP publisher emits every event as JSON on a
// topic exchange for downstream consumers. Both degrade to a no-op when not
// configured, and callers depend only on the Service interface.
package notifications
