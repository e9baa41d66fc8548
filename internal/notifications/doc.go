// Package notifications delivers intake events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. Each
// event category (session completion, review flags, errors) can be switched
// off individually so operators only hear about what they care about.
//
// Extend this package if you need alternative transports; pipeline and
// review code depend only on the Service interface.
package notifications
