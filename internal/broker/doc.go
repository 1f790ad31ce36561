// Package broker owns the message-bus connection lifecycle: bounded
// initial connect, liveness announcement, Home Assistant MQTT
// discovery registration, and reconnect-on-drop.
//
// The session uses Eclipse Paho v2's [autopaho] package for connection
// management. The initial connect blocks for at most the configured
// retry budget (attempts × delay); if the broker stays unreachable the
// session degrades and the pipeline keeps running, counting and
// dropping bus publishes until a background reconnect succeeds. On
// every (re-)connect the session publishes the retained "online"
// status first, then the retained discovery registrations, then
// re-subscribes command topics, so discovery and liveness for a
// connection epoch always precede data publishes made after it. A will
// message flips the status topic to "offline" on unexpected drops.
package broker
