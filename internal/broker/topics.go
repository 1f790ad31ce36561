package broker

// Topics derives every bus topic from the configured prefix. The
// layout is fixed by the external consumer's expectations:
//
//	<prefix>/status                      retained online/offline
//	<prefix>/temperature                 data
//	<prefix>/relay_state                 data
//	<prefix>/config/<name>/status       retained setpoint state
//	<prefix>/config/<name>/set          inbound setpoint command
type Topics struct {
	Prefix string
}

// Status is the retained liveness topic.
func (t Topics) Status() string { return t.Prefix + "/status" }

// Temperature is the temperature data topic.
func (t Topics) Temperature() string { return t.Prefix + "/temperature" }

// RelayState is the relay data topic.
func (t Topics) RelayState() string { return t.Prefix + "/relay_state" }

// ConfigStatus is the retained state topic for a setpoint.
func (t Topics) ConfigStatus(name string) string {
	return t.Prefix + "/config/" + name + "/status"
}

// ConfigSet is the inbound command topic for a setpoint.
func (t Topics) ConfigSet(name string) string {
	return t.Prefix + "/config/" + name + "/set"
}

// ConfigSetFilter matches every setpoint command topic.
func (t Topics) ConfigSetFilter() string {
	return t.Prefix + "/config/+/set"
}
