package broker

// DefaultRegistrations builds the discovery payloads for the BeerPi
// entity set: the temperature sensor, the relay binary sensor, the
// min/max setpoint numbers, and the manual-control switch.
//
// Object IDs and payload field values are fixed by the external
// consumer's expectations and must not change between releases. The
// value templates are only attached when the data topics carry JSON
// envelopes; raw payloads are consumed as-is.
func DefaultRegistrations(topics Topics, discoveryDevice DeviceInfo, rawPayloads bool) []Registration {
	dev := &discoveryDevice
	avail := topics.Status()

	tempVT := "{{ value_json.temperature }}"
	relayVT := "{{ value_json.relay }}"
	if rawPayloads {
		tempVT = ""
		relayVT = ""
	}

	return []Registration{
		{
			Component: "sensor",
			ObjectID:  "beerpi_temperature",
			Payload: SensorConfig{
				Name:              "BeerPi Temperature",
				StateTopic:        topics.Temperature(),
				UnitOfMeasurement: "°C",
				DeviceClass:       "temperature",
				UniqueID:          "beerpi_temperature",
				ValueTemplate:     tempVT,
				AvailabilityTopic: avail,
				Device:            dev,
			},
		},
		{
			Component: "binary_sensor",
			ObjectID:  "beerpi_relay",
			Payload: BinarySensorConfig{
				Name:              "BeerPi Relay",
				StateTopic:        topics.RelayState(),
				PayloadOn:         "ON",
				PayloadOff:        "OFF",
				DeviceClass:       "power",
				UniqueID:          "beerpi_relay",
				ValueTemplate:     relayVT,
				AvailabilityTopic: avail,
				Device:            dev,
			},
		},
		{
			Component: "number",
			ObjectID:  "beerpi_min_temp",
			Payload: NumberConfig{
				Name:              "BeerPi Min Temp",
				UniqueID:          "beerpi_min_temp",
				StateTopic:        topics.ConfigStatus("min_temp"),
				CommandTopic:      topics.ConfigSet("min_temp"),
				Min:               0,
				Max:               100,
				Step:              0.5,
				UnitOfMeasurement: "°C",
				AvailabilityTopic: avail,
				Device:            dev,
			},
		},
		{
			Component: "number",
			ObjectID:  "beerpi_max_temp",
			Payload: NumberConfig{
				Name:              "BeerPi Max Temp",
				UniqueID:          "beerpi_max_temp",
				StateTopic:        topics.ConfigStatus("max_temp"),
				CommandTopic:      topics.ConfigSet("max_temp"),
				Min:               0,
				Max:               100,
				Step:              0.5,
				UnitOfMeasurement: "°C",
				AvailabilityTopic: avail,
				Device:            dev,
			},
		},
		{
			Component: "switch",
			ObjectID:  "beerpi_manual_control",
			Payload: SwitchConfig{
				Name:              "BeerPi Manual Control",
				UniqueID:          "beerpi_manual_control",
				StateTopic:        topics.ConfigStatus("manual_control"),
				CommandTopic:      topics.ConfigSet("manual_control"),
				PayloadOn:         "on",
				PayloadOff:        "off",
				AvailabilityTopic: avail,
				Device:            dev,
			},
		},
	}
}
