// Package mqtt connects NearClip Core to its MQTT broker.
//
// The broker is the seam between the registry and the native core: the
// native core publishes discovery advertisements and connection-lost
// signals, answers commands on per-request response topics, and the
// registry republishes each device's connection status as a retained
// message.
//
//	Registry ↔ MQTT Broker ↔ Native core (BLE / Wi-Fi Direct)
//
// The client reconnects with backoff, restores subscriptions after each
// reconnect and keeps a retained online/offline status with a last will.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCoreConnectionLost(), 1,
//	    func(topic string, payload []byte) error {
//	        id := mqtt.LastSegment(topic)
//	        ...
//	    })
package mqtt
