// Package nativecore connects the lifecycle manager to the native transport
// and pairing engine over MQTT.
//
// Bridge implements lifecycle.NativeCore: each call becomes a
// CommandMessage with a fresh request ID, answered on a per-request
// response topic. Discovery advertisements and connection-lost signals are
// decoded and handed to the manager's callbacks.
//
// StatusPublisher goes the other way, mirroring every committed transition
// to a retained nearclip/registry/device/{id}/status message.
//
//	bridge := nativecore.NewBridge(mqttClient, nativecore.Config{QoS: 1})
//	if err := bridge.Start(); err != nil { ... }
//	mgr := lifecycle.NewManager(repo, bridge, lifecycle.Config{})
//	mgr.AddListener(nativecore.NewStatusPublisher(mqttClient, 1).Handle)
package nativecore
