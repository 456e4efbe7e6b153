// Package mqtt connects the relay to an MQTT broker.
//
// The bus is optional. When enabled, devices can subscribe to
// fleetrelay/command/{device_id} to learn about new work without polling,
// and report liveness on fleetrelay/heartbeat/{device_id}. The relay keeps a
// retained status on fleetrelay/system/status, with a Last Will so the
// broker flips it to offline if the process dies.
//
// Subscriptions are tracked and restored after every reconnect. Handlers
// are wrapped with panic recovery.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceHeartbeats(), client.QoS(), handler)
package mqtt
