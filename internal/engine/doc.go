// Package engine supervises the native NearClip engine process.
//
// The engine owns the radios (BLE, Wi-Fi Direct) and the pairing
// handshake, and talks to nearclipd over MQTT through the nativecore
// bridge. When nearclipd is configured to manage it, the Supervisor starts
// the binary, forwards its output to the daemon log, restarts it with
// exponential backoff when it exits unexpectedly, and stops the whole
// process group on shutdown.
//
//	sup := engine.NewSupervisor(engine.Config{
//	    Binary: "/usr/lib/nearclip/nearclip-engine",
//	    Args:   []string{"--mqtt", "tcp://127.0.0.1:1883"},
//	})
//	sup.SetLogger(log)
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Stop()
package engine
