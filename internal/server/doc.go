// Package server implements fritzbox-server, a long-running presence
// service for a FRITZ!Box.
//
// The server supervises a fixed set of WLAN devices through the presence
// package and fans every poll and transition out to:
//   - structured logs (zap)
//   - Prometheus metrics
//   - websocket clients on /ws
//   - an optional MQTT publisher for Home Assistant
//
// # HTTP Endpoints
//
//	GET /presence           supervised states and every device the router reported
//	GET /presence/{device}  presence of one device from the last refresh, no poll
//	GET /healthz            503 until the first successful refresh
//	GET /metrics            Prometheus text format
//	GET /ws                 websocket stream of presence events
//
// # Websocket Events
//
// A client first receives a snapshot of all supervised states, then one
// message per transition:
//
//	{"type":"snapshot","time":"...","present":false,"states":[{"name":"iphone","known":true,"present":true}]}
//	{"type":"transition","time":"...","device":"iphone","present":false}
//
// Slow clients are disconnected instead of blocking the supervisions.
//
// # Usage Example
//
//	client := session.NewClient("192.168.178.1", 80, password)
//	srv, err := server.New(server.Config{
//	    Listen:          ":9370",
//	    Fetcher:         client,
//	    Devices:         []string{"iphone"},
//	    PollInterval:    30 * time.Second,
//	    DebounceMinutes: 5,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// Blocks until SIGINT or SIGTERM
//	if err := srv.Start(); err != nil {
//	    log.Fatal(err)
//	}
package server
