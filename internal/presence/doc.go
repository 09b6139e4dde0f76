// Package presence tracks which WLAN devices are connected to the router
// and reports when a device arrives or leaves.
//
// # Tracker
//
// A Tracker polls /data.lua?page=wSet and stamps every reported device
// with the poll time. A device counts as present when the latest poll
// reported it, or when it was last reported no more than the debounce
// window ago. The window hides short WLAN drop-outs of phones in power
// save mode.
//
//	tracker := presence.NewTracker(client)
//	here, err := tracker.IsPresent(ctx, "iphone", 5)
//
// # Supervision
//
// Supervise runs a polling loop for one device and calls a ChangeFunc on
// every transition. The last known state of each device lives in a
// StateStore that can be shared between supervisions:
//
//	store := presence.NewStateStore()
//	s := presence.StartSupervision(ctx, presence.SupervisorConfig{
//	    Checker:         tracker,
//	    Device:          "iphone",
//	    Store:           store,
//	    PollInterval:    30 * time.Second,
//	    DebounceMinutes: 5,
//	    OnChange: func(device string, from, to bool) {
//	        fmt.Printf("%s: %v -> %v\n", device, from, to)
//	    },
//	})
//	defer s.Stop()
package presence
