// Package homeauto controls switchable outlets (FRITZ!DECT plugs)
// through the homeautoswitch.lua endpoint.
//
// Each call is one authenticated GET with a switchcmd parameter. Replies
// are plain text and returned trimmed; ParseState decodes the "1", "0"
// and "inval" answers.
//
//	ctrl := homeauto.New(client)
//	ains, err := ctrl.ListSwitches(ctx)
//	reply, err := ctrl.SetSwitch(ctx, ains[0], true)
package homeauto
