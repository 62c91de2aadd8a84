// Package connection supervises a transport client's lifecycle,
// reconnecting with exponential backoff after a connection loss.
//
// The transport layer itself never reconnects: a dead connection is
// torn down and stays down. Applications that want the connection to
// come back wrap the dial in a Manager and report losses to it:
//
//	mgr := connection.NewManager(func(ctx context.Context) error {
//		return client.Connect(ctx, address)
//	})
//	mgr.StartSupervisor()
//	defer mgr.Close()
//
//	mgr.Connect(ctx)
//	// on connection loss:
//	mgr.ConnectionLost()
//
// Backoff doubles from 500ms up to 30s, with up to 25% random jitter
// so a fleet of clients does not reconnect in lockstep, and resets
// after a successful connection.
package connection
