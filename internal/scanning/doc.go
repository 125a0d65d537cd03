// Package scanning runs range scans over a /24 subnet.
//
// An Orchestrator owns one scan at a time. A scan request names a three-octet
// base address, an inclusive last-octet range and the ports to check. The
// orchestrator validates the request, serves it from the range cache when an
// identical range was scanned recently, and otherwise probes the range in
// batches of at most ConcurrencyLimit hosts.
//
// Each host gets one TimeoutMS window. The liveness probe runs first, then
// the port scan and identity resolution run side by side in whatever is
// left of the window. Dead hosts are dropped without any further work. Results are returned in ascending address order.
//
// # Events
//
// Listeners registered with WithListener receive progress after every host,
// host-discovered, cache-hit, cache-error and the terminal scan-complete or
// scan-cancelled event. Delivery is serialized, so a listener never runs
// concurrently with itself.
//
// # Cancellation
//
// CancelScan stops the scan between batches. Hosts already in flight finish
// and are returned; no progress is reported after the cancel is observed,
// and a cancelled result is never cached.
//
//	o, err := scanning.NewOrchestrator(provider, scanning.WithResolver(res))
//	if err != nil {
//		return err
//	}
//	result, err := o.ScanNetwork(ctx, scanning.ScanRequest{
//		BaseIP:     "192.168.1",
//		StartRange: 1,
//		EndRange:   254,
//		Ports:      []int{22, 80, 443},
//		TimeoutMS:  2000,
//	})
package scanning
