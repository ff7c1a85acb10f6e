package router

import "github.com/VictoriaMetrics/metrics"

// requestsServed counts every request the router has dispatched, across
// all connections and all databases, for the lifetime of the process.
// It is never exposed over the network (network transport is out of
// scope); the Status request reads it directly for operator visibility.
var requestsServed = metrics.NewCounter("waldb_requests_served_total")
