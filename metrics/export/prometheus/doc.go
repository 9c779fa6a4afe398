// Package prometheus renders authcore metrics in Prometheus text exposition
// format.
//
// Counter names are prefixed authcore_ and suffixed _total. Latency
// histograms use the engine's fixed millisecond buckets expressed in seconds.
// Nothing is registered globally; callers mount Handler or call Render.
package prometheus
