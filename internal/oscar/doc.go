// Package oscar binds the FLAP, SNAC and TLV codecs to live transport
// connections.
//
// A Server accepts connections and hands each one to a Service. The Service
// registers per-frame-type handlers on the Conn and keeps whatever
// per-connection state it needs in the Conn's value slot. Each Conn is driven
// by exactly one goroutine, so handlers never run concurrently for the same
// connection.
package oscar
