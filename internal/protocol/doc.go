// Package protocol owns the OSCAR wire contract and its error taxonomy.
//
// Ownership boundary:
// - flap framing and reassembly (protocol/flap)
// - snac envelopes and family/subtype dispatch (protocol/snac)
// - tlv attribute lists (protocol/tlv)
// - error classification shared by every layer
package protocol
