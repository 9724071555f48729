package bmc

import ptp "github.com/ptpsync/ptpcore/protocol"

// CompareAnnounce is a convenience wrapper for operators who already have two
// full Announce bodies rather than extracted PriorityVectors. It is exactly
// building two PriorityVectors via ptp.VectorFromAnnounce and calling Compare,
// so it uses the same seven-field order; the sender port identities are not
// used as a tie-break, and fully equal vectors yield Equal.
func CompareAnnounce(a, b ptp.AnnounceBody, senderA, senderB ptp.PortIdentity) Result {
	va := ptp.VectorFromAnnounce(a, senderA)
	vb := ptp.VectorFromAnnounce(b, senderB)
	return Compare(va, vb)
}
