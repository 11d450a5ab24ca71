// File: wire.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// QRTR control-socket wire format: the fixed-size little-endian control
// packet the kernel speaks on the well-known control port, and the QRTR
// constants (the sockaddr_qrtr address structure lives in socket_linux.go
// and socket_stub.go). Field layout and semantics are ported
// directly from the kernel's struct qrtr_ctrl_pkt, as consumed by
// qrtr_ctrl_message_cb() / send_new_lookup_ctrl_packet() in
// libqrtr-glib's qrtr-control-socket.c.

package qrtr

import "encoding/binary"

// Control packet opcodes (§6).
const (
	qrtrTypeData      uint32 = 1
	qrtrTypeNewServer uint32 = 2
	qrtrTypeDelServer uint32 = 3
	qrtrTypeNewLookup uint32 = 4
)

// QRTRPortCtrl is the kernel's fixed control port.
const QRTRPortCtrl uint32 = 0xFFFFFFFF

// AFQIPCRTR is the QRTR address family number. Some kernel headers expose
// the qrtr subsystem but not the AF_QIPCRTR macro, so this library carries
// its own fallback definition exactly as qrtr-utils.c does.
const AFQIPCRTR = 42

// ctrlPacketSize is the wire size of struct qrtr_ctrl_pkt: five u32 fields.
const ctrlPacketSize = 4 * 5

// ctrlPacket mirrors the kernel's struct qrtr_ctrl_pkt:
//
//	cmd:u32
//	server.service:u32
//	server.instance:u32  // version in low 8 bits, instance in high 24
//	server.node:u32
//	server.port:u32
//
// All fields are little-endian on the wire regardless of host endianness.
type ctrlPacket struct {
	cmd      uint32
	service  uint32
	instance uint32
	node     uint32
	port     uint32
}

// decodeCtrlPacket parses a received datagram. ok is false for a short
// packet (spec §4.2, §8 S5); the caller logs and otherwise ignores it.
func decodeCtrlPacket(buf []byte) (pkt ctrlPacket, ok bool) {
	if len(buf) < ctrlPacketSize {
		return ctrlPacket{}, false
	}
	pkt.cmd = binary.LittleEndian.Uint32(buf[0:4])
	pkt.service = binary.LittleEndian.Uint32(buf[4:8])
	pkt.instance = binary.LittleEndian.Uint32(buf[8:12])
	pkt.node = binary.LittleEndian.Uint32(buf[12:16])
	pkt.port = binary.LittleEndian.Uint32(buf[16:20])
	return pkt, true
}

// version and instance are packed into a single 32-bit kernel word:
// version in the low 8 bits, instance in the high 24.
func splitInstance(word uint32) (version, instance uint32) {
	return word & 0xFF, word >> 8
}

// encodeNewLookup builds the QRTR_TYPE_NEW_LOOKUP control packet sent once
// at Bus construction to register this process as a listener.
func encodeNewLookup() []byte {
	buf := make([]byte, ctrlPacketSize)
	binary.LittleEndian.PutUint32(buf[0:4], qrtrTypeNewLookup)
	return buf
}
