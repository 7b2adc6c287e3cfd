package protocol

import (
	"bytes"
	"encoding/json"
)

// DiscoveryVersion is the current discovery protocol version.
const DiscoveryVersion = 1

// discoveryMagic prefixes every discovery request datagram.
var discoveryMagic = []byte("BEACON")

// DiscoveryRequest builds a "where are you" datagram.
func DiscoveryRequest() []byte {
	return append(append([]byte{}, discoveryMagic...), DiscoveryVersion)
}

// ParseDiscoveryRequest validates a datagram and extracts its version.
// Malformed datagrams return ok=false and must be ignored silently.
func ParseDiscoveryRequest(datagram []byte) (version byte, ok bool) {
	if len(datagram) != len(discoveryMagic)+1 {
		return 0, false
	}
	if !bytes.Equal(datagram[:len(discoveryMagic)], discoveryMagic) {
		return 0, false
	}
	return datagram[len(discoveryMagic)], true
}

// DiscoveryReply is the unicast response to a discovery request.
type DiscoveryReply struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Version int    `json:"version"`
}

// EncodeDiscoveryReply marshals a reply datagram.
func EncodeDiscoveryReply(reply DiscoveryReply) ([]byte, error) {
	return json.Marshal(reply)
}

// DecodeDiscoveryReply unmarshals a reply datagram.
func DecodeDiscoveryReply(datagram []byte) (DiscoveryReply, error) {
	var reply DiscoveryReply
	err := json.Unmarshal(datagram, &reply)
	return reply, err
}
