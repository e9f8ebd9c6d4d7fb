// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package passkey

import "encoding/json"

// Transport is an authenticator transport hint.
type Transport string

// Recognized transports, per the WebAuthn enumeration.
const (
	TransportUSB      Transport = "usb"
	TransportNFC      Transport = "nfc"
	TransportBLE      Transport = "ble"
	TransportInternal Transport = "internal"
	TransportHybrid   Transport = "hybrid"
)

// Transports is a set of transport hints. Clients and stored records are
// inconsistent about the shape of this field: a single string, a list of
// strings, null, or junk values all occur in the wild. Decoding tolerates
// all of them, dropping unrecognized values rather than failing the
// ceremony.
type Transports []Transport

var validTransports = map[Transport]bool{
	TransportUSB:      true,
	TransportNFC:      true,
	TransportBLE:      true,
	TransportInternal: true,
	TransportHybrid:   true,
}

// ParseTransports filters raw transport strings down to the recognized set.
// Unknown values are dropped. An empty result is returned as nil.
func ParseTransports(raw []string) Transports {
	var out Transports
	for _, s := range raw {
		if t := Transport(s); validTransports[t] {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the transports as plain strings.
func (t Transports) Strings() []string {
	if len(t) == 0 {
		return nil
	}
	out := make([]string, len(t))
	for i, v := range t {
		out[i] = string(v)
	}
	return out
}

// Contains reports whether the set includes the given transport.
func (t Transports) Contains(transport Transport) bool {
	for _, v := range t {
		if v == transport {
			return true
		}
	}
	return false
}

// UnmarshalJSON accepts a string, a list of strings, or null, dropping
// values outside the recognized enumeration. Any other shape decodes to an
// empty set rather than an error.
func (t *Transports) UnmarshalJSON(data []byte) error {
	*t = nil

	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = ParseTransports(list)
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*t = ParseTransports([]string{single})
		return nil
	}

	// Mixed or unexpected shape: salvage any string elements.
	var mixed []json.RawMessage
	if err := json.Unmarshal(data, &mixed); err == nil {
		var raw []string
		for _, elem := range mixed {
			var s string
			if err := json.Unmarshal(elem, &s); err == nil {
				raw = append(raw, s)
			}
		}
		*t = ParseTransports(raw)
	}
	return nil
}
