package network

import "fmt"

// Type enumerates the kinds of OS network paths a device can be attached to.
type Type int

const (
	TypeUnknown Type = iota
	TypeCellular
	TypeWiFi
	TypeEthernet
)

func (t Type) String() string {
	switch t {
	case TypeCellular:
		return "cellular"
	case TypeWiFi:
		return "wifi"
	case TypeEthernet:
		return "ethernet"
	default:
		return "unknown"
	}
}

// NetworkInfo identifies one OS network path. It is an immutable value:
// two NetworkInfo are the same network iff they are equal.
type NetworkInfo struct {
	ID   int64
	Type Type
}

func (n NetworkInfo) String() string {
	return fmt.Sprintf("%s(%d)", n.Type, n.ID)
}

// Equal reports whether other describes the same network path.
// A nil other never equals a concrete NetworkInfo.
func (n NetworkInfo) Equal(other *NetworkInfo) bool {
	return other != nil && n == *other
}
