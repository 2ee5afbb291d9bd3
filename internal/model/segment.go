package model

import (
	"fmt"
	"strconv"
)

// Role is the trading role of an authenticated actor
type Role string

const (
	RoleRetailer Role = "Retailer"
	RoleCustomer Role = "Customer"
)

// ParseRole accepts the two known roles
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleRetailer, RoleCustomer:
		return Role(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Segment returns the market segment items listed by this role belong to.
func (r Role) Segment() Segment {
	if r == RoleRetailer {
		return SegmentRetail
	}
	return SegmentCustomer
}

// Segment classifies which side of the two-sided market an item belongs to.
// The numeric values are persisted and exposed in JSON.
type Segment int

const (
	SegmentRetail   Segment = 0
	SegmentCustomer Segment = 1
)

// Opposite returns the other side of the market.
func (s Segment) Opposite() Segment {
	if s == SegmentRetail {
		return SegmentCustomer
	}
	return SegmentRetail
}

func (s Segment) Valid() bool {
	return s == SegmentRetail || s == SegmentCustomer
}

func (s Segment) String() string {
	switch s {
	case SegmentRetail:
		return "retail"
	case SegmentCustomer:
		return "customer"
	default:
		return "segment(" + strconv.Itoa(int(s)) + ")"
	}
}
