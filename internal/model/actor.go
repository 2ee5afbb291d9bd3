package model

// Actor is the authenticated caller of a catalog operation
type Actor struct {
	ID      uint   `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
}

func (a Actor) Segment() Segment {
	return a.Role.Segment()
}
