package model

// Requester is the caller identity supplied by the authentication layer.
type Requester struct {
	UserID int64
	Admin  bool
}

// Anonymous reports whether no user is attached.
func (r Requester) Anonymous() bool { return r.UserID <= 0 }
