package model

// OptIn is the tri-state consent flag on a lead. It leaves Undecided at most once.
type OptIn int

const (
	Undecided OptIn = iota
	OptedIn
	OptedOut
)

func (o OptIn) Decided() bool {
	return o != Undecided
}

func (o OptIn) String() string {
	switch o {
	case OptedIn:
		return "opted_in"
	case OptedOut:
		return "opted_out"
	default:
		return "undecided"
	}
}

// OptInFromNullable maps the nullable opt_in column onto OptIn.
func OptInFromNullable(v *bool) OptIn {
	switch {
	case v == nil:
		return Undecided
	case *v:
		return OptedIn
	default:
		return OptedOut
	}
}

// Nullable is the inverse of OptInFromNullable.
func (o OptIn) Nullable() *bool {
	switch o {
	case OptedIn:
		v := true
		return &v
	case OptedOut:
		v := false
		return &v
	default:
		return nil
	}
}

type LeadMessageStatus string

const (
	LeadQueued LeadMessageStatus = "queued"
	LeadSent   LeadMessageStatus = "sent"
)

type Lead struct {
	ID            string
	OrgID         string
	Phone         string
	OptIn         OptIn
	MessageStatus LeadMessageStatus
}
