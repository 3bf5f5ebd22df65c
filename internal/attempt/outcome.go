package attempt

import "github.com/frolic/frolicsim/internal/platform"

// Kind is the terminal state of one attempt.
type Kind int

const (
	Rejected Kind = iota
	Unresolved
	Won
	Lost
)

func (k Kind) String() string {
	switch k {
	case Rejected:
		return "rejected"
	case Unresolved:
		return "unresolved"
	case Won:
		return "won"
	case Lost:
		return "lost"
	default:
		return "unknown"
	}
}

// Outcome is what an Executor returns for every attempt. Reason and Benign
// are set only for Rejected; Coupons only for Won.
type Outcome struct {
	Kind    Kind
	PlayID  string
	Reason  string
	Benign  bool
	Coupons []platform.Coupon
}

func rejected(reason string, benign bool) Outcome {
	return Outcome{Kind: Rejected, Reason: reason, Benign: benign}
}

func unresolved(playID string) Outcome {
	return Outcome{Kind: Unresolved, PlayID: playID}
}

func settled(playID string, res platform.PlayResult) Outcome {
	if res.Winner {
		return Outcome{Kind: Won, PlayID: playID, Coupons: res.Coupons}
	}
	return Outcome{Kind: Lost, PlayID: playID}
}
