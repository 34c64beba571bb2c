package core

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusOpen: {QuoteStatusSent},
	QuoteStatusSent: {QuoteStatusAccepted, QuoteStatusRejected},
}

func (s QuoteStatus) Valid() bool {
	switch s {
	case QuoteStatusOpen, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusRejected:
		return true
	default:
		return false
	}
}

func (s QuoteStatus) Terminal() bool {
	return s == QuoteStatusAccepted || s == QuoteStatusRejected
}

// CanTransition reports whether the quote state machine allows from -> to.
func CanTransition(from QuoteStatus, to QuoteStatus) bool {
	for _, candidate := range quoteTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
