package models

// PhoneStatus classifies the result of a phone-reveal attempt. The
// distinction matters downstream: Hidden is terminal, Error is retryable.
type PhoneStatus int

const (
	// PhoneHidden means no reveal control was found or every extraction
	// strategy came up empty. Not worth retrying.
	PhoneHidden PhoneStatus = iota
	// PhoneRevealed means a number was extracted.
	PhoneRevealed
	// PhoneError means the page or session itself failed before the
	// reveal could run. A retry might help.
	PhoneError
)

// PhoneOutcome is the terminal state of the phone-reveal state machine.
type PhoneOutcome struct {
	Status PhoneStatus
	Number string
}

// Revealed builds a successful outcome carrying the extracted number.
func Revealed(number string) PhoneOutcome {
	return PhoneOutcome{Status: PhoneRevealed, Number: number}
}

// Hidden is the terminal "no number found" outcome.
func Hidden() PhoneOutcome { return PhoneOutcome{Status: PhoneHidden} }

// PhoneFailed is the terminal "page failed" outcome.
func PhoneFailed() PhoneOutcome { return PhoneOutcome{Status: PhoneError} }

// String renders the outcome the way it is persisted: the number when
// revealed, otherwise a status sentinel.
func (o PhoneOutcome) String() string {
	switch o.Status {
	case PhoneRevealed:
		return o.Number
	case PhoneError:
		return "Error"
	default:
		return "Hidden"
	}
}

// AdRecord holds everything harvested from a single listing page.
// Immutable after construction; persisted immediately, one row per ad.
type AdRecord struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Price string `json:"price"`

	Phone PhoneOutcome `json:"-"`

	// Attributes is the merged details-table / key-info-panel mapping,
	// keyed by the visible label text.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ListingRef is a discovered listing URL with its derived numeric id.
type ListingRef struct {
	ID  string
	URL string
}
