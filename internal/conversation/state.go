package conversation

import (
	"fmt"
	"slices"
)

// State is a conversation phase.
type State string

const (
	Greeting        State = "greeting"
	InfoGathering   State = "info_gathering"
	ProductInquiry  State = "product_inquiry"
	Recommendation  State = "recommendation"
	Negotiation     State = "negotiation"
	OrderProcessing State = "order_processing"
	AfterSales      State = "after_sales"
	Closing         State = "closing"
)

// Initial is the state of a fresh session.
const Initial = Greeting

var adjacency = map[State][]State{
	Greeting:        {InfoGathering, ProductInquiry},
	InfoGathering:   {Recommendation, ProductInquiry},
	ProductInquiry:  {Recommendation, Negotiation},
	Recommendation:  {Negotiation, OrderProcessing},
	Negotiation:     {OrderProcessing, Recommendation},
	OrderProcessing: {AfterSales, Closing},
	AfterSales:      {Closing, InfoGathering},
	Closing:         {Greeting},
}

// States lists every state in flow order.
func States() []State {
	return []State{Greeting, InfoGathering, ProductInquiry, Recommendation,
		Negotiation, OrderProcessing, AfterSales, Closing}
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	_, ok := adjacency[s]
	return ok
}

// ParseState converts a stored state name.
func ParseState(s string) (State, error) {
	st := State(s)
	if !st.Valid() {
		return "", fmt.Errorf("parse state: unknown state %q", s)
	}
	return st, nil
}

// Successors returns a copy of the adjacency list for s.
func Successors(s State) []State {
	return slices.Clone(adjacency[s])
}

// Adjacent reports whether to directly follows from in the nominal flow.
// Overrides in Next are not bound by it.
func Adjacent(from, to State) bool {
	return slices.Contains(adjacency[from], to)
}
