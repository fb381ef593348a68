package browser

import (
	"errors"

	"github.com/ysmood/gson"
)

var ErrForeignElement = errors.New("element does not belong to this session")

// Element is a handle to a node rendered in the page.
type Element interface {
	// Attribute returns the attribute value, ok is false when the attribute is not set.
	Attribute(name string) (value string, ok bool, err error)
	// Property returns the DOM property, so a link's href comes back resolved against
	// the page. ok is false when the property is null or undefined.
	Property(name string) (value string, ok bool, err error)
	Text() (string, error)
	Click() error
}

// Session is the part of a browser tab the collector drives. Waits are bounded by the
// timeout the session was opened with.
type Session interface {
	Navigate(url string) error
	// Elements returns every element currently matching selector without waiting.
	Elements(selector string) ([]Element, error)
	// Find returns the first element matching selector without waiting, ok is false
	// when nothing matches.
	Find(selector string) (el Element, ok bool, err error)
	WaitVisible(selector string) (Element, error)
	WaitStale(el Element) error
	Eval(js string) (gson.JSON, error)
	Close() error
}
