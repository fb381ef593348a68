package outputHandlers

import (
	"strconv"

	"go.uber.org/multierr"
)

// Header is the first row of every output file.
var Header = []string{"S.No", "Name", "Description", "Apply Link"}

const (
	NoDescription = "Description not found."
	NoApplyLink   = "Apply link not found."
)

// Listing is one scraped job. Seq is 1-based and restarts for every search term.
type Listing struct {
	Seq         int
	Name        string
	Description string
	ApplyLink   string
}

func (l Listing) Row() []string {
	return []string{strconv.Itoa(l.Seq), l.Name, l.Description, l.ApplyLink}
}

// Handler receives the listings of one search term in discovery order.
type Handler interface {
	HandleListing(l Listing) error
	Close() error
}

// Multi fans every listing out to all handlers.
type Multi []Handler

func (m Multi) HandleListing(l Listing) error {
	for _, h := range m {
		if err := h.HandleListing(l); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every handler, even when some of them fail.
func (m Multi) Close() error {
	var err error
	for _, h := range m {
		err = multierr.Append(err, h.Close())
	}
	return err
}
