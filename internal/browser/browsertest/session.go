// Package browsertest provides an in-memory browser.Session serving a fake infinite
// scroll job board.
package browsertest

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/AlfredBerg/rod-jobs/internal/browser"
	"github.com/AlfredBerg/rod-jobs/internal/js"
	"github.com/ysmood/gson"
)

var ErrTimeout = errors.New("browsertest: wait timed out")

// Listing is one job card and the detail panel it opens.
type Listing struct {
	ID          string
	Title       string
	Description string
	ApplyHref   string

	// NoID renders the card without an id attribute
	NoID bool
	// FailClick makes clicking the card fail
	FailClick bool
	// NoPanel makes the click open nothing
	NoPanel bool
	// StickyPanel keeps the panel attached after the next card is clicked
	StickyPanel bool
}

// Selectors the fake page answers to, the defaults match the Bing jobs page.
type Selectors struct {
	Listing     string
	IDAttr      string
	Panel       string
	Title       string
	Description string
	ApplyLink   string
}

var DefaultSelectors = Selectors{
	Listing:     ".jb_jlc",
	IDAttr:      "data-jobid",
	Panel:       ".jb_l2_jbpnl",
	Title:       ".jbpnl_title",
	Description: ".jbpnl_description_blk",
	ApplyLink:   "#jb_Apply a",
}

// Session renders PageSize listings up front and PageSize more for every scroll to
// the bottom.
type Session struct {
	Selectors Selectors
	Listings  []Listing
	PageSize  int

	// ElementsErr fails every Elements call
	ElementsErr error
	// NavigateErr fails Navigate
	NavigateErr error
	// CloseErr is returned by Close
	CloseErr error

	Navigated []string
	Clicked   []string
	Scrolls   int
	Closed    int

	rendered int
	// open is the listing whose panel is shown, -1 for none
	open int
	// panels counts opened panels, a panel element stays fresh while it is the latest
	panels int
	// sticky is the generation of a panel that refuses to go stale
	sticky int
}

// New returns a session rendering every listing at once.
func New(listings ...Listing) *Session {
	return &Session{
		Selectors: DefaultSelectors,
		Listings:  listings,
		PageSize:  len(listings),
		open:      -1,
		sticky:    -1,
	}
}

var _ browser.Session = (*Session)(nil)

type kind int

const (
	card kind = iota
	panel
	title
	description
	applyLink
)

type element struct {
	s     *Session
	kind  kind
	index int
	gen   int
}

func (s *Session) Navigate(target string) error {
	s.Navigated = append(s.Navigated, target)
	if s.NavigateErr != nil {
		return s.NavigateErr
	}
	s.rendered = min(s.PageSize, len(s.Listings))
	return nil
}

func (s *Session) Elements(selector string) ([]browser.Element, error) {
	if s.ElementsErr != nil {
		return nil, s.ElementsErr
	}
	if selector != s.Selectors.Listing {
		el, ok, err := s.Find(selector)
		if err != nil || !ok {
			return nil, err
		}
		return []browser.Element{el}, nil
	}

	out := make([]browser.Element, 0, s.rendered)
	for i := 0; i < s.rendered; i++ {
		out = append(out, &element{s: s, kind: card, index: i})
	}
	return out, nil
}

func (s *Session) current() (Listing, bool) {
	if s.open < 0 || s.Listings[s.open].NoPanel {
		return Listing{}, false
	}
	return s.Listings[s.open], true
}

func (s *Session) Find(selector string) (browser.Element, bool, error) {
	l, ok := s.current()
	if !ok {
		return nil, false, nil
	}
	switch selector {
	case s.Selectors.Panel:
		return &element{s: s, kind: panel, index: s.open, gen: s.panels}, true, nil
	case s.Selectors.Title:
		return &element{s: s, kind: title, index: s.open}, l.Title != "", nil
	case s.Selectors.Description:
		return &element{s: s, kind: description, index: s.open}, l.Description != "", nil
	case s.Selectors.ApplyLink:
		return &element{s: s, kind: applyLink, index: s.open}, l.ApplyHref != "", nil
	}
	return nil, false, nil
}

func (s *Session) WaitVisible(selector string) (browser.Element, error) {
	el, ok, err := s.Find(selector)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", selector, ErrTimeout)
	}
	return el, nil
}

func (s *Session) WaitStale(el browser.Element) error {
	e, ok := el.(*element)
	if !ok || e.s != s {
		return browser.ErrForeignElement
	}
	if e.kind == panel && (e.gen == s.panels || e.gen == s.sticky) {
		return fmt.Errorf("panel still attached: %w", ErrTimeout)
	}
	return nil
}

func (s *Session) Height() int {
	return 200 + 100*s.rendered
}

func (s *Session) Eval(script string) (gson.JSON, error) {
	switch script {
	case js.SCROLL_HEIGHT:
		return gson.New(float64(s.Height())), nil
	case js.SCROLL_TO_BOTTOM:
		s.Scrolls++
		s.rendered = min(s.rendered+s.PageSize, len(s.Listings))
		return gson.New(nil), nil
	}
	return gson.New(nil), fmt.Errorf("browsertest: unknown script %q", script)
}

func (s *Session) Close() error {
	s.Closed++
	return s.CloseErr
}

func (e *element) listing() Listing {
	return e.s.Listings[e.index]
}

func (e *element) Attribute(name string) (string, bool, error) {
	l := e.listing()
	switch {
	case e.kind == card && name == e.s.Selectors.IDAttr && !l.NoID:
		return l.ID, true, nil
	case e.kind == applyLink && name == "href":
		return l.ApplyHref, true, nil
	}
	return "", false, nil
}

// Property resolves href against the last navigated URL like a browser does.
func (e *element) Property(name string) (string, bool, error) {
	l := e.listing()
	if e.kind != applyLink || name != "href" {
		return "", false, nil
	}
	if len(e.s.Navigated) == 0 {
		return l.ApplyHref, true, nil
	}
	base, err := url.Parse(e.s.Navigated[len(e.s.Navigated)-1])
	if err != nil {
		return "", false, err
	}
	ref, err := url.Parse(l.ApplyHref)
	if err != nil {
		return "", false, err
	}
	return base.ResolveReference(ref).String(), true, nil
}

func (e *element) Text() (string, error) {
	l := e.listing()
	switch e.kind {
	case title:
		return l.Title, nil
	case description:
		return l.Description, nil
	}
	return "", nil
}

func (e *element) Click() error {
	l := e.listing()
	e.s.Clicked = append(e.s.Clicked, l.ID)
	if l.FailClick {
		return errors.New("browsertest: element is not clickable")
	}
	if e.kind != card {
		return nil
	}
	if prev, ok := e.s.current(); ok && prev.StickyPanel {
		e.s.sticky = e.s.panels
	}
	e.s.open = e.index
	e.s.panels++
	return nil
}
