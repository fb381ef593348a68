package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/js"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type Options struct {
	// Headless false shows the browser window, you can also use flag "-rod=show"
	Headless bool
	// Timeout bounds every navigation and wait
	Timeout time.Duration
	// Bin is the browser executable, empty lets the launcher find or download one
	Bin string
	// Trace shows verbose debug information for each action executed
	Trace  bool
	Logger *zap.Logger
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
	// stop ends the dialog and popup handler
	stop context.CancelFunc
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

// Launch starts a maximized browser and opens the tab the session drives.
func Launch(opts Options) (Session, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}

	l := launcher.New().
		Headless(opts.Headless).
		Set("start-maximized").
		Set("window-size", "1920,1080")
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		Trace(opts.Trace)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}

	//Don't download files in the browser, e.g. pdf files
	_ = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: browser.BrowserContextID,
	}.Call(browser)

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		err = multierr.Append(fmt.Errorf("opening page: %w", err), browser.Close())
		l.Cleanup()
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	//Avoid alerts and close tabs
	ctx, stop := context.WithCancel(context.Background())
	events := page.Context(ctx)
	go events.EachEvent(func(e *proto.PageJavascriptDialogOpening) {
		_ = proto.PageHandleJavaScriptDialog{Accept: false, PromptText: ""}.Call(page)
	},
		func(e *proto.PageWindowOpen) {
			log.Debug("new window opened, trying to close it", zap.String("url", e.URL))
			time.Sleep(time.Millisecond * 500)
			closePopups(browser, page, e.URL, log)
		},
	)()

	return &rodSession{launcher: l, browser: browser, page: page, timeout: opts.Timeout, stop: stop}, nil
}

// closePopups closes every tab showing url except the one the session drives.
func closePopups(browser *rod.Browser, keep *rod.Page, url string, log *zap.Logger) {
	pages, err := browser.Pages()
	if err != nil {
		log.Warn("failed getting pages in tab closer", zap.Error(err))
		return
	}
	for _, page := range pages {
		if page.TargetID == keep.TargetID {
			continue
		}
		info, err := page.Info()
		if err != nil {
			log.Warn("failed getting page info in tab closer", zap.Error(err))
			return
		}
		if info.URL == url {
			if err := page.Close(); err != nil {
				log.Warn("failed closing page in tab closer", zap.Error(err))
				return
			}
		}
	}
}

func (s *rodSession) wrap(el *rod.Element) *rodElement {
	// elements found through a timed page share its context, detach them from it
	return &rodElement{el: el.Context(s.page.GetContext()), timeout: s.timeout}
}

func (s *rodSession) Navigate(url string) error {
	page := s.page.Timeout(s.timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (s *rodSession) Elements(selector string) ([]Element, error) {
	elements, err := s.page.Elements(selector)
	if err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(elements))
	for _, el := range elements {
		out = append(out, s.wrap(el))
	}
	return out, nil
}

func (s *rodSession) Find(selector string) (Element, bool, error) {
	has, el, err := s.page.Has(selector)
	if err != nil || !has {
		return nil, false, err
	}
	return s.wrap(el), true, nil
}

func (s *rodSession) WaitVisible(selector string) (Element, error) {
	page := s.page.Timeout(s.timeout)
	defer page.CancelTimeout()

	el, err := page.Element(selector)
	if err != nil {
		return nil, fmt.Errorf("waiting for %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return nil, fmt.Errorf("waiting for %s to be visible: %w", selector, err)
	}
	return s.wrap(el), nil
}

func (s *rodSession) WaitStale(el Element) error {
	re, ok := el.(*rodElement)
	if !ok {
		return ErrForeignElement
	}

	timed := re.el.Timeout(s.timeout)
	defer timed.CancelTimeout()

	return staleness(timed.Wait(rod.Eval(js.IS_STALE)))
}

// staleness maps the result of waiting for a node to detach. Only running out of time
// counts as a failure, the remote object can't be resolved anymore once the node was
// garbage collected.
func staleness(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("waiting for the previous panel to go stale: %w", err)
	}
	return nil
}

func (s *rodSession) Eval(script string) (gson.JSON, error) {
	page := s.page.Timeout(s.timeout)
	defer page.CancelTimeout()

	res, err := page.Eval(script)
	if err != nil {
		return gson.New(nil), err
	}
	return res.Value, nil
}

func (s *rodSession) Close() error {
	s.stop()
	err := s.browser.Close()
	s.launcher.Cleanup()
	return err
}

func (e *rodElement) Attribute(name string) (string, bool, error) {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return "", false, err
	}
	return *v, true, nil
}

func (e *rodElement) Property(name string) (string, bool, error) {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	v, err := el.Property(name)
	if err != nil || v.Nil() {
		return "", false, err
	}
	return v.Str(), true, nil
}

func (e *rodElement) Text() (string, error) {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	return el.Text()
}

func (e *rodElement) Click() error {
	el := e.el.Timeout(e.timeout)
	defer el.CancelTimeout()

	_, err := el.Eval(js.CLICK)
	return err
}
