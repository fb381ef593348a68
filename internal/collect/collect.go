package collect

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/browser"
	"github.com/AlfredBerg/rod-jobs/internal/js"
	"github.com/AlfredBerg/rod-jobs/internal/metrics"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"github.com/AlfredBerg/rod-jobs/internal/redirect"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Collect scrapes listings for the job's term until Target listings were written or the
// result list stops growing, and returns how many were written. A listing that can't be
// read is logged and skipped. The session and the output are closed before returning.
func (j *Job) Collect(ctx context.Context) (written int, err error) {
	log := j.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("term", j.Term))
	sel := j.Selectors
	if sel == (Selectors{}) {
		sel = BingSelectors
	}

	log.Info("starting scrape")

	session, err := j.NewSession()
	if err != nil {
		return 0, fmt.Errorf("opening browser session: %w", err)
	}
	defer func() {
		err = multierr.Append(err, session.Close())
	}()

	target := SearchURL(j.Host, j.Term)
	if err := session.Navigate(target); err != nil {
		return 0, fmt.Errorf("navigating to %s: %w", target, err)
	}

	path := filepath.Join(j.OutputDir, FileName(j.Term))
	out, err := j.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening output %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	visited := make(map[string]struct{})
	// stalled is set when the last scan found nothing new although the element count
	// differs from the visited count, which happens when ids repeat in the page
	stalled := false

	for written < j.Target {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		elements, err := session.Elements(sel.Listing)
		if err != nil {
			return written, fmt.Errorf("finding listings: %w", err)
		}
		log.Debug("found listing elements", zap.Int("count", len(elements)), zap.Int("visited", len(visited)))

		scrolled := false
		if len(elements) == len(visited) || stalled {
			log.Info("scrolling to load more jobs")
			grew, err := j.scroll(ctx, session, log)
			if err != nil {
				return written, err
			}
			if !grew {
				log.Info("reached the end of the job list")
				break
			}
			scrolled = true
		}

		// the previous panel only matters within one scan
		var panel browser.Element
		progressed := false
		for _, el := range elements {
			if written >= j.Target {
				break
			}
			if err := ctx.Err(); err != nil {
				return written, err
			}

			id, _, err := el.Attribute(sel.IDAttr)
			if err != nil {
				return written, fmt.Errorf("reading listing id: %w", err)
			}
			if _, ok := visited[id]; ok {
				continue
			}
			progressed = true

			seq := written + 1
			log.Info("processing job", zap.Int("seq", seq), zap.String("job_id", id))

			var l outputHandlers.Listing
			l, panel, err = j.read(session, sel, el, panel)
			// failed listings are visited as well so a broken element is never retried
			visited[id] = struct{}{}
			if err != nil {
				log.Warn("error processing a job, skipping", zap.String("job_id", id), zap.Error(err))
				metrics.RecordListing(j.Term, false)
				continue
			}

			l.Seq = seq
			if err := out.HandleListing(l); err != nil {
				return written, fmt.Errorf("writing listing %d: %w", seq, err)
			}
			written++
			metrics.RecordListing(j.Term, true)
			log.Info("scraped", zap.Int("seq", seq), zap.String("name", l.Name))
		}
		stalled = !scrolled && !progressed
	}

	log.Info("scraping complete", zap.Int("written", written), zap.String("file", path))
	return written, nil
}

// read opens the detail panel of el and extracts the listing from it. The returned panel
// is the one now shown, or prev when the new one never appeared.
func (j *Job) read(session browser.Session, sel Selectors, el, prev browser.Element) (outputHandlers.Listing, browser.Element, error) {
	var l outputHandlers.Listing

	if err := el.Click(); err != nil {
		return l, prev, fmt.Errorf("clicking listing: %w", err)
	}
	if prev != nil {
		if err := session.WaitStale(prev); err != nil {
			return l, prev, err
		}
	}

	panel, err := session.WaitVisible(sel.Panel)
	if err != nil {
		return l, prev, fmt.Errorf("waiting for detail panel: %w", err)
	}

	title, err := session.WaitVisible(sel.Title)
	if err != nil {
		return l, panel, fmt.Errorf("waiting for title: %w", err)
	}
	if l.Name, err = title.Text(); err != nil {
		return l, panel, fmt.Errorf("reading title: %w", err)
	}

	l.Description = outputHandlers.NoDescription
	desc, ok, err := session.Find(sel.Description)
	if err != nil {
		return l, panel, fmt.Errorf("finding description: %w", err)
	}
	if ok {
		text, err := desc.Text()
		if err != nil {
			return l, panel, fmt.Errorf("reading description: %w", err)
		}
		l.Description = strings.Join(strings.Fields(text), " ")
	}

	l.ApplyLink = outputHandlers.NoApplyLink
	link, ok, err := session.Find(sel.ApplyLink)
	if err != nil {
		return l, panel, fmt.Errorf("finding apply link: %w", err)
	}
	if ok {
		href, ok, err := link.Property("href")
		if err != nil {
			return l, panel, fmt.Errorf("reading apply link: %w", err)
		}
		if ok {
			l.ApplyLink = redirect.RealURL(href)
		}
	}

	return l, panel, nil
}

var errHeight = errors.New("page height is not a number")

// scroll scrolls to the bottom of the page and reports whether the page grew within the
// settle interval.
func (j *Job) scroll(ctx context.Context, session browser.Session, log *zap.Logger) (bool, error) {
	before, err := height(session)
	if err != nil {
		return false, fmt.Errorf("reading page height: %w", err)
	}
	if _, err := session.Eval(js.SCROLL_TO_BOTTOM); err != nil {
		return false, fmt.Errorf("scrolling: %w", err)
	}
	metrics.RecordScroll(j.Term)

	t := time.NewTimer(j.Settle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-t.C:
	}

	after, err := height(session)
	if err != nil {
		log.Info("no new jobs loaded", zap.Error(err))
		return false, nil
	}
	return after != before, nil
}

func height(session browser.Session) (int, error) {
	v, err := session.Eval(js.SCROLL_HEIGHT)
	if err != nil {
		return 0, err
	}
	n, ok := v.Val().(float64)
	if !ok {
		return 0, errHeight
	}
	return int(n), nil
}
