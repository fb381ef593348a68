package collect

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/browser"
	"github.com/AlfredBerg/rod-jobs/internal/browser/browsertest"
	"github.com/AlfredBerg/rod-jobs/internal/js"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers/csvfile"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"
	"go.uber.org/zap/zaptest"
)

type harness struct {
	fs      afero.Fs
	session *browsertest.Session
	job     *Job
	paths   []string
}

func newHarness(t *testing.T, term string, target int, session *browsertest.Session) *harness {
	h := &harness{fs: afero.NewMemMapFs(), session: session}
	h.job = &Job{
		Term:      term,
		Target:    target,
		Host:      "www.bing.com",
		OutputDir: "out",
		NewSession: func() (browser.Session, error) {
			return h.session, nil
		},
		Open: func(path string) (outputHandlers.Handler, error) {
			h.paths = append(h.paths, path)
			return csvfile.New(h.fs, path)
		},
		Logger: zaptest.NewLogger(t),
	}
	require.NoError(t, h.fs.MkdirAll("out", 0o755))
	return h
}

func (h *harness) rows(t *testing.T) [][]string {
	t.Helper()
	require.Len(t, h.paths, 1)
	data, err := afero.ReadFile(h.fs, h.paths[0])
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, outputHandlers.Header, records[0])
	return records[1:]
}

func listings(n int) []browsertest.Listing {
	out := make([]browsertest.Listing, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, browsertest.Listing{
			ID:          fmt.Sprintf("J%d", i),
			Title:       fmt.Sprintf("Job %d", i),
			Description: fmt.Sprintf("description %d", i),
			ApplyHref:   fmt.Sprintf("https://example.com/%d", i),
		})
	}
	return out
}

func TestCollect_DataAnalyst(t *testing.T) {
	session := browsertest.New(browsertest.Listing{
		ID:          "J1",
		Title:       "Data Analyst",
		Description: "  build   reports ",
		ApplyHref:   "https://bing.com/ck/a?u=a1aHR0cHM6Ly9leGFtcGxlLmNvbQ==",
	})
	h := newHarness(t, "Data Analyst", 1, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	assert.Equal(t, []string{"https://www.bing.com/jobs?q=Data%20Analyst&form=JOBL2S"}, session.Navigated)
	assert.Equal(t, []string{"out/data_analyst_jobs.csv"}, h.paths)

	data, err := afero.ReadFile(h.fs, "out/data_analyst_jobs.csv")
	require.NoError(t, err)
	assert.Equal(t, "S.No,Name,Description,Apply Link\r\n1,Data Analyst,build reports,https://example.com\r\n", string(data))
	assert.Equal(t, 1, session.Closed)
}

func TestCollect_TestJob(t *testing.T) {
	session := browsertest.New()
	h := newHarness(t, "Test Job", 1, session)
	h.job.OutputDir = ""

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Zero(t, written)

	assert.Equal(t, []string{"https://www.bing.com/jobs?q=Test%20Job&form=JOBL2S"}, session.Navigated)
	assert.Equal(t, []string{"test_job_jobs.csv"}, h.paths)
	assert.Equal(t, 1, session.Closed)
	assert.Empty(t, h.rows(t))
}

func TestCollect_StopsAtTarget(t *testing.T) {
	session := browsertest.New(listings(10)...)
	session.PageSize = 4
	h := newHarness(t, "Go Developer", 6, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, written)

	rows := h.rows(t)
	require.Len(t, rows, 6)
	for i, row := range rows {
		assert.Equal(t, []string{
			fmt.Sprint(i + 1),
			fmt.Sprintf("Job %d", i+1),
			fmt.Sprintf("description %d", i+1),
			fmt.Sprintf("https://example.com/%d", i+1),
		}, row)
	}
	assert.Equal(t, 1, session.Scrolls)
	assert.Equal(t, []string{"J1", "J2", "J3", "J4", "J5", "J6"}, session.Clicked)
}

func TestCollect_Exhausted(t *testing.T) {
	session := browsertest.New(listings(5)...)
	session.PageSize = 2
	h := newHarness(t, "Go Developer", 50, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, written)
	assert.Len(t, h.rows(t), 5)
	// two scrolls load the remaining listings, the third finds the page unchanged
	assert.Equal(t, 3, session.Scrolls)
	assert.Equal(t, 1, session.Closed)
}

func TestCollect_SkipsBrokenListings(t *testing.T) {
	ls := listings(6)
	ls[1].FailClick = true
	ls[2].NoPanel = true
	ls[4].Title = ""
	session := browsertest.New(ls...)
	h := newHarness(t, "Go Developer", 50, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	rows := h.rows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "Job 1"}, rows[0][:2])
	assert.Equal(t, []string{"2", "Job 4"}, rows[1][:2])
	assert.Equal(t, []string{"3", "Job 6"}, rows[2][:2])

	// every broken listing was tried exactly once
	assert.Equal(t, []string{"J1", "J2", "J3", "J4", "J5", "J6"}, session.Clicked)
}

func TestCollect_StalePanelFailsRestOfScan(t *testing.T) {
	ls := listings(4)
	ls[0].StickyPanel = true
	session := browsertest.New(ls...)
	session.PageSize = 2
	h := newHarness(t, "Go Developer", 50, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	// J2 waits on the panel of J1 which never detaches, the next scan starts over
	rows := h.rows(t)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"1", "Job 1"}, rows[0][:2])
	assert.Equal(t, []string{"2", "Job 3"}, rows[1][:2])
	assert.Equal(t, []string{"3", "Job 4"}, rows[2][:2])
}

func TestCollect_Placeholders(t *testing.T) {
	session := browsertest.New(browsertest.Listing{ID: "J1", Title: "Barista"})
	h := newHarness(t, "Barista", 1, session)

	_, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "Barista", "Description not found.", "Apply link not found."}}, h.rows(t))
}

func TestCollect_UndecodableLinkIsKept(t *testing.T) {
	href := "https://www.bing.com/ck/a?u=a1!!!"
	session := browsertest.New(browsertest.Listing{ID: "J1", Title: "Barista", ApplyHref: href})
	h := newHarness(t, "Barista", 1, session)

	_, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, href, h.rows(t)[0][3])
}

func TestCollect_RelativeApplyLinkIsResolved(t *testing.T) {
	session := browsertest.New(browsertest.Listing{ID: "J1", Title: "Barista", ApplyHref: "/jobs/apply?id=7"})
	h := newHarness(t, "Barista", 1, session)

	_, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://www.bing.com/jobs/apply?id=7", h.rows(t)[0][3])
}

func TestCollect_MissingIDAttribute(t *testing.T) {
	ls := listings(3)
	ls[0].NoID = true
	ls[1].NoID = true
	session := browsertest.New(ls...)
	h := newHarness(t, "Go Developer", 5, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	// cards without an id share the empty id, only the first of them is read
	assert.Equal(t, 2, written)
	assert.Equal(t, []string{"J1", "J3"}, session.Clicked)
	assert.Equal(t, 1, session.Scrolls)

	rows := h.rows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "Job 1", rows[0][1])
	assert.Equal(t, "Job 3", rows[1][1])
}

func TestCollect_DuplicateIDs(t *testing.T) {
	ls := listings(4)
	ls[2].ID = "J1"
	session := browsertest.New(ls...)
	h := newHarness(t, "Go Developer", 50, session)

	written, err := h.job.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	seen := map[string]bool{}
	for _, row := range h.rows(t) {
		assert.False(t, seen[row[1]], row[1])
		seen[row[1]] = true
	}
	assert.Equal(t, 1, session.Scrolls)
}

func TestCollect_NeverExceedsTarget(t *testing.T) {
	for _, target := range []int{1, 2, 3, 7} {
		session := browsertest.New(listings(5)...)
		session.PageSize = 2
		h := newHarness(t, "Go Developer", target, session)

		written, err := h.job.Collect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, min(target, 5), written)
		assert.Len(t, h.rows(t), min(target, 5))
	}
}

func TestCollect_ClosesOnError(t *testing.T) {
	boom := errors.New("devtools disconnected")
	session := browsertest.New(listings(2)...)
	session.ElementsErr = boom
	h := newHarness(t, "Go Developer", 5, session)

	_, err := h.job.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, session.Closed)

	// the output file was closed and holds the header only
	assert.Empty(t, h.rows(t))
}

func TestCollect_MissingIDIsFatal(t *testing.T) {
	session := browsertest.New(listings(2)...)
	h := newHarness(t, "Go Developer", 5, session)
	h.job.Open = func(path string) (outputHandlers.Handler, error) {
		return &failingHandler{}, nil
	}

	// an element whose attribute can't be read ends the term
	h.job.NewSession = func() (browser.Session, error) {
		return &brokenIDSession{Session: session}, nil
	}

	_, err := h.job.Collect(context.Background())
	assert.ErrorIs(t, err, errNoAttribute)
	assert.Equal(t, 1, session.Closed)
}

func TestCollect_NavigateError(t *testing.T) {
	session := browsertest.New(listings(1)...)
	session.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	session.CloseErr = errors.New("already closed")
	h := newHarness(t, "Go Developer", 5, session)

	_, err := h.job.Collect(context.Background())
	assert.ErrorIs(t, err, session.NavigateErr)
	assert.ErrorIs(t, err, session.CloseErr)
	assert.Empty(t, h.paths)
}

func TestCollect_OpenError(t *testing.T) {
	session := browsertest.New(listings(1)...)
	h := newHarness(t, "Go Developer", 5, session)
	h.fs = afero.NewReadOnlyFs(afero.NewMemMapFs())

	_, err := h.job.Collect(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, session.Closed)
}

func TestCollect_WriteErrorIsFatal(t *testing.T) {
	session := browsertest.New(listings(3)...)
	h := newHarness(t, "Go Developer", 5, session)
	handler := &failingHandler{err: errors.New("disk full")}
	h.job.Open = func(path string) (outputHandlers.Handler, error) {
		return handler, nil
	}

	written, err := h.job.Collect(context.Background())
	assert.ErrorIs(t, err, handler.err)
	assert.Zero(t, written)
	assert.True(t, handler.closed)
	assert.Equal(t, 1, session.Closed)
}

func TestCollect_SessionError(t *testing.T) {
	boom := errors.New("no browser")
	h := newHarness(t, "Go Developer", 5, nil)
	h.job.NewSession = func() (browser.Session, error) {
		return nil, boom
	}

	_, err := h.job.Collect(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, h.paths)
}

func TestCollect_Canceled(t *testing.T) {
	session := browsertest.New(listings(3)...)
	h := newHarness(t, "Go Developer", 5, session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := h.job.Collect(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, written)
	assert.Equal(t, 1, session.Closed)
}

// cancelOnScroll cancels the run as soon as the collector scrolls
type cancelOnScroll struct {
	*browsertest.Session
	cancel context.CancelFunc
}

func (c *cancelOnScroll) Eval(script string) (gson.JSON, error) {
	if script == js.SCROLL_TO_BOTTOM {
		c.cancel()
	}
	return c.Session.Eval(script)
}

func TestCollect_CanceledDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := browsertest.New(listings(4)...)
	session.PageSize = 2
	h := newHarness(t, "Go Developer", 5, session)
	h.job.Settle = time.Hour
	h.job.NewSession = func() (browser.Session, error) {
		return &cancelOnScroll{Session: session, cancel: cancel}, nil
	}

	done := make(chan struct{})
	var written int
	var err error
	go func() {
		defer close(done)
		written, err = h.job.Collect(ctx)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("collect kept waiting after the context was canceled")
	}
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, written)
	assert.Equal(t, 1, session.Scrolls)
	assert.Equal(t, 1, session.Closed)
	assert.Len(t, h.rows(t), 2)
}

type failingHandler struct {
	err    error
	closed bool
}

func (f *failingHandler) HandleListing(outputHandlers.Listing) error { return f.err }

func (f *failingHandler) Close() error {
	f.closed = true
	return nil
}

var errNoAttribute = errors.New("node detached")

type brokenIDSession struct {
	*browsertest.Session
}

func (s *brokenIDSession) Elements(selector string) ([]browser.Element, error) {
	elements, err := s.Session.Elements(selector)
	for i, el := range elements {
		elements[i] = brokenIDElement{el}
	}
	return elements, err
}

type brokenIDElement struct {
	browser.Element
}

func (brokenIDElement) Attribute(string) (string, bool, error) {
	return "", false, errNoAttribute
}
