package collect

import (
	"time"

	"github.com/AlfredBerg/rod-jobs/internal/browser"
	"github.com/AlfredBerg/rod-jobs/internal/outputHandlers"
	"go.uber.org/zap"
)

// Selectors locate the parts of the result page the collector reads.
type Selectors struct {
	Listing string
	// IDAttr is the attribute of a listing element holding its identifier
	IDAttr      string
	Panel       string
	Title       string
	Description string
	ApplyLink   string
}

var BingSelectors = Selectors{
	Listing:     ".jb_jlc",
	IDAttr:      "data-jobid",
	Panel:       ".jb_l2_jbpnl",
	Title:       ".jbpnl_title",
	Description: ".jbpnl_description_blk",
	ApplyLink:   "#jb_Apply a",
}

// Job collects the listings of one search term.
type Job struct {
	Term   string
	Target int
	// Host serves the /jobs search page
	Host      string
	OutputDir string
	Selectors Selectors
	// Settle is how long to wait for more listings to load after scrolling
	Settle time.Duration

	// NewSession opens the browser session the job drives, the job closes it
	NewSession func() (browser.Session, error)
	// Open creates the handler receiving the listings, path is derived from Term
	Open func(path string) (outputHandlers.Handler, error)

	Logger *zap.Logger
}
