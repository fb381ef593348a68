package js

// Snippets evaluated by browser.Session.Eval. Element scoped snippets are bound to the
// element as `this`.

var SCROLL_HEIGHT string = `() => document.body.scrollHeight`

var SCROLL_TO_BOTTOM string = `() => window.scrollTo(0, document.body.scrollHeight)`

// CLICK dispatches the click from js so overlays covering the card don't swallow it
var CLICK string = `() => this.click()`

// IS_STALE is true once the element was detached from the document or hidden
var IS_STALE string = `
() => {
    if (!this.isConnected) return true;
    var style = window.getComputedStyle(this);
    return style.display === "none" || style.visibility === "hidden" || this.getClientRects().length === 0;
}
`
