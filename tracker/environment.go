package tracker

import "sync"

// PageInfo is what the host page exposes about itself.
type PageInfo struct {
	URL            string
	Title          string
	Referrer       string
	UserAgent      string
	ScreenWidth    int
	ScreenHeight   int
	ViewportWidth  int
	ViewportHeight int
}

// Environment reports the current page when an event is tracked.
type Environment interface {
	Page() PageInfo
}

// StaticEnvironment is an Environment whose page is set by the host.
type StaticEnvironment struct {
	mu   sync.RWMutex
	page PageInfo
}

func NewStaticEnvironment(page PageInfo) *StaticEnvironment {
	return &StaticEnvironment{page: page}
}

func (e *StaticEnvironment) Page() PageInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.page
}

// Navigate moves to url, recording the previous URL as referrer.
func (e *StaticEnvironment) Navigate(url, title string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page.Referrer = e.page.URL
	e.page.URL = url
	e.page.Title = title
}

func (e *StaticEnvironment) Resize(viewportWidth, viewportHeight int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.page.ViewportWidth = viewportWidth
	e.page.ViewportHeight = viewportHeight
}
