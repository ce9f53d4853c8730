package tui

type pageLayout struct {
	windowWidth    int
	windowHeight   int
	viewportWidth  int
	viewportHeight int
	sidebarHeight  int
}

func newPageLayout() pageLayout {
	return pageLayout{
		viewportWidth:  80,
		viewportHeight: 20,
		sidebarHeight:  20,
	}
}

func (l *pageLayout) Update(width, height int) {
	l.windowWidth = width
	l.windowHeight = height

	innerWidth := width - sidebarWidth - viewportHorizontalPadding
	if innerWidth < minViewportWidth {
		innerWidth = minViewportWidth
	}
	l.viewportWidth = innerWidth

	// Hero, composer, status and announcement lines take fixed rows.
	const chrome = 9
	usable := height - chrome
	if usable < 6 {
		usable = 6
	}
	l.viewportHeight = usable
	l.sidebarHeight = usable
}
