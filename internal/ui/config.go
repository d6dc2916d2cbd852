package ui

// Config contains window and input related settings.
type Config struct {
	Title   string // window title
	Scale   int    // integer upscaling factor
	ShowFPS bool   // draw the FPS counter overlay
}

// Defaults fills missing fields with reasonable defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "dotmatrix"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}
