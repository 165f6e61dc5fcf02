package main

import (
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// barProgress renders acknowledged bytes of a save
type barProgress struct {
	bar *progressbar.ProgressBar
}

// newProgress returns nil when stderr is not a terminal
func newProgress(description string) *barProgress {
	if !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return &barProgress{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *barProgress) Start(total int) {
	p.bar.ChangeMax(total)
}

func (p *barProgress) Add(n int) error {
	return p.bar.Add(n)
}

func (p *barProgress) Close() error {
	return p.bar.Close()
}
