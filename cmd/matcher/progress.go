package main

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// barProgress renders the passes of a match run on a terminal progress bar
type barProgress struct {
	bar    *progressbar.ProgressBar
	passes []string
	pass   int
}

func newBarProgress(w io.Writer) *barProgress {
	return &barProgress{
		bar: progressbar.NewOptions(1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		),
		passes: []string{"candidates", "seed", "transitions", "viterbi", "routing"},
	}
}

// Init starts the next pass
func (p *barProgress) Init(total int) {
	desc := "matching"
	if p.pass < len(p.passes) {
		desc = p.passes[p.pass]
	}
	p.pass++
	p.bar.Reset()
	p.bar.ChangeMax(total)
	p.bar.Describe(desc)
}

func (p *barProgress) Advance() {
	p.bar.Add(1)
}

func (p *barProgress) Finish() {
	p.bar.Finish()
}
