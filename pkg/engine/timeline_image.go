package engine

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Timeline chart colors, one per tick phase.
var (
	timelineBackground = color.RGBA{R: 0x1e, G: 0x1e, B: 0x24, A: 0xff}
	timelineDispatch   = color.RGBA{R: 0x8a, G: 0x8a, B: 0x99, A: 0xff}
	timelineApply      = color.RGBA{R: 0x3d, G: 0x9e, B: 0xf2, A: 0xff}
	timelineHook       = color.RGBA{R: 0x5c, G: 0xd1, B: 0x7a, A: 0xff}
	timelineThreshold  = color.RGBA{R: 0xf2, G: 0x4d, B: 0x3d, A: 0xff}
	timelineLabel      = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}
)

const timelineLabelHeight = 16

// RenderTimeline draws the samples of timeline as stacked bars, one per
// tick, with the slow tick threshold as a horizontal line. The vertical
// scale fits the slowest tick or twice the threshold, whichever is larger.
func RenderTimeline(timeline TickTimeline, width, height int) *image.RGBA {
	width = max(width, 1)
	height = max(height, timelineLabelHeight+1)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(timelineBackground), image.Point{}, draw.Src)

	plotTop := timelineLabelHeight
	plotHeight := height - plotTop

	scaleMs := timeline.ThresholdMs * 2
	for _, s := range timeline.Samples {
		scaleMs = math.Max(scaleMs, s.TickMs)
	}
	if scaleMs <= 0 {
		scaleMs = 1
	}
	toPixels := func(ms float64) int {
		return int(math.Round(ms / scaleMs * float64(plotHeight)))
	}

	if n := len(timeline.Samples); n > 0 {
		barWidth := max(width/n, 1)
		// Keep the newest ticks when there are more samples than columns.
		samples := timeline.Samples
		if n > width {
			samples = samples[n-width:]
		}
		for i, s := range samples {
			x0 := i * barWidth
			x1 := min(x0+barWidth-1, width)
			if x1 <= x0 {
				x1 = x0 + 1
			}
			bottom := height
			for _, seg := range []struct {
				ms float64
				c  color.RGBA
			}{
				{s.Phases.DispatchMs, timelineDispatch},
				{s.Phases.ApplyMs, timelineApply},
				{s.Phases.HookMs, timelineHook},
			} {
				h := toPixels(seg.ms)
				if h <= 0 {
					continue
				}
				top := max(bottom-h, plotTop)
				draw.Draw(img, image.Rect(x0, top, x1, bottom), image.NewUniform(seg.c), image.Point{}, draw.Src)
				bottom = top
			}
		}
	}

	if timeline.ThresholdMs > 0 {
		y := height - toPixels(timeline.ThresholdMs)
		if y >= plotTop && y < height {
			draw.Draw(img, image.Rect(0, y, width, y+1), image.NewUniform(timelineThreshold), image.Point{}, draw.Src)
		}
	}

	label := fmt.Sprintf("%d ticks  slow %d  threshold %.2fms  scale %.2fms",
		len(timeline.Samples), timeline.SlowTicks, timeline.ThresholdMs, scaleMs)
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(timelineLabel),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, timelineLabelHeight-4),
	}
	d.DrawString(label)
	return img
}
