package ui

import (
	"fmt"
	"strings"

	"github.com/glebovdev/audiostream/internal/config"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const volumeBarHeight = 10

// volumeLevel is what the volume bar shows. held is set while the stream
// starves: the direct render path mutes its output then, so the bar is
// drawn hatched instead of solid.
type volumeLevel struct {
	percent int
	muted   bool
	held    bool
}

type barColors struct {
	fill  string
	empty string
	muted string
}

func (ui *UI) currentLevel() volumeLevel {
	ui.mu.Lock()
	lvl := volumeLevel{percent: ui.currentVolume, muted: ui.isMuted}
	if lvl.muted {
		lvl.percent = ui.config.Volume
	}
	ui.mu.Unlock()

	lvl.held = ui.player.Snapshot().Starving
	return lvl
}

// volumeBarText draws the bar top to bottom with the percentage next to
// the highest filled cell.
func volumeBarText(lvl volumeLevel, c barColors) string {
	filled := min(max(lvl.percent, 0), 100) * volumeBarHeight / 100
	top := volumeBarHeight - filled

	cell, fill := " ██", c.fill
	switch {
	case lvl.muted:
		fill = c.muted
	case lvl.held:
		cell = " ▒▒"
	}

	var b strings.Builder
	b.WriteString("   max\n")
	for row := 0; row < volumeBarHeight; row++ {
		if row < top {
			fmt.Fprintf(&b, "    [%s] ░░[-]\n", c.empty)
			continue
		}

		label := "    "
		if row == top {
			label = percentLabel(lvl, fill)
		}
		fmt.Fprintf(&b, "%s[%s]%s[-]\n", label, fill, cell)
	}
	b.WriteString("   min")
	return b.String()
}

func percentLabel(lvl volumeLevel, color string) string {
	text := fmt.Sprintf("%4s", fmt.Sprintf("%d%%", lvl.percent))
	switch {
	case lvl.muted:
		return fmt.Sprintf("[%s::s]%s[-::-]", color, text)
	case lvl.held:
		return fmt.Sprintf("[%s::d]%s[-::-]", color, text)
	}
	return fmt.Sprintf("[%s]%s[-]", color, text)
}

func (ui *UI) barColors() barColors {
	return barColors{
		fill:  ui.colors.highlight.String(),
		empty: ui.colors.foreground.String(),
		muted: config.GetColor(ui.config.Theme.MutedVolume).String(),
	}
}

func (ui *UI) createVolumeBar() *tview.TextView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetTextColor(ui.colors.foreground)
	tv.SetBackgroundColor(ui.colors.background)
	return tv
}

func (ui *UI) drawVolume(lvl volumeLevel) {
	ui.volumeShown = lvl
	if ui.volumeView != nil {
		ui.volumeView.SetText(volumeBarText(lvl, ui.barColors()))
	}
}

func (ui *UI) updateVolumeDisplay() {
	ui.drawVolume(ui.currentLevel())
}

func (ui *UI) applyVolume() {
	ui.mu.Lock()
	volume := ui.currentVolume
	ui.mu.Unlock()

	if ui.volume != nil {
		ui.volume.SetVolume(volume)
	}
	ui.updateVolumeDisplay()
}

// unmuteLocked restores the volume saved when muting. ui.mu must be held.
func (ui *UI) unmuteLocked() {
	ui.currentVolume = ui.config.Volume
	ui.isMuted = false
	ui.statusRenderer.SetMuted(false)
}

func (ui *UI) adjustVolume(delta int) {
	ui.mu.Lock()
	if ui.isMuted {
		ui.unmuteLocked()
		restored := ui.currentVolume
		ui.mu.Unlock()

		ui.applyVolume()
		log.Debug().Int("volume", restored).Msg("Unmuted by volume change")
		return
	}
	ui.currentVolume = config.ClampVolume(ui.currentVolume + delta)
	volume := ui.currentVolume
	ui.mu.Unlock()

	ui.applyVolume()
	ui.SaveConfig()
	log.Debug().Int("volume", volume).Msg("Volume adjusted")
}

func (ui *UI) toggleMute() {
	ui.mu.Lock()
	if ui.isMuted {
		ui.unmuteLocked()
	} else {
		// Muting at 0% would restore to silence; fall back to the default.
		ui.config.Volume = ui.currentVolume
		if ui.config.Volume == 0 {
			ui.config.Volume = config.DefaultVolume
		}
		ui.currentVolume = 0
		ui.isMuted = true
		ui.statusRenderer.SetMuted(true)
	}
	muted, saved := ui.isMuted, ui.config.Volume
	ui.mu.Unlock()

	log.Debug().Bool("muted", muted).Int("saved", saved).Msg("Mute toggled")
	ui.applyVolume()
	ui.SaveConfig()
}
