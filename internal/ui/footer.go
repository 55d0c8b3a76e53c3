package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/audiostream/internal/stream"
	"github.com/rivo/tview"
)

type SnapshotSource interface {
	Snapshot() stream.Snapshot
}

type StatusRenderer struct {
	source        SnapshotSource
	recorder      Recorder
	isMuted       bool
	animFrame     int
	maxAnimFrame  int
	tickCount     int
	ticksPerFrame int

	bufferHealth         int
	bufferTickCount      int
	bufferTicksPerUpdate int

	primaryColor string
}

func NewStatusRenderer(source SnapshotSource, recorder Recorder) *StatusRenderer {
	return &StatusRenderer{
		source:               source,
		recorder:             recorder,
		maxAnimFrame:         4,
		ticksPerFrame:        4,
		bufferTicksPerUpdate: 10, // ~1 per second at RefreshInterval
	}
}

func (s *StatusRenderer) SetMuted(muted bool) {
	s.isMuted = muted
}

func (s *StatusRenderer) SetPrimaryColor(color string) {
	s.primaryColor = color
}

func (s *StatusRenderer) AdvanceAnimation() {
	s.tickCount++
	if s.tickCount >= s.ticksPerFrame {
		s.tickCount = 0
		s.animFrame = (s.animFrame + 1) % s.maxAnimFrame
	}

	s.bufferTickCount++
	if s.bufferTickCount >= s.bufferTicksPerUpdate {
		s.bufferTickCount = 0
		if s.source != nil {
			s.bufferHealth = s.source.Snapshot().FillPercent
		}
	}
}

func (s *StatusRenderer) Render() string {
	if s.source == nil {
		return s.renderIdle()
	}

	snap := s.source.Snapshot()

	var text string
	switch snap.Display {
	case stream.StateResolvingPlaylist:
		text = s.renderResolving()
	case stream.StateOpening, stream.StateCatching:
		text = s.renderBuffering(snap)
	case stream.StatePlaying:
		text = s.renderPlaying(snap)
	case stream.StatePaused:
		text = s.renderPaused(snap)
	case stream.StateStarving:
		text = s.renderStarving(snap)
	case stream.StateStopping:
		text = "■ STOPPING"
	case stream.StateError:
		text = s.renderError(snap)
	default:
		text = s.renderIdle()
	}

	if s.recorder != nil && s.recorder.Recording() {
		rec := "[red]● REC[-]"
		if s.recorder.Paused() {
			rec = PauseIcon + " REC"
		}
		text = joinParts([]string{text, rec})
	}
	return text
}

func (s *StatusRenderer) renderIdle() string {
	if s.isMuted {
		return "○ IDLE │ [red]MUTED[-] │ Press p to play"
	}
	return "○ IDLE │ Press p to play"
}

func (s *StatusRenderer) renderResolving() string {
	circles := []string{"◐", "◓", "◑", "◒"}
	return fmt.Sprintf("%s RESOLVING PLAYLIST", circles[s.animFrame])
}

func (s *StatusRenderer) renderBuffering(snap stream.Snapshot) string {
	circles := []string{"◐", "◓", "◑", "◒"}
	if snap.Attempts == 0 {
		return fmt.Sprintf("%s CONNECTING", circles[s.animFrame])
	}
	return fmt.Sprintf("%s BUFFERING %d/%d", circles[s.animFrame], snap.Attempts, stream.CatchAttempts)
}

func (s *StatusRenderer) renderPlaying(snap stream.Snapshot) string {
	dots := []string{"●", "◉", "○", "◉"}
	dot := dots[s.animFrame]

	if s.primaryColor != "" {
		dot = fmt.Sprintf("[%s]%s[-]", s.primaryColor, dot)
	}

	parts := []string{dot + " LIVE"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	if snap.Busy {
		parts = append(parts, "BUSY")
	}

	parts = append(parts, formatStream(snap))
	parts = append(parts, s.formatBufferHealth(s.bufferHealth))

	return joinParts(parts)
}

func (s *StatusRenderer) renderPaused(snap stream.Snapshot) string {
	parts := []string{PauseIcon + " PAUSED"}

	if s.isMuted {
		parts = append(parts, "[red]MUTED[-]")
	}
	parts = append(parts, formatStream(snap))

	return joinParts(parts)
}

func (s *StatusRenderer) renderStarving(snap stream.Snapshot) string {
	return joinParts([]string{"[red]▽ STARVING[-]", s.formatBufferHealth(snap.FillPercent)})
}

func (s *StatusRenderer) renderError(snap stream.Snapshot) string {
	if snap.Err == nil {
		return "✗ ERROR"
	}
	return fmt.Sprintf("✗ %s", snap.Err.Error())
}

func formatStream(snap stream.Snapshot) string {
	if snap.SampleRate <= 0 {
		return ""
	}
	return fmt.Sprintf("%s %s", formatRate(snap.SampleRate), channelName(snap.Channels))
}

func (s *StatusRenderer) formatBufferHealth(percent int) string {
	signalBars := []string{"▁", "▂", "▃", "▅", "▇"}
	const numBars = 5

	filled := (percent * numBars) / 100
	if filled > numBars {
		filled = numBars
	}

	bar := ""
	for i := 0; i < numBars; i++ {
		if i < filled {
			bar += signalBars[i]
		} else {
			bar += "▁"
		}
	}

	return bar
}

func joinParts(parts []string) string {
	result := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if result != "" {
			result += " │ "
		}
		result += p
	}
	return result
}

func (ui *UI) getPlaybackHint(keyColor string) string {
	switch ui.player.Snapshot().Display {
	case stream.StatePaused:
		return fmt.Sprintf("[%s]Space[-] resume  [%s]s[-] stop", keyColor, keyColor)
	case stream.StatePlaying, stream.StateStarving, stream.StateCatching, stream.StateOpening, stream.StateResolvingPlaylist:
		return fmt.Sprintf("[%s]Space[-] pause  [%s]s[-] stop", keyColor, keyColor)
	default:
		return fmt.Sprintf("[%s]p[-] play", keyColor)
	}
}

func (ui *UI) getHelpText() string {
	keyColor := ui.colors.helpHotkey.String()
	playbackHint := ui.getPlaybackHint(keyColor)

	recordText := "record"
	if ui.recorder != nil && ui.recorder.Recording() {
		recordText = "stop rec"
	}

	return fmt.Sprintf(" %s  [%s]o[-] output  [%s]r[-] %s  [%s]+/-[-] vol  [%s]?[-] help  [%s]q[-] quit ",
		playbackHint, keyColor, keyColor, recordText, keyColor, keyColor, keyColor)
}

func (ui *UI) handleFooterResize(width int) {
	isWide := width >= FooterBreakpoint
	wasWide := ui.lastWidth >= FooterBreakpoint

	if ui.lastWidth > 0 && isWide != wasWide && ui.contentLayout != nil {
		newHeight := FooterHeightWide
		if !isWide {
			newHeight = FooterHeightNarrow
		}
		ui.contentLayout.ResizeItem(ui.helpPanel, newHeight, 0)
	}
	ui.lastWidth = width
}

func (ui *UI) fill(screen tcell.Screen, x, y, width, height int, bg tcell.Color) {
	style := tcell.StyleDefault.Background(bg)
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			screen.SetContent(col, row, ' ', nil, style)
		}
	}
}

func (ui *UI) createFooter() *tview.Box {
	box := tview.NewBox().SetBackgroundColor(ui.colors.background)

	box.SetDrawFunc(func(screen tcell.Screen, x, y, width, height int) (int, int, int, int) {
		ui.handleFooterResize(width)

		helpText := ui.getHelpText()
		statusText := " " + ui.statusRenderer.Render() + " "

		if width >= FooterBreakpoint {
			if height > FooterHeightWide {
				height = FooterHeightWide
			}
			helpWidth := width / 2
			ui.fill(screen, x, y, helpWidth, height, ui.colors.helpBackground)
			ui.fill(screen, x+helpWidth, y, width-helpWidth, height, ui.colors.background)

			centerY := y + height/2
			tview.Print(screen, helpText, x, centerY, helpWidth, tview.AlignCenter, ui.colors.helpForeground)
			tview.Print(screen, statusText, x+helpWidth, centerY, width-helpWidth-2, tview.AlignRight, ui.colors.foreground)
			return x, y, width, height
		}

		helpHeight := max(height/2, 1)
		ui.fill(screen, x, y, width, helpHeight, ui.colors.helpBackground)
		ui.fill(screen, x, y+helpHeight, width, height-helpHeight, ui.colors.background)

		tview.Print(screen, helpText, x, y+helpHeight/2, width, tview.AlignCenter, ui.colors.helpForeground)
		if statusHeight := height - helpHeight; statusHeight > 0 {
			tview.Print(screen, statusText, x, y+helpHeight+statusHeight/2, width-2, tview.AlignRight, ui.colors.foreground)
		}

		return x, y, width, height
	})

	return box
}
