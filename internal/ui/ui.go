package ui

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/config"
	"github.com/glebovdev/audiostream/internal/stream"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

const (
	VolumeStep         = 5
	HeaderHeight       = 3
	FooterHeightWide   = 3
	FooterHeightNarrow = 6 // 2 rows × 3 lines each
	PlayerPanelHeight  = 12
	FooterBreakpoint   = 110
	RefreshInterval    = 100 * time.Millisecond
)

// PauseIcon uses platform-specific character (Windows renders ⏸ as emoji)
var PauseIcon = func() string {
	if runtime.GOOS == "windows" {
		return "❚❚"
	}
	return "⏸"
}()

// Player is the playback session the view controls.
type Player interface {
	Play() error
	Stop()
	TogglePause() error
	SetOutput(index int) error
	AvailableOutputs() ([]audio.DeviceInfo, error)
	Snapshot() stream.Snapshot
}

// Recorder is the optional capture session.
type Recorder interface {
	Record() error
	Stop()
	Recording() bool
	Paused() bool
	Queued() int
	Format() audio.Format
}

type VolumeSetter interface {
	SetVolume(percent int)
}

type UI struct {
	app            *tview.Application
	player         Player
	recorder       Recorder
	volume         VolumeSetter
	config         *config.Config
	infoView       *tview.TextView
	tagsView       *tview.TextView
	deviceList     *tview.Table
	volumeView     *tview.TextView
	volumeShown    volumeLevel
	helpPanel      *tview.Box
	contentLayout  *tview.Flex
	mainLayout     *tview.Flex
	pages          *tview.Pages
	stopUpdates    chan struct{}
	stopped        atomic.Bool
	outputs        []audio.DeviceInfo
	outputIndex    int
	currentVolume  int
	isMuted        bool
	lastWidth      int
	mu             sync.Mutex
	statusRenderer *StatusRenderer
	colors         struct {
		background       tcell.Color
		foreground       tcell.Color
		borders          tcell.Color
		highlight        tcell.Color
		headerBackground tcell.Color
		helpBackground   tcell.Color
		helpForeground   tcell.Color
		helpHotkey       tcell.Color
		errorText        tcell.Color
		modalBackground  tcell.Color
	}
}

// NewUI builds the status view. recorder and volume may be nil.
func NewUI(player Player, recorder Recorder, volume VolumeSetter, cfg *config.Config) *UI {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	ui := &UI{
		app:           tview.NewApplication(),
		player:        player,
		recorder:      recorder,
		volume:        volume,
		config:        cfg,
		stopUpdates:   make(chan struct{}),
		outputIndex:   cfg.OutputDeviceID,
		currentVolume: cfg.Volume,
	}

	ui.colors.background = config.GetColor(cfg.Theme.Background)
	ui.colors.foreground = config.GetColor(cfg.Theme.Foreground)
	ui.colors.borders = config.GetColor(cfg.Theme.Borders)
	ui.colors.highlight = config.GetColor(cfg.Theme.Highlight)
	ui.colors.headerBackground = config.GetColor(cfg.Theme.HeaderBackground)
	ui.colors.helpBackground = config.GetColor(cfg.Theme.HelpBackground)
	ui.colors.helpForeground = config.GetColor(cfg.Theme.HelpForeground)
	ui.colors.helpHotkey = config.GetColor(cfg.Theme.HelpHotkey)
	ui.colors.errorText = config.GetColor(cfg.Theme.Error)
	ui.colors.modalBackground = config.GetColor(cfg.Theme.HelpBackground)

	if volume != nil {
		volume.SetVolume(cfg.Volume)
	}

	ui.statusRenderer = NewStatusRenderer(player, recorder)
	ui.statusRenderer.SetPrimaryColor(ui.colors.highlight.String())

	return ui
}

func (ui *UI) SaveConfig() {
	ui.mu.Lock()
	if !ui.isMuted {
		ui.config.Volume = ui.currentVolume
	}
	ui.config.OutputDeviceID = ui.outputIndex
	ui.mu.Unlock()

	if err := ui.config.Save(); err != nil {
		log.Error().Err(err).Msg("Failed to save config")
	}
}

func (ui *UI) stop() {
	if ui.stopped.Swap(true) {
		return
	}
	close(ui.stopUpdates)
	ui.app.Stop()
}

// Shutdown stops the UI gracefully from external callers (e.g., signal handlers).
func (ui *UI) Shutdown() {
	if ui.stopped.Load() {
		return
	}
	ui.app.QueueUpdateDraw(func() {
		ui.stop()
	})
}

// queue runs f on the UI goroutine unless the application has stopped.
func (ui *UI) queue(f func()) {
	if ui.stopped.Load() {
		return
	}
	ui.app.QueueUpdateDraw(f)
}

func (ui *UI) Run() error {
	ui.setupUI()
	ui.app.SetRoot(ui.pages, true)
	ui.configureScreen()

	ui.refreshOutputs()
	ui.refresh()
	ui.startUpdates()

	return ui.app.Run()
}

func (ui *UI) configureScreen() {
	bgStyle := tcell.StyleDefault.Background(ui.colors.background)
	ui.app.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		screen.SetStyle(bgStyle)
		screen.Clear()
		return false
	})

	var titleSet sync.Once
	ui.app.SetAfterDrawFunc(func(screen tcell.Screen) {
		titleSet.Do(func() { screen.SetTitle(config.AppName) })
	})
}

func (ui *UI) setupUI() {
	header := ui.createHeader()

	playerPanel := ui.createPlayerPanel()

	ui.deviceList = ui.createDeviceList()

	ui.helpPanel = ui.createFooter()

	ui.contentLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(header, HeaderHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(playerPanel, PlayerPanelHeight, 0, false).
		AddItem(nil, 1, 0, false).
		AddItem(ui.deviceList, 0, 1, true).
		AddItem(ui.helpPanel, FooterHeightWide, 0, false)
	ui.contentLayout.SetBackgroundColor(ui.colors.background)

	wrapper := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 3, 0, false).
		AddItem(ui.contentLayout, 0, 1, true).
		AddItem(nil, 3, 0, false)
	wrapper.SetBackgroundColor(ui.colors.background)

	ui.mainLayout = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 1, 0, false).
		AddItem(wrapper, 0, 1, true).
		AddItem(nil, 1, 0, false)
	ui.mainLayout.SetBackgroundColor(ui.colors.background)

	ui.pages = tview.NewPages().
		AddPage("main", ui.mainLayout, true, true)
	ui.pages.SetBackgroundColor(ui.colors.background)

	ui.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if ui.pages.HasPage("modal") || ui.pages.HasPage("error-modal") {
			return event
		}
		return ui.globalInputHandler(event)
	})
}

func (ui *UI) createHeader() tview.Primitive {
	titleView := tview.NewTextView()
	titleView.SetText(" " + config.AppName)
	titleView.SetTextAlign(tview.AlignLeft)
	titleView.SetTextColor(ui.colors.foreground)
	titleView.SetBackgroundColor(ui.colors.headerBackground)

	versionView := tview.NewTextView()
	versionView.SetText("v" + config.AppVersion + " ")
	versionView.SetTextAlign(tview.AlignRight)
	versionView.SetTextColor(ui.colors.foreground)
	versionView.SetBackgroundColor(ui.colors.headerBackground)

	textFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(titleView, 0, 1, false).
		AddItem(versionView, 10, 0, false)
	textFlex.SetBackgroundColor(ui.colors.headerBackground)

	headerFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexColumn).
			AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false).
			AddItem(textFlex, 0, 1, false).
			AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false), 1, 0, false).
		AddItem(tview.NewBox().SetBackgroundColor(ui.colors.headerBackground), 1, 0, false)
	headerFlex.SetBackgroundColor(ui.colors.headerBackground)

	return headerFlex
}

func (ui *UI) createPlayerPanel() *tview.Flex {
	label := func(text string) *tview.TextView {
		tv := tview.NewTextView()
		tv.SetText(text)
		tv.SetTextColor(ui.colors.foreground)
		tv.SetBackgroundColor(ui.colors.background)
		tv.SetWrap(false)
		return tv
	}

	ui.infoView = tview.NewTextView()
	ui.infoView.SetDynamicColors(true)
	ui.infoView.SetTextColor(ui.colors.foreground)
	ui.infoView.SetBackgroundColor(ui.colors.background)
	ui.infoView.SetWrap(false)

	ui.tagsView = tview.NewTextView()
	ui.tagsView.SetDynamicColors(true)
	ui.tagsView.SetTextColor(ui.colors.highlight)
	ui.tagsView.SetBackgroundColor(ui.colors.background)
	ui.tagsView.SetWrap(false)

	infoContent := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(label(" Stream:"), 1, 0, false).
		AddItem(ui.infoView, 5, 0, false).
		AddItem(label(" Tags:"), 1, 0, false).
		AddItem(ui.tagsView, stream.TagSlots, 0, false).
		AddItem(nil, 0, 1, false)
	infoContent.SetBackgroundColor(ui.colors.background)

	ui.volumeView = ui.createVolumeBar()
	ui.updateVolumeDisplay()

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(infoContent, 0, 1, false).
		AddItem(ui.volumeView, 7, 0, false)
	contentFlex.SetBackgroundColor(ui.colors.background)

	panel := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(nil, 2, 0, false).
		AddItem(contentFlex, 0, 1, false).
		AddItem(nil, 2, 0, false)
	panel.SetBackgroundColor(ui.colors.background)

	return panel
}

func (ui *UI) startUpdates() {
	go func() {
		ticker := time.NewTicker(RefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ui.stopUpdates:
				return
			case <-ticker.C:
				ui.statusRenderer.AdvanceAnimation()
				ui.queue(ui.refresh)
			}
		}
	}()
}

// refresh redraws the stream panel from a fresh snapshot.
func (ui *UI) refresh() {
	snap := ui.player.Snapshot()
	ui.infoView.SetText(ui.infoText(snap))
	ui.tagsView.SetText(tagsText(snap.Tags, ui.colors.highlight.String()))
	if lvl := ui.currentLevel(); lvl != ui.volumeShown {
		ui.drawVolume(lvl)
	}
}

func (ui *UI) infoText(snap stream.Snapshot) string {
	hl := ui.colors.highlight.String()
	var b strings.Builder

	url := snap.URL
	if url == "" {
		url = "(none)"
	}
	fmt.Fprintf(&b, " URL:      [%s]%s[-]\n", hl, url)
	if snap.ResolvedURL != "" && snap.ResolvedURL != snap.URL {
		fmt.Fprintf(&b, " Resolved: %s\n", snap.ResolvedURL)
	} else {
		b.WriteString("\n")
	}
	if snap.SampleRate > 0 {
		fmt.Fprintf(&b, " Format:   %s  %s  pitch %.3f\n",
			formatRate(snap.SampleRate), channelName(snap.Channels), snap.Pitch)
	} else {
		b.WriteString(" Format:   -\n")
	}

	flags := []string{fmt.Sprintf("buffer %d%%", snap.FillPercent)}
	if snap.Busy {
		flags = append(flags, "busy")
	}
	if snap.Starving {
		flags = append(flags, fmt.Sprintf("[%s]starving[-]", ui.colors.errorText.String()))
	}
	fmt.Fprintf(&b, " State:    %s  %s\n", snap.Display, strings.Join(flags, "  "))

	fmt.Fprintf(&b, " Record:   %s", ui.recordText())
	return b.String()
}

func (ui *UI) recordText() string {
	if ui.recorder == nil {
		return "disabled"
	}
	if !ui.recorder.Recording() {
		return "off"
	}
	f := ui.recorder.Format()
	state := "recording"
	if ui.recorder.Paused() {
		state = "paused"
	}
	return fmt.Sprintf("%s  %s %s  %d frames queued",
		state, formatRate(float64(f.SampleRate)), channelName(f.Channels), ui.recorder.Queued())
}

// tagsText renders exactly TagSlots lines, oldest tag first.
func tagsText(tags []string, color string) string {
	lines := make([]string, stream.TagSlots)
	for i := range lines {
		if i < len(tags) {
			lines[i] = fmt.Sprintf(" [%s]%s[-]", color, tags[i])
		} else {
			lines[i] = " -"
		}
	}
	return strings.Join(lines, "\n")
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1fkHz", rate/1000.0)
}

func channelName(channels int) string {
	switch channels {
	case 1:
		return "mono"
	case 2:
		return "stereo"
	default:
		return fmt.Sprintf("%dch", channels)
	}
}

func (ui *UI) togglePlayback() {
	switch ui.player.Snapshot().State {
	case stream.StatePlaying:
		if err := ui.player.TogglePause(); err != nil {
			ui.showError(err)
		}
	case stream.StateIdle, stream.StateError:
		ui.play()
	}
}

func (ui *UI) play() {
	if err := ui.player.Play(); err != nil {
		log.Error().Err(err).Msg("Failed to start playback")
		ui.showError(err)
	}
}

func (ui *UI) toggleRecording() {
	if ui.recorder == nil {
		ui.showError(audio.ErrComponentDisabled)
		return
	}
	if ui.recorder.Recording() {
		ui.recorder.Stop()
		return
	}
	if err := ui.recorder.Record(); err != nil {
		log.Error().Err(err).Msg("Failed to start recording")
		ui.showError(err)
	}
}

func (ui *UI) globalInputHandler(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyRune:
		switch event.Rune() {
		case 'q', 'Q':
			ui.stop()
			return nil
		case ' ':
			ui.togglePlayback()
			ui.refresh()
			return nil
		case 'p', 'P':
			ui.play()
			ui.refresh()
			return nil
		case 's', 'S':
			ui.player.Stop()
			ui.refresh()
			return nil
		case 'o', 'O':
			ui.cycleOutput()
			return nil
		case 'r', 'R':
			ui.toggleRecording()
			ui.refresh()
			return nil
		case '+', '=':
			ui.adjustVolume(VolumeStep)
			return nil
		case '-', '_':
			ui.adjustVolume(-VolumeStep)
			return nil
		case 'm', 'M':
			ui.toggleMute()
			return nil
		case '?':
			ui.showHelpModal()
			return nil
		}
	case tcell.KeyEnter:
		row, _ := ui.deviceList.GetSelection()
		if row > 0 && row <= len(ui.outputs) {
			ui.selectOutput(ui.outputs[row-1].Index)
		}
		return nil
	case tcell.KeyEscape:
		ui.stop()
		return nil
	case tcell.KeyRight:
		ui.adjustVolume(VolumeStep)
		return nil
	case tcell.KeyLeft:
		ui.adjustVolume(-VolumeStep)
		return nil
	}
	return event
}

// PlaybackStarted and the other listener methods let the view follow a
// stream.Session and a capture.Session. They may be called from any
// goroutine.
func (ui *UI) PlaybackStarted(string)      { ui.queue(ui.refresh) }
func (ui *UI) PlaybackPaused(string, bool) { ui.queue(ui.refresh) }
func (ui *UI) PlaybackStopped(string)      { ui.queue(ui.refresh) }

func (ui *UI) TrackChanged(_ string, tags []string) {
	ui.queue(func() {
		ui.tagsView.SetText(tagsText(tags, ui.colors.highlight.String()))
	})
}

func (ui *UI) Error(_ string, err error) {
	ui.queue(func() {
		ui.refresh()
		ui.showError(err)
	})
}

func (ui *UI) RecordingStarted(string)      { ui.queue(ui.refresh) }
func (ui *UI) RecordingPaused(string, bool) { ui.queue(ui.refresh) }
func (ui *UI) RecordingStopped(string)      { ui.queue(ui.refresh) }
