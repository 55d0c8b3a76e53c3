package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/glebovdev/audiostream/internal/config"
	"github.com/rivo/tview"
)

// friendlyErrorMessage turns a playback or recording error into text for
// the error modal.
func friendlyErrorMessage(err error) string {
	var statusErr *audio.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case 401:
			return "Stream access denied (401)."
		case 403:
			return "Stream access forbidden (403)."
		case 404:
			return "Stream not found (404)."
		default:
			return fmt.Sprintf("Server returned %s.", statusErr.Status)
		}
	}

	switch {
	case errors.Is(err, audio.ErrUnstableShutdown):
		return "The previous stream could not be shut down cleanly.\nRestart the application to play again."
	case errors.Is(err, audio.ErrAcquisitionTimeout):
		return "The stream did not start in time.\nThe server may be overloaded."
	case errors.Is(err, audio.ErrStarvation):
		return "Playback ran out of data.\nThe connection may have stalled."
	case errors.Is(err, audio.ErrEmptyURL):
		return "No stream URL configured.\nStart with --url or set url in the config file."
	case errors.Is(err, audio.ErrComponentDisabled):
		return "This feature is disabled in the configuration."
	case errors.Is(err, audio.ErrNoDevice):
		return "No matching audio device."
	}

	errStr := err.Error()
	if strings.Contains(errStr, "no such host") {
		return "Unable to connect to server.\nPlease check your internet connection."
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused by server.\nThe service may be temporarily unavailable."
	}
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timed out.\nPlease check your internet connection."
	}
	if errors.Is(err, audio.ErrPlaylist) {
		return "Could not resolve the playlist."
	}

	if idx := strings.Index(errStr, ": dial"); idx > 0 {
		return errStr[:idx]
	}
	if len(errStr) > 100 {
		return errStr[:100] + "..."
	}
	return errStr
}

func (ui *UI) showError(err error) {
	if err == nil || ui.pages == nil {
		return
	}
	ui.showPlaybackErrorModal(friendlyErrorMessage(err))
}

func (ui *UI) showPlaybackErrorModal(message string) {
	ui.pages.RemovePage("error-modal")

	doDismiss := func() {
		ui.pages.RemovePage("error-modal")
		ui.app.SetFocus(ui.deviceList)
	}

	doRetry := func() {
		doDismiss()
		ui.play()
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText(fmt.Sprintf("\n[::b]Error[::-]\n\n%s", message))
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press [::b]R[::d] to retry  •  Press [::b]Esc[::d] to dismiss[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(0, 0, 1, 1, 1, 1)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.errorText).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" Error ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	modalHeight := 10 + max(strings.Count(message, "\n")-1, 0)
	modal := ui.centered(frame, 54, min(modalHeight, 15))

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEscape, tcell.KeyEnter:
			doDismiss()
			return nil
		case tcell.KeyRune:
			if event.Rune() == 'r' || event.Rune() == 'R' {
				doRetry()
				return nil
			}
		}
		return event
	})

	ui.pages.AddPage("error-modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) showHelpModal() {
	keyColor := ui.colors.helpHotkey.String()

	configPath, _ := config.GetConfigPath()

	helpText := fmt.Sprintf(`[::b]KEYBOARD SHORTCUTS[::-]

[%[1]s]PLAYBACK[-]
  [%[1]s]p[-]          Play
  [%[1]s]Space[-]      Pause / Resume
  [%[1]s]s[-]          Stop
  [%[1]s]r[-]          Start / stop recording

[%[1]s]OUTPUT[-]
  [%[1]s]o[-]          Next output device
  [%[1]s]↑[-] / [%[1]s]↓[-]      Navigate devices
  [%[1]s]Enter[-]      Use selected device

[%[1]s]VOLUME[-]
  [%[1]s]+[-] / [%[1]s]-[-]      Volume up / down
  [%[1]s]←[-] / [%[1]s]→[-]      Volume down / up
  [%[1]s]m[-]          Mute / Unmute

[%[1]s]APPLICATION[-]
  [%[1]s]?[-]          Show this help
  [%[1]s]q[-] / [%[1]s]Esc[-]    Quit

[%[1]s]CONFIG[-]: %[2]s`, keyColor, configPath)

	ui.showInfoModal("Help", helpText)
}

func (ui *UI) showInfoModal(title, message string) {
	doDismiss := func() {
		ui.pages.RemovePage("modal")
		ui.app.SetFocus(ui.deviceList)
	}

	messageView := tview.NewTextView().
		SetTextAlign(tview.AlignLeft).
		SetDynamicColors(true).
		SetWordWrap(true).
		SetText("\n" + message)
	messageView.SetTextColor(ui.colors.foreground)
	messageView.SetBackgroundColor(ui.colors.modalBackground)

	hintView := tview.NewTextView().
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetText("[::d]Press any key to close[::-]")
	hintView.SetTextColor(tcell.ColorDarkGray)
	hintView.SetBackgroundColor(ui.colors.modalBackground)

	content := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(messageView, 0, 1, false).
		AddItem(nil, 2, 0, false).
		AddItem(hintView, 1, 0, false).
		AddItem(nil, 1, 0, false)
	content.SetBackgroundColor(ui.colors.modalBackground)

	frame := tview.NewFrame(content).
		SetBorders(1, 0, 1, 1, 2, 2)
	frame.SetBorder(true).
		SetBorderColor(ui.colors.borders).
		SetBackgroundColor(ui.colors.modalBackground).
		SetTitle(" " + title + " ").
		SetTitleColor(ui.colors.highlight).
		SetTitleAlign(tview.AlignCenter)

	lines := strings.Count(message, "\n") + 1
	modal := ui.centered(frame, 48, min(lines+10, 38))

	modal.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		doDismiss()
		return nil
	})

	ui.pages.AddPage("modal", modal, true, true)
	ui.app.SetFocus(modal)
}

func (ui *UI) centered(p tview.Primitive, width, height int) *tview.Flex {
	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false),
			width, 0, true).
		AddItem(nil, 0, 1, false)
	modal.SetBackgroundColor(ui.colors.background)
	return modal
}
