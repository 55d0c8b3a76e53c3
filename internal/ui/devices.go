package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/glebovdev/audiostream/internal/audio"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"
)

func (ui *UI) createDeviceList() *tview.Table {
	table := tview.NewTable().
		SetBorders(false).
		SetSeparator(' ').
		SetSelectable(true, false).
		SetFixed(1, 0)

	table.SetBorder(true).
		SetTitle("Outputs").
		SetBorderColor(ui.colors.borders).
		SetTitleColor(ui.colors.foreground).
		SetBackgroundColor(ui.colors.background).
		SetBorderPadding(1, 0, 1, 1)

	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(ui.colors.background).
		Background(ui.colors.highlight))

	return table
}

// refreshOutputs re-reads the output devices and redraws the list.
func (ui *UI) refreshOutputs() {
	outputs, err := ui.player.AvailableOutputs()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list output devices")
	}
	ui.outputs = outputs
	ui.renderOutputs()
}

func (ui *UI) renderOutputs() {
	table := ui.deviceList
	table.Clear()

	header := func(col int, text string) {
		table.SetCell(0, col, tview.NewTableCell(text).
			SetTextColor(ui.colors.foreground).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false))
	}
	header(0, " ")
	header(1, "#")
	header(2, "Device")

	if len(ui.outputs) == 0 {
		table.SetCell(1, 2, tview.NewTableCell("No output devices, playing on the system default").
			SetTextColor(ui.colors.foreground).
			SetSelectable(false))
		return
	}

	for i, d := range ui.outputs {
		marker := " "
		if ui.isActiveOutput(d) {
			marker = "▶"
		}
		name := d.Name
		if d.IsDefault {
			name += " (default)"
		}
		table.SetCell(i+1, 0, tview.NewTableCell(marker).SetTextColor(ui.colors.highlight))
		table.SetCell(i+1, 1, tview.NewTableCell(fmt.Sprintf("%d", d.Index)).SetTextColor(ui.colors.foreground))
		table.SetCell(i+1, 2, tview.NewTableCell(name).SetTextColor(ui.colors.foreground).SetExpansion(1))
	}
}

func (ui *UI) isActiveOutput(d audio.DeviceInfo) bool {
	if ui.outputIndex < 0 {
		return d.IsDefault
	}
	return d.Index == ui.outputIndex
}

func (ui *UI) cycleOutput() {
	ui.refreshOutputs()
	next, ok := nextOutput(ui.outputs, ui.outputIndex)
	if !ok {
		ui.showError(audio.ErrNoDevice)
		return
	}
	ui.selectOutput(next)
}

func (ui *UI) selectOutput(index int) {
	if err := ui.player.SetOutput(index); err != nil {
		log.Error().Err(err).Msgf("Failed to switch output to %d", index)
		ui.showError(err)
		return
	}
	ui.mu.Lock()
	ui.outputIndex = index
	ui.mu.Unlock()

	log.Info().Msgf("Output switched to device %d", index)
	ui.renderOutputs()
	ui.SaveConfig()
}

// nextOutput returns the device after current in list order, wrapping
// around. The default selection (-1) moves to the first device.
func nextOutput(devices []audio.DeviceInfo, current int) (int, bool) {
	if len(devices) == 0 {
		return 0, false
	}
	for i, d := range devices {
		if d.Index == current {
			return devices[(i+1)%len(devices)].Index, true
		}
	}
	return devices[0].Index, true
}
