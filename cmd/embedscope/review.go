// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Embedscope Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/embedscope/embedscope/internal/store"
	esErr "github.com/embedscope/embedscope/pkg/errors"
	"github.com/embedscope/embedscope/pkg/types"
	"github.com/spf13/cobra"
)

// galleryRows is how many gallery items are visible at once.
const galleryRows = 15

// --- bubbletea messages ---

// storeChangedMsg is sent by the store subscription after any state write.
type storeChangedMsg struct{}

type actionDoneMsg struct {
	status string
	err    error
}

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	checkedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// reviewModel is the bubbletea model for the gallery review screen.
//
// Every store action runs inside a tea.Cmd. Store observers call
// Program.Send, which blocks until the event loop reads the message, so
// Update itself never writes to the store.
type reviewModel struct {
	ctx     context.Context
	store   *store.Store
	region  *types.Rect
	snap    store.Snapshot
	cursor  int
	spinner spinner.Model
	status  string
	errMsg  string
}

func newReviewModel(ctx context.Context, s *store.Store, region *types.Rect) reviewModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return reviewModel{
		ctx:     ctx,
		store:   s,
		region:  region,
		snap:    s.Snapshot(),
		spinner: sp,
	}
}

func (m reviewModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCmd())
}

func (m reviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case storeChangedMsg:
		m.refresh()
		return m, nil

	case actionDoneMsg:
		m.refresh()
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.status = ""
			return m, nil
		}
		m.errMsg = ""
		m.status = msg.status
		return m, nil
	}

	return m, nil
}

func (m reviewModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.visible())-1 {
			m.cursor++
		}
	case " ", "x":
		if item, ok := m.current(); ok {
			return m, m.toggleCmd(item.AnnotationID)
		}
	case "d":
		if len(m.snap.CheckedItems) == 0 {
			m.status = "Nothing checked"
			return m, nil
		}
		return m, m.removeCmd()
	case "tab", "c":
		if next, ok := m.nextClass(); ok {
			return m, m.classCmd(next)
		}
	case "esc":
		return m, m.clearCmd()
	case "r":
		return m, m.loadCmd()
	}
	return m, nil
}

// refresh re-reads the store and keeps the cursor on a visible item.
func (m *reviewModel) refresh() {
	m.snap = m.store.Snapshot()
	if n := len(m.visible()); m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

// visible returns the gallery items of the selected class. The gallery
// itself always mirrors the selected points; the class only filters display.
func (m reviewModel) visible() []types.GalleryItem {
	if m.snap.SelectedClass == types.AllClasses || m.snap.SelectedClass == "" {
		return m.snap.GalleryItems
	}
	inClass := make(map[types.AnnotationID]bool, len(m.snap.FilteredEmbeddings))
	for _, p := range m.snap.FilteredEmbeddings {
		inClass[p.AnnotationID] = true
	}
	items := make([]types.GalleryItem, 0, len(m.snap.GalleryItems))
	for _, it := range m.snap.GalleryItems {
		if inClass[it.AnnotationID] {
			items = append(items, it)
		}
	}
	return items
}

func (m reviewModel) current() (types.GalleryItem, bool) {
	items := m.visible()
	if m.cursor < 0 || m.cursor >= len(items) {
		return types.GalleryItem{}, false
	}
	return items[m.cursor], true
}

// nextClass returns the class after the selected one, wrapping around.
func (m reviewModel) nextClass() (string, bool) {
	classes := m.snap.Classes
	if len(classes) == 0 {
		return "", false
	}
	idx := slices.Index(classes, m.snap.SelectedClass)
	return classes[(idx+1)%len(classes)], true
}

// --- tea.Cmd factories ---

// loadCmd refreshes classes and embeddings, then selects the region (or
// every point when none was given) so the gallery follows the selection.
func (m reviewModel) loadCmd() tea.Cmd {
	s, ctx, region := m.store, m.ctx, m.region
	return func() tea.Msg {
		if err := s.Refresh(ctx); err != nil {
			return actionDoneMsg{err: err}
		}
		rect := region
		if rect == nil {
			if extent, ok := fullExtent(s.Embeddings()); ok {
				rect = &extent
			}
		}
		if rect == nil {
			s.ClearSelection()
		} else if err := s.UpdateSelection(ctx, *rect); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: fmt.Sprintf("Loaded %d points, %d selected",
			len(s.Embeddings()), len(s.SelectedPoints()))}
	}
}

// fullExtent returns the bounding rect of points, false when there are none.
func fullExtent(points []types.EmbeddingPoint) (types.Rect, bool) {
	if len(points) == 0 {
		return types.Rect{}, false
	}
	r := types.Rect{XMin: points[0].X, XMax: points[0].X, YMin: points[0].Y, YMax: points[0].Y}
	for _, p := range points[1:] {
		r.XMin, r.XMax = min(r.XMin, p.X), max(r.XMax, p.X)
		r.YMin, r.YMax = min(r.YMin, p.Y), max(r.YMax, p.Y)
	}
	return r, true
}

func (m reviewModel) toggleCmd(id types.AnnotationID) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		s.ToggleItemCheck(id)
		return storeChangedMsg{}
	}
}

func (m reviewModel) removeCmd() tea.Cmd {
	s, ctx := m.store, m.ctx
	return func() tea.Msg {
		requested := len(s.CheckedItems())
		res, err := s.RemoveSelectedItems(ctx)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if res == nil {
			return actionDoneMsg{status: "Nothing checked"}
		}
		removed := res.RemovedCount
		if *res == (types.RemoveResult{}) {
			removed = requested
		}
		status := fmt.Sprintf("Removed %d annotations", removed)
		if res.OutputFile != "" {
			status += " → " + res.OutputFile
		}
		return actionDoneMsg{status: status}
	}
}

func (m reviewModel) classCmd(class string) tea.Cmd {
	s := m.store
	return func() tea.Msg {
		s.SelectClass(class)
		return actionDoneMsg{status: "Class: " + class}
	}
}

func (m reviewModel) clearCmd() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		s.ClearSelection()
		return actionDoneMsg{status: "Selection cleared"}
	}
}

func (m reviewModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  Embedscope Review  ") + "\n\n")

	class := m.snap.SelectedClass
	items := m.visible()
	b.WriteString(promptStyle.Render("Class: "+class) + "  " + dimStyle.Render(fmt.Sprintf(
		"%d points  %d selected  %d shown  %d checked",
		len(m.snap.Embeddings), len(m.snap.SelectedPoints), len(items), len(m.snap.CheckedItems))) + "\n\n")

	if len(items) == 0 {
		b.WriteString(dimStyle.Render("  (gallery is empty)") + "\n")
	}
	start := max(m.cursor-galleryRows/2, 0)
	end := min(start+galleryRows, len(items))
	start = max(end-galleryRows, 0)
	for i := start; i < end; i++ {
		b.WriteString(m.renderItem(i, items[i]) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.snap.Loading:
		b.WriteString(m.spinner.View() + " Loading…\n")
	case m.errMsg != "":
		b.WriteString(errorStyle.Render("  "+m.errMsg) + "\n")
	case m.status != "":
		b.WriteString(successStyle.Render("  "+m.status) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render("↑/↓ move  space check  d delete checked  tab class  esc clear  r reload  q quit"))

	return boxStyle.Render(b.String())
}

func (m reviewModel) renderItem(i int, it types.GalleryItem) string {
	box := "[ ]"
	if it.Checked {
		box = checkedStyle.Render("[x]")
	}
	line := fmt.Sprintf("%s %d  %s", box, it.AnnotationID, it.ImageURL)
	if i == m.cursor {
		return selectedStyle.Render("> ") + line
	}
	return "  " + line
}

// --- command ---

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review annotations interactively",
		Long: "Open a gallery of annotations, check the bad ones and delete them. " +
			"Pass a region to review only the annotations inside it.",
		Args: cobra.NoArgs,
		RunE: runReview,
	}

	addRegionFlags(cmd)

	return cmd
}

func runReview(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(),
			"embedscope review requires an interactive terminal.\n"+
				"Use `embedscope select` and `embedscope remove` for scripted review.")
		return esErr.New(esErr.CodeCLISetupFailure, "embedscope review: not an interactive terminal")
	}

	var region *types.Rect
	if regionFlagsSet(cmd) {
		r, err := rectFromFlags(cmd)
		if err != nil {
			return err
		}
		region = &r
	}

	s, _, err := newSession()
	if err != nil {
		return err
	}

	p := tea.NewProgram(newReviewModel(cmd.Context(), s, region), tea.WithAltScreen())
	unsubscribe := s.Subscribe(func(store.Change) {
		p.Send(storeChangedMsg{})
	})
	defer unsubscribe()

	if _, err := p.Run(); err != nil {
		return esErr.Errorf(esErr.CodeCLISetupFailure, "review screen error: %w", err)
	}
	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
