package display

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"garage-opener/internal/domain"
	"garage-opener/internal/infra/clock"
)

const sweepStep = 40 * time.Millisecond

var (
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Padding(0, 1)
	litStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
)

// Console is a domain.Display that draws the segment buffer on a terminal.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	clock clock.Clock
	cells Cells
}

// NewConsole draws on out.
func NewConsole(out io.Writer, clk clock.Clock) *Console {
	return &Console{out: out, clock: clk}
}

func (c *Console) Render(text string, startSegment int, prefix string) {
	c.show(Compose(text, startSegment, prefix))
}

func (c *Console) RenderNumber(value uint32, startSegment int, prefix string) {
	c.show(ComposeNumber(value, startSegment, prefix))
}

func (c *Console) Clear() {
	c.show(Cells{})
}

// Sweep runs a light back and forth across the digits and clears the
// display.
func (c *Console) Sweep() {
	frame := func(i int) {
		var cells Cells
		cells[i] = Cell{Char: '8', Dot: true}
		c.mu.Lock()
		fmt.Fprintf(c.out, "\r%s", litStyle.Render("["+cells.String()+"]"))
		c.mu.Unlock()
		c.clock.Sleep(sweepStep)
	}
	for i := Digits - 1; i >= 0; i-- {
		frame(i)
	}
	for i := 1; i < Digits-1; i++ {
		frame(i)
	}
	c.mu.Lock()
	fmt.Fprint(c.out, "\r")
	c.mu.Unlock()
	c.Clear()
}

// Current returns the displayed buffer.
func (c *Console) Current() Cells {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cells
}

func (c *Console) show(cells Cells) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cells = cells
	fmt.Fprintln(c.out, panelStyle.Render(cells.String()))
}

var _ domain.Display = (*Console)(nil)
