package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/calladmin/calladmin-client/internal/models"
)

// Console prints engine notifications as coloured lines.
type Console struct {
	mu  sync.Mutex
	out io.Writer
	loc *time.Location
}

// NewConsole writes to out (stdout when nil), rendering times in loc.
func NewConsole(out io.Writer, loc *time.Location) *Console {
	if out == nil {
		out = os.Stdout
	}
	if loc == nil {
		loc = time.Local
	}
	return &Console{out: out, loc: loc}
}

func (c *Console) println(prefix *color.Color, tag, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "%s %s %s\n", time.Now().In(c.loc).Format("15:04:05"), prefix.Sprint(tag), text)
}

func (c *Console) NewCall(_ context.Context, entry models.CallEntry) {
	call := entry.Call
	c.println(color.New(color.FgHiMagenta, color.Bold), "[CALL]",
		fmt.Sprintf("#%d %s: %s (%s) reported %s (%s) for %q",
			entry.Position, entry.Caption, call.ClientName, call.ClientID, call.TargetName, call.TargetID, call.TargetReason))
}

func (c *Console) CallHandled(_ context.Context, entry models.CallEntry) {
	c.println(color.New(color.FgGreen), "[HANDLED]", fmt.Sprintf("#%d %s", entry.Position, entry.Caption))
}

func (c *Console) Error(_ context.Context, message string, severity models.Severity) {
	col := color.New(color.FgYellow)
	if severity == models.SeverityError {
		col = color.New(color.FgRed)
	}
	c.println(col, "["+strings.ToUpper(string(severity))+"]", message)
}

func (c *Console) ReconnectRequired(_ context.Context, message string) {
	c.println(color.New(color.FgRed, color.Bold), "[RECONNECT]", message)
}

func (c *Console) TrackersUpdated(_ context.Context, labels []string) {
	c.println(color.New(color.FgCyan), "[TRACKERS]", strings.Join(labels, ", "))
}

func (c *Console) StatusChanged(_ context.Context, status string) {
	c.println(color.New(color.FgBlue), "[STATUS]", status)
}
