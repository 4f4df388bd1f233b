package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Standard errors
var (
	// ErrNoDevice indicates no ready ADB device could be found.
	ErrNoDevice = errors.New("device: no adb device found")
)

// Android key event codes used by the controller.
const (
	keyCtrlA = "29"
	keyEnter = "66"
	keyDel   = "67"
	keyPaste = "279"
)

// Config holds ADB connection and input settings.
type Config struct {
	// Path to the adb binary.
	ADBPath string `toml:"adb_path"`

	// Optional TCP address to `adb connect` on startup, e.g. "127.0.0.1:5555".
	Address string `toml:"address"`

	// Optional explicit device serial; overrides Address and auto-detection.
	Serial string `toml:"serial"`

	// Per-command subprocess timeout.
	CommandTimeout time.Duration `toml:"command_timeout"`

	// Screen capture subprocess timeout. Captures move a full framebuffer
	// over the link and need more headroom than input commands.
	CaptureTimeout time.Duration `toml:"capture_timeout"`

	// Chat input field coordinates, tapped to focus before pasting.
	ChatTapX int `toml:"chat_tap_x"`
	ChatTapY int `toml:"chat_tap_y"`
}

// DefaultConfig returns device controller defaults.
func DefaultConfig() Config {
	return Config{
		ADBPath:        "adb",
		CommandTimeout: 5 * time.Second,
		CaptureTimeout: 15 * time.Second,
		ChatTapX:       350,
		ChatTapY:       313,
	}
}

// Validate checks device configuration.
func (c Config) Validate() error {
	if c.ADBPath == "" {
		return fmt.Errorf("adb_path must be specified")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %v", c.CommandTimeout)
	}
	if c.CaptureTimeout <= 0 {
		return fmt.Errorf("capture_timeout must be positive, got %v", c.CaptureTimeout)
	}
	return nil
}

// Controller drives a remote touch/keyboard surface over ADB. All methods
// are best-effort with bounded subprocess timeouts; failures are returned,
// never block indefinitely. Not safe for concurrent use: one physical
// device surface cannot accept concurrent input, so callers invoke it
// strictly sequentially.
type Controller struct {
	config Config
	serial string
	logger *slog.Logger
}

// NewController creates a controller bound to a single device.
//
// Resolution order for the device serial: explicit Serial, then the Address
// that was connected to, then the first ready device from `adb devices`.
func NewController(ctx context.Context, config Config, logger *slog.Logger) (*Controller, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid device config: %w", err)
	}

	c := &Controller{
		config: config,
		logger: logger,
	}

	if config.Address != "" && config.Serial == "" {
		// Best effort: the address may already be connected, or the
		// device may show up via USB anyway.
		if err := c.connect(ctx, config.Address); err != nil {
			logger.Warn("adb connect failed", "address", config.Address, "error", err)
		}
	}

	switch {
	case config.Serial != "":
		c.serial = config.Serial
	case config.Address != "":
		c.serial = config.Address
	default:
		serial, err := c.FirstDevice(ctx)
		if err != nil {
			return nil, err
		}
		c.serial = serial
	}

	logger.Info("using adb device", "serial", c.serial)
	return c, nil
}

// Serial returns the resolved device serial.
func (c *Controller) Serial() string {
	return c.serial
}

// connect issues `adb connect` to a TCP address.
func (c *Controller) connect(ctx context.Context, address string) error {
	out, err := c.runRaw(ctx, c.config.CommandTimeout, "connect", address)
	if err != nil {
		return err
	}
	// adb connect reports failure on stdout with a zero exit code.
	if strings.Contains(string(out), "cannot connect") || strings.Contains(string(out), "failed to connect") {
		return fmt.Errorf("adb connect refused: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

// FirstDevice returns the serial of the first ready device listed by
// `adb devices`.
func (c *Controller) FirstDevice(ctx context.Context) (string, error) {
	out, err := c.runRaw(ctx, c.config.CommandTimeout, "devices")
	if err != nil {
		return "", fmt.Errorf("failed to list adb devices: %w", err)
	}

	serial := parseFirstDevice(string(out))
	if serial == "" {
		return "", ErrNoDevice
	}
	return serial, nil
}

// parseFirstDevice extracts the first ready serial from `adb devices`
// output. The first line is a header.
func parseFirstDevice(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines[1:] {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "device" {
			return fields[0]
		}
	}
	return ""
}

// runRaw executes an adb command without the -s flag and returns stdout.
func (c *Controller) runRaw(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, c.config.ADBPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return out, commandError(err, args)
	}
	return out, nil
}

// run executes an adb command against the bound device and returns stdout.
func (c *Controller) run(ctx context.Context, timeout time.Duration, args ...string) ([]byte, error) {
	full := append([]string{"-s", c.serial}, args...)
	return c.runRaw(ctx, timeout, full...)
}

// shell executes `adb shell` arguments against the bound device.
func (c *Controller) shell(ctx context.Context, args ...string) error {
	full := append([]string{"shell"}, args...)
	_, err := c.run(ctx, c.config.CommandTimeout, full...)
	return err
}

// commandError folds stderr from an ExitError into the returned error.
func commandError(err error, args []string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return fmt.Errorf("adb %s: %w", strings.Join(args, " "), err)
}

// TestConnection checks that the bound device responds to a trivial shell
// command.
func (c *Controller) TestConnection(ctx context.Context) error {
	if err := c.shell(ctx, "echo", "ok"); err != nil {
		return fmt.Errorf("device not responsive: %w", err)
	}
	return nil
}

// Tap sends a touch event at the given screen coordinates.
func (c *Controller) Tap(ctx context.Context, x, y int) error {
	return c.shell(ctx, "input", "tap", fmt.Sprint(x), fmt.Sprint(y))
}

// TypeText injects text via `input text`. Unreliable against game IMEs,
// which is why SendMessage uses the clipboard path instead; kept as a
// fallback for surfaces where the clipper helper is unavailable.
func (c *Controller) TypeText(ctx context.Context, text string) error {
	return c.shell(ctx, "input", "text", escapeInputText(text))
}

// escapeInputText rewrites text for `input text`, which splits its argument
// on spaces unless they are encoded as %s.
func escapeInputText(text string) string {
	return strings.ReplaceAll(text, " ", "%s")
}

// PressEnter sends the enter key event.
func (c *Controller) PressEnter(ctx context.Context) error {
	return c.shell(ctx, "input", "keyevent", keyEnter)
}

// Paste sends the paste key event.
func (c *Controller) Paste(ctx context.Context) error {
	return c.shell(ctx, "input", "keyevent", keyPaste)
}

// SetClipboard stores text in the device clipboard via a clipper broadcast.
// Requires the clipper helper app on older Android builds.
func (c *Controller) SetClipboard(ctx context.Context, text string) error {
	// Broadcasts can be slow to deliver; give them extra headroom.
	_, err := c.runRaw(ctx, 2*c.config.CommandTimeout,
		"-s", c.serial, "shell",
		"am", "broadcast", "-a", "clipper.set", "-e", "text", text)
	return err
}

// ClearInput clears the focused input field (select all, then delete).
func (c *Controller) ClearInput(ctx context.Context) error {
	if err := c.shell(ctx, "input", "keyevent", keyCtrlA); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	return c.shell(ctx, "input", "keyevent", keyDel)
}

// SendMessage sends one chat message: tap to focus the input field, clear
// any stale text, inject the payload through the clipboard, paste, enter.
// The short sleeps give the remote surface time to react between steps.
func (c *Controller) SendMessage(ctx context.Context, text string) error {
	if err := c.Tap(ctx, c.config.ChatTapX, c.config.ChatTapY); err != nil {
		return fmt.Errorf("failed to focus input field: %w", err)
	}
	time.Sleep(500 * time.Millisecond)

	if err := c.ClearInput(ctx); err != nil {
		return fmt.Errorf("failed to clear input field: %w", err)
	}

	if err := c.SetClipboard(ctx, text); err != nil {
		return fmt.Errorf("failed to set clipboard: %w", err)
	}
	time.Sleep(200 * time.Millisecond)

	if err := c.Paste(ctx); err != nil {
		return fmt.Errorf("failed to paste message: %w", err)
	}
	time.Sleep(300 * time.Millisecond)

	if err := c.PressEnter(ctx); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	time.Sleep(300 * time.Millisecond)

	c.logger.Debug("message sent", "length", len(text))
	return nil
}
