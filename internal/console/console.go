// Package console provides a line-oriented diagnostic shell on a serial
// port. A technician with a USB-UART cable can read device status and
// connection history even when both the hotspot and the client link are
// down.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"wifi-provisiond/internal/provision"
	"wifi-provisiond/internal/store"
)

// Config holds serial console configuration.
type Config struct {
	Port string // e.g. /dev/ttyS0; empty disables the console
	Baud int
}

// Console serves diagnostic commands on a serial port.
type Console struct {
	mgr     *provision.Manager
	history store.Store
	cfg     Config
	logger  *slog.Logger
	version string

	openPort func() (io.ReadWriteCloser, error)

	mu       sync.Mutex
	port     io.ReadWriteCloser
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a console. history may be nil.
func New(mgr *provision.Manager, history store.Store, cfg Config, version string, logger *slog.Logger) *Console {
	c := &Console{
		mgr:     mgr,
		history: history,
		cfg:     cfg,
		logger:  logger.With("component", "console"),
		version: version,
		done:    make(chan struct{}),
	}
	c.openPort = func() (io.ReadWriteCloser, error) {
		baud := cfg.Baud
		if baud == 0 {
			baud = 115200
		}
		return serial.Open(cfg.Port, &serial.Mode{
			BaudRate: baud,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
	}
	return c
}

// Start begins serving on the configured port. The port is reopened with
// backoff when it disappears, USB-UART adapters come and go.
func (c *Console) Start() {
	if c.cfg.Port == "" {
		return
	}
	c.wg.Add(1)
	go c.run()
}

// Stop closes the port and waits for the serve loop to exit.
func (c *Console) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
	c.mu.Lock()
	if c.port != nil {
		c.port.Close()
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Console) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		port, err := c.openPort()
		if err != nil {
			c.logger.Warn("open serial port", "port", c.cfg.Port, "err", err)
			select {
			case <-c.done:
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}

		c.mu.Lock()
		c.port = port
		c.mu.Unlock()
		c.logger.Info("serial console ready", "port", c.cfg.Port)

		c.serve(port)

		c.mu.Lock()
		c.port = nil
		c.mu.Unlock()
		port.Close()
	}
}

// serve reads commands line by line until the port errors out.
func (c *Console) serve(rw io.ReadWriter) {
	c.writeLine(rw, "wifi-provisiond console, type 'help' for commands")
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 1024), 1024)
	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}
		c.handleLine(strings.TrimSpace(scanner.Text()), rw)
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("serial read", "err", err)
	}
}

func (c *Console) handleLine(line string, w io.Writer) {
	if line == "" {
		return
	}
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "help":
		c.writeLine(w, "commands: status, history [n], version, help")
	case "version":
		c.writeLine(w, "wifi-provisiond "+c.version)
	case "status":
		c.printStatus(w)
	case "history":
		n := 10
		if len(fields) > 1 {
			if v, err := strconv.Atoi(fields[1]); err == nil && v > 0 && v <= 200 {
				n = v
			}
		}
		c.printHistory(w, n)
	default:
		c.writeLine(w, "unknown command: "+cmd)
	}
}

func (c *Console) printStatus(w io.Writer) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	st, err := c.mgr.Status(ctx)
	if err != nil {
		c.writeLine(w, "status unavailable: "+err.Error())
		return
	}
	c.writeLine(w, "mode: "+string(st.Mode))
	c.writeLine(w, "connected: "+strconv.FormatBool(st.Connected))
	if st.SSID != "" {
		c.writeLine(w, "ssid: "+st.SSID)
	}
	if st.IP != "" {
		c.writeLine(w, "ip: "+st.IP)
	}
	if st.Signal > 0 {
		c.writeLine(w, "signal: "+strconv.Itoa(st.Signal))
	}
}

func (c *Console) printHistory(w io.Writer, n int) {
	if c.history == nil {
		c.writeLine(w, "history not enabled")
		return
	}
	attempts, err := c.history.RecentAttempts(n)
	if err != nil {
		c.writeLine(w, "history unavailable: "+err.Error())
		return
	}
	if len(attempts) == 0 {
		c.writeLine(w, "no connection attempts recorded")
		return
	}
	for _, a := range attempts {
		outcome := "FAIL"
		if a.Success {
			outcome = "OK"
		}
		c.writeLine(w, fmt.Sprintf("%s  %-4s  %-32s  %s",
			a.FinishedAt.Format("2006-01-02 15:04:05"), outcome, a.SSID, a.Message))
	}
}

func (c *Console) writeLine(w io.Writer, s string) {
	if _, err := io.WriteString(w, s+"\r\n"); err != nil {
		c.logger.Debug("serial write", "err", err)
	}
}
