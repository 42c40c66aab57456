package launcher

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Operating system constants
const (
	OSDarwin  = "darwin"
	OSWindows = "windows"
)

// Command constants
const (
	OpenCommand    = "open"
	XDGOpenCommand = "xdg-open"
	RundllCommand  = "rundll32"
	CmdCommand     = "cmd"
	StartCommand   = "start"
)

// Command parameters
const (
	WindowsURLHandler = "url.dll,FileProtocolHandler"
	WindowsCmdFlag    = "/c"
)

// DefaultBrowser selects the platform's URL handler.
const DefaultBrowser = "default"

// browserAliases maps the browser presets to per-platform binaries.
var browserAliases = map[string]map[string]string{
	"chrome": {
		OSWindows: "chrome.exe",
		OSDarwin:  "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"":        "google-chrome",
	},
	"msedge": {
		OSWindows: "msedge.exe",
		OSDarwin:  "/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		"":        "microsoft-edge",
	},
	"firefox": {
		OSWindows: "firefox.exe",
		OSDarwin:  "/Applications/Firefox.app/Contents/MacOS/firefox",
		"":        "firefox",
	},
}

// Launcher opens a URL in a browser.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// Resolve turns a configured launch command into the binary to run on goos.
// Browser presets ("chrome", "msedge", "firefox") are expanded; "default" and
// the empty string select the platform URL handler and resolve to "".
func Resolve(goos, launchCommand string) string {
	cmd := strings.TrimSpace(launchCommand)
	if cmd == "" || strings.EqualFold(cmd, DefaultBrowser) {
		return ""
	}
	alias, ok := browserAliases[strings.ToLower(cmd)]
	if !ok {
		return cmd
	}
	if bin, ok := alias[goos]; ok {
		return bin
	}
	return alias[""]
}

// CommandFor builds the process invocation that opens url on goos. The URL is
// always passed as a single argument.
func CommandFor(goos, launchCommand, url string) (string, []string) {
	bin := Resolve(goos, launchCommand)
	if bin == "" {
		switch goos {
		case OSDarwin:
			return OpenCommand, []string{url}
		case OSWindows:
			return RundllCommand, []string{WindowsURLHandler, url}
		default:
			return XDGOpenCommand, []string{url}
		}
	}
	if goos == OSWindows && !strings.ContainsAny(bin, `\/`) {
		// start resolves bare names like chrome.exe through App Paths; cmd
		// would otherwise split the URL at '&'.
		return CmdCommand, []string{WindowsCmdFlag, StartCommand, "", bin, strings.ReplaceAll(url, "&", "^&")}
	}
	return bin, []string{url}
}

// ProcessLauncher starts the browser as a detached child process.
type ProcessLauncher struct {
	command string
	logger  *logrus.Logger
}

func NewProcessLauncher(launchCommand string, logger *logrus.Logger) *ProcessLauncher {
	if logger == nil {
		logger = logrus.New()
	}
	return &ProcessLauncher{command: launchCommand, logger: logger}
}

// Launch starts the process and returns without waiting for it to exit. The
// browser is not tied to ctx: it must outlive the download.
func (l *ProcessLauncher) Launch(ctx context.Context, url string) error {
	name, args := CommandFor(runtime.GOOS, l.command, url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	l.logger.Debugf("launched %s (pid %d)", name, cmd.Process.Pid)

	go func() {
		if err := cmd.Wait(); err != nil {
			l.logger.Warnf("browser process %s exited: %v", name, err)
		}
	}()
	return nil
}

var _ Launcher = (*ProcessLauncher)(nil)
