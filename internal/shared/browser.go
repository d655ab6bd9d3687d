package shared

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var getRuntime = func() string { return runtime.GOOS }

var startCommand = func(cmd *exec.Cmd) error { return cmd.Start() }

// OpenBrowser opens the default system handler for target, which may be an http(s) URL or a spotify: URI.
//
// Supports macOS, Linux, and Windows platforms.
func OpenBrowser(target string) error {
	var cmd *exec.Cmd
	switch rt := getRuntime(); rt {
	case "darwin":
		cmd = exec.Command("open", target)
	case "linux":
		cmd = exec.Command("xdg-open", target)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", target)
	default:
		return fmt.Errorf("unsupported platform: %s", rt)
	}

	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to open %s: %w", target, err)
	}
	return nil
}

// OpenExternal tries the desktop app URI first and falls back to the web URL.
func OpenExternal(uri, webURL string) error {
	if uri != "" && strings.HasPrefix(uri, "spotify:") {
		if err := OpenBrowser(uri); err == nil {
			return nil
		}
	}
	if webURL == "" {
		return fmt.Errorf("%w: no external link", ErrInvalidArgument)
	}
	return OpenBrowser(webURL)
}

// WebURLFromURI converts spotify:<type>:<id> into its open.spotify.com form.
func WebURLFromURI(uri string) string {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != "spotify" {
		return ""
	}
	return fmt.Sprintf("https://open.spotify.com/%s/%s", parts[1], parts[2])
}
