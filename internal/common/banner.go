package common

import (
	"fmt"

	"github.com/ternarybob/banner"
)

// PrintBanner shows the startup banner for `serve` with the backend it talks
// to and where the bridge listens
func PrintBanner(config *Config, bridgeAddr string) {
	banner.PrintSimple("Leadwatch", GetVersion())
	fmt.Printf("  api:       %s\n", config.APIURL(""))
	fmt.Printf("  workspace: %s\n", displayWorkspace(config.API.WorkspaceID))
	fmt.Printf("  bridge:    http://%s (events on /ws)\n\n", bridgeAddr)
}

func displayWorkspace(id string) string {
	if id == "" {
		return "(none configured)"
	}
	return id + " unless one was stored at login"
}
