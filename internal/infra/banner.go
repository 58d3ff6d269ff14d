package infra

import (
	"fmt"
	"strings"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner with registry-mode warnings.
func PrintBanner(cfg *Config) {
	mode := strings.ToUpper(cfg.Node.RegistryMode)
	if mode == "" {
		mode = "MOCK"
	}
	version := cfg.App.Version

	color := ColorGreen
	modeDesc := "LIVE ASSET REGISTRY"

	switch mode {
	case "INPROC":
		color = ColorCyan
		modeDesc = "IN-PROCESS REGISTRY"
	case "MOCK":
		color = ColorYellow
		modeDesc = "NO REGISTRY (CALLS NEVER RESOLVE)"
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#               🔨 Dutch Auction Node                     #%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#   REGISTRY: %-35s #%s\n", color, mode, ColorReset)
	fmt.Printf("%s#   TYPE:     %-35s #%s\n", color, modeDesc, ColorReset)
	fmt.Printf("%s#   VERSION:  %-35s #%s\n", color, version, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Println()
}
