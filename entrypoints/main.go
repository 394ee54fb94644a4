package main

import (
	// embedded zone database for hosts without zoneinfo
	_ "time/tzdata"

	"github.com/Laisky/laisky-mcp-gateway/cmd"
)

func main() {
	cmd.Execute()
}
