package main

import (
	"github.com/FranLegon/drive-doc-relay/cmd"
)

// main hands control to the cobra root command in the cmd package.
func main() {
	cmd.Execute()
}
