package main

import (
	"github.com/xkilldash9x/crucible-cli/cmd"
)

func main() {
	cmd.Execute()
}
