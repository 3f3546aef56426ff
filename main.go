package main

import (
	"github.com/luma/bosswave/cmd"
)

func main() {
	cmd.Execute()
}
