package main

import (
	"github.com/ColonelBlimp/audiosender/cmd"
	"github.com/ColonelBlimp/audiosender/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
