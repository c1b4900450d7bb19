package main

import "github.com/Varn22/pixel-time-tracker/internal/cli"

func main() {
	cli.Execute()
}
