package main

import "github.com/schovi/nodemux/cmd"

func main() {
	cmd.Execute()
}
