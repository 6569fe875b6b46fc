package main

import "github.com/jfmyers9/campfire/cmd"

func main() {
	cmd.Execute()
}
