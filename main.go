package main

import "github.com/jmehdipour/place-discovery/cmd"

func main() {
	cmd.Execute()
}
