package main

import "github.com/jmehdipour/subscribers/cmd"

func main() {
	cmd.Execute()
}
