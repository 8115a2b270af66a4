package main

import "github.com/alphauser-don/string-bot/cmd/string-bot/cmd"

func main() {
	cmd.Execute()
}
