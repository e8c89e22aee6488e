package main

import "github.com/sandsh/sandsh/cmd"

func main() {
	cmd.Execute()
}
