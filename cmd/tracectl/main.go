package main

import "fruittrace/cmd/tracectl/commands"

func main() {
	commands.Execute()
}
