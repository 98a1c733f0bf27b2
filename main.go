package main

import "gembot/cmd"

func main() {
	cmd.Execute()
}
